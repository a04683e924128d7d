package hop

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gohop/hop/internal/redirect"
)

// Request issues method against rawURL with opts applied over the
// session defaults, following redirects and auth challenges per the
// session's policy. The response body is fully buffered.
func (s *Session) Request(ctx context.Context, method, rawURL string, opts Options) (*Response, error) {
	return s.do(ctx, method, rawURL, opts, false)
}

// RequestStreamed is Request with the final response's body left as a
// lazy, connection-bound byte sequence instead of buffered in memory.
func (s *Session) RequestStreamed(ctx context.Context, method, rawURL string, opts Options) (*Response, error) {
	return s.do(ctx, method, rawURL, opts, true)
}

func (s *Session) do(ctx context.Context, method, rawURL string, opts Options, streamed bool) (*Response, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	header := s.defaultHeader.Clone()
	if header == nil {
		header = make(http.Header)
	}
	for name, values := range opts.Headers {
		header.Del(name)
		for _, v := range values {
			header.Add(name, v)
		}
	}

	body, contentType := opts.body()
	if contentType != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", contentType)
	}

	timeout := s.defaultTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxRedirects := s.maxRedirects
	if opts.MaxRedirects.Valid {
		maxRedirects = int(opts.MaxRedirects.Int64)
	}
	allowRedirects := true
	if opts.AllowRedirects.Valid {
		allowRedirects = opts.AllowRedirects.Bool
	}

	authScheme := s.defaultAuth
	if opts.Auth != nil {
		authScheme = opts.Auth
	}
	verify := s.verify
	if opts.Verify != nil {
		verify = opts.Verify
	}

	in := redirect.Input{
		Method:         method,
		URL:            target,
		Header:         header,
		Jar:            s.jar,
		Auth:           authScheme,
		MaxRedirects:   maxRedirects,
		AllowRedirects: allowRedirects,
		AllowCrossAuth: s.allowCrossAuth,
		Streamed:       streamed,
		MaxHeaderBytes: s.maxHeaderBytes,
		MaxBodyBytes:   s.maxBodyBytes,
		Verify:         verify,
	}
	if body != "" {
		in.Body = strings.NewReader(body)
		in.ContentLength = int64(len(body))
	}

	result, err := redirect.Run(reqCtx, s.pool, in)
	if err != nil {
		return nil, err
	}
	return fromRedirectResult(result), nil
}
