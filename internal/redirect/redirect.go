// Package redirect drives the multi-hop redirect chain on top of a
// single-hop pipeline.Run: Location resolution, method rewrite,
// cross-origin header scrubbing, and history accumulation.
package redirect

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"

	"github.com/gohop/hop/auth"
	"github.com/gohop/hop/cookiejar"
	"github.com/gohop/hop/errs"
	"github.com/gohop/hop/internal/pipeline"
	"github.com/gohop/hop/internal/pool"
)

// Input is the initial hop plus the policy governing the whole chain.
type Input struct {
	Method        string
	URL           *url.URL
	Header        http.Header
	Body          io.Reader
	ContentLength int64

	Jar  *cookiejar.Jar
	Auth auth.Scheme

	MaxRedirects   int
	AllowRedirects bool
	AllowCrossAuth bool
	Streamed       bool
	MaxHeaderBytes int64
	MaxBodyBytes   int64
	Verify         *tls.Config
}

// HistoryEntry is one non-terminal response in a redirect chain, with
// its body buffered since the chain has already moved past it.
type HistoryEntry struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        *url.URL
}

// Result is the outcome of the whole chain: the terminal hop's result,
// the URL it was issued against, and every redirect response along the
// way.
type Result struct {
	Final    *pipeline.Result
	FinalURL *url.URL
	History  []HistoryEntry
}

// Run drives the chain to completion or to a too_many_redirects error.
func Run(ctx context.Context, p *pool.Pool, in Input) (*Result, error) {
	method := in.Method
	target := in.URL
	body := in.Body
	contentLength := in.ContentLength
	header := in.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	var history []HistoryEntry
	hopCount := 0

	for {
		origin := pool.OriginFor(target.Scheme, target.Host)
		res, err := pipeline.Run(ctx, p, origin, pipeline.Input{
			Method:         method,
			URL:            target,
			Header:         header,
			Body:           body,
			ContentLength:  contentLength,
			Jar:            in.Jar,
			Auth:           in.Auth,
			MaxHeaderBytes: in.MaxHeaderBytes,
			MaxBodyBytes:   in.MaxBodyBytes,
			Streamed:       in.Streamed,
			Verify:         in.Verify,
		})
		if err != nil {
			return nil, err
		}

		if !isRedirect(res.Response.StatusCode) || !in.AllowRedirects {
			return &Result{Final: res, FinalURL: target, History: history}, nil
		}

		if hopCount == in.MaxRedirects {
			// A further hop would be required but the budget is
			// exhausted strictly: raise rather than return this
			// response as terminal.
			return nil, errs.New(errs.TooManyRedirects)
		}

		location := res.Response.Header.Get("Location")
		next, err := resolveLocation(target, location)
		if err != nil {
			return nil, errs.Wrap(errs.InvalidResponse, err)
		}

		entryBody, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, errs.Wrap(errs.ConnectionClosed, err)
		}
		res.Body.Close() //nolint:errcheck
		history = append(history, HistoryEntry{
			StatusCode: res.Response.StatusCode,
			Header:     res.Response.Header,
			Body:       entryBody,
			URL:        target,
		})

		method, body, contentLength = rewriteMethod(res.Response.StatusCode, method, body, contentLength)

		if crossOrigin(target, next) && !in.AllowCrossAuth {
			header.Del("Authorization")
			in.Auth = nil
		}
		header.Del("Cookie") // recomputed per hop from the jar

		target = next
		hopCount++
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// resolveLocation implements RFC 3986 §5.3 reference resolution: a
// relative Location inherits target's scheme and host.
func resolveLocation(target *url.URL, location string) (*url.URL, error) {
	ref, err := url.Parse(location)
	if err != nil {
		return nil, err
	}
	return target.ResolveReference(ref), nil
}

// rewriteMethod applies the per-status method/body rewrite rules.
func rewriteMethod(status int, method string, body io.Reader, contentLength int64) (string, io.Reader, int64) {
	switch status {
	case http.StatusSeeOther:
		return http.MethodGet, nil, 0
	case http.StatusMovedPermanently, http.StatusFound:
		if method == http.MethodPost {
			return http.MethodGet, nil, 0
		}
		return method, body, contentLength
	default: // 307, 308
		return method, body, contentLength
	}
}

// crossOrigin compares scheme+host+port, matching the pool's own origin
// key so that auth scrubbing and origin-keyed pooling agree.
func crossOrigin(a, b *url.URL) bool {
	oa := pool.OriginFor(a.Scheme, a.Host)
	ob := pool.OriginFor(b.Scheme, b.Host)
	return oa != ob
}
