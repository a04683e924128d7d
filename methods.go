package hop

import (
	"context"
	"io"
	"net/http"
)

// Get issues a GET request.
func (s *Session) Get(ctx context.Context, url string, opts Options) (*Response, error) {
	return s.Request(ctx, http.MethodGet, url, opts)
}

// Post issues a POST request.
func (s *Session) Post(ctx context.Context, url string, opts Options) (*Response, error) {
	return s.Request(ctx, http.MethodPost, url, opts)
}

// Put issues a PUT request.
func (s *Session) Put(ctx context.Context, url string, opts Options) (*Response, error) {
	return s.Request(ctx, http.MethodPut, url, opts)
}

// Patch issues a PATCH request.
func (s *Session) Patch(ctx context.Context, url string, opts Options) (*Response, error) {
	return s.Request(ctx, http.MethodPatch, url, opts)
}

// Delete issues a DELETE request.
func (s *Session) Delete(ctx context.Context, url string, opts Options) (*Response, error) {
	return s.Request(ctx, http.MethodDelete, url, opts)
}

// Head issues a HEAD request. Any response body is read and discarded
// rather than surfaced, since HEAD responses are not expected to carry
// one.
func (s *Session) Head(ctx context.Context, url string, opts Options) (*Response, error) {
	resp, err := s.Request(ctx, http.MethodHead, url, opts)
	if err != nil {
		return nil, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp, nil
}

// Options issues an OPTIONS request.
func (s *Session) Options(ctx context.Context, url string, opts Options) (*Response, error) {
	return s.Request(ctx, http.MethodOptions, url, opts)
}

// GetStreamed issues a GET request whose response body is a lazy,
// connection-bound byte sequence.
func (s *Session) GetStreamed(ctx context.Context, url string, opts Options) (*Response, error) {
	return s.RequestStreamed(ctx, http.MethodGet, url, opts)
}

// PostStreamed issues a POST request whose response body is a lazy,
// connection-bound byte sequence.
func (s *Session) PostStreamed(ctx context.Context, url string, opts Options) (*Response, error) {
	return s.RequestStreamed(ctx, http.MethodPost, url, opts)
}

// PutStreamed issues a PUT request whose response body is a lazy,
// connection-bound byte sequence.
func (s *Session) PutStreamed(ctx context.Context, url string, opts Options) (*Response, error) {
	return s.RequestStreamed(ctx, http.MethodPut, url, opts)
}

// PatchStreamed issues a PATCH request whose response body is a lazy,
// connection-bound byte sequence.
func (s *Session) PatchStreamed(ctx context.Context, url string, opts Options) (*Response, error) {
	return s.RequestStreamed(ctx, http.MethodPatch, url, opts)
}

// DeleteStreamed issues a DELETE request whose response body is a
// lazy, connection-bound byte sequence.
func (s *Session) DeleteStreamed(ctx context.Context, url string, opts Options) (*Response, error) {
	return s.RequestStreamed(ctx, http.MethodDelete, url, opts)
}
