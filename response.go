package hop

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gohop/hop/internal/redirect"
)

// Response is one completed request: the terminal hop's status and
// headers, its body, and the chain of redirects (if any) that led to
// it.
type Response struct {
	StatusCode int
	Reason     string
	Header     http.Header
	Body       io.ReadCloser
	FinalURL   *url.URL
	Elapsed    time.Duration
	History    []HistoryEntry

	bodyCache []byte
}

// HistoryEntry is one non-terminal response in a redirect chain.
type HistoryEntry struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        *url.URL
}

func fromRedirectResult(r *redirect.Result) *Response {
	history := make([]HistoryEntry, len(r.History))
	for i, h := range r.History {
		history[i] = HistoryEntry{StatusCode: h.StatusCode, Header: h.Header, Body: h.Body, URL: h.URL}
	}
	return &Response{
		StatusCode: r.Final.Response.StatusCode,
		Reason:     r.Final.Response.Reason,
		Header:     r.Final.Response.Header,
		Body:       r.Final.Body,
		FinalURL:   r.FinalURL,
		Elapsed:    r.Final.Elapsed,
		History:    history,
	}
}

// Bytes reads and caches the full response body.
func (r *Response) Bytes() ([]byte, error) {
	if r.bodyCache != nil {
		return r.bodyCache, nil
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.bodyCache = b
	return b, nil
}

// Text reads the full response body as a string.
func (r *Response) Text() (string, error) {
	b, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// JSON reads the full response body and unmarshals it into v.
func (r *Response) JSON(v interface{}) error {
	b, err := r.Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// HTTPError is the error RaiseForStatus constructs for a status >= 400.
type HTTPError struct {
	Status int
	Reason string
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("hop: %d %s for %s", e.Status, e.Reason, e.URL)
}

// RaiseForStatus returns an *HTTPError if the response status is >= 400,
// nil otherwise. The response itself is left untouched either way:
// headers, body, history, and cookies remain available to the caller.
func (r *Response) RaiseForStatus() error {
	if r.StatusCode < 400 {
		return nil
	}
	return &HTTPError{Status: r.StatusCode, Reason: r.Reason, URL: r.FinalURL.String()}
}
