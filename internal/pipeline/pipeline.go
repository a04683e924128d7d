// Package pipeline drives a single HTTP hop: materializing a request
// onto an acquired connection, sending it, and receiving the response,
// including the one-shot stale-socket retry and the auth-challenge
// retry hook.
package pipeline

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gohop/hop/auth"
	"github.com/gohop/hop/cookiejar"
	"github.com/gohop/hop/errs"
	"github.com/gohop/hop/internal/pool"
	"github.com/gohop/hop/internal/wire"
)

// Input is everything a single hop needs beyond the acquired
// connection itself.
type Input struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   io.Reader
	// ContentLength is the body's known length, or -1 for chunked.
	ContentLength int64

	Jar  *cookiejar.Jar
	Auth auth.Scheme

	MaxHeaderBytes int64
	MaxBodyBytes   int64
	Streamed       bool

	Verify *tls.Config
}

// Result is the outcome of a hop: the parsed response plus the
// connection's fate.
type Result struct {
	Response    *wire.Response
	Body        io.ReadCloser
	Elapsed     time.Duration
	AuthRetried bool
}

// Run executes one hop against origin, acquiring a connection from p.
func Run(ctx context.Context, p *pool.Pool, origin pool.Origin, in Input) (*Result, error) {
	start := time.Now()

	conn, err := p.Acquire(ctx, origin, in.Verify)
	if err != nil {
		return nil, err
	}

	resp, _, err := sendAndReceive(ctx, p, conn, origin, in)
	if err != nil {
		return nil, err
	}
	conn = resp.conn

	// Reuse needs both sides to allow keep-alive: the response's own
	// verdict, and no Connection: close on the request.
	reqKeepAlive := !strings.Contains(strings.ToLower(in.Header.Get("Connection")), "close")

	if in.Jar != nil {
		for _, sc := range resp.parsed.Header.Values("Set-Cookie") {
			_ = in.Jar.SetFromHeader(sc, in.URL) // malformed Set-Cookie values are dropped, not fatal
		}
	}

	authRetried := false
	if resp.parsed.StatusCode == http.StatusUnauthorized && in.Auth != nil &&
		in.Auth.HandleChallenge(resp.parsed.StatusCode, resp.parsed.Header) {
		drainAndRelease(p, conn, resp.parsed, reqKeepAlive)
		resp2, _, err := sendAndReceive(ctx, p, nil, origin, in)
		if err != nil {
			return nil, err
		}
		resp = resp2
		authRetried = true
		if in.Jar != nil {
			for _, sc := range resp.parsed.Header.Values("Set-Cookie") {
				_ = in.Jar.SetFromHeader(sc, in.URL)
			}
		}
	}

	body := newBody(resp.parsed.Body, resp.conn, p, resp.parsed.KeepAlive && reqKeepAlive)
	if !in.Streamed {
		buffered, err := readBuffered(body, in.MaxBodyBytes)
		if err != nil {
			return nil, err
		}
		body = buffered
	}

	return &Result{
		Response:    resp.parsed,
		Body:        body,
		Elapsed:     time.Since(start),
		AuthRetried: authRetried,
	}, nil
}

// hopResult threads the connection actually used (which may differ from
// the one passed in, after a stale-socket retry) back to Run.
type hopResult struct {
	conn   *pool.Connection
	parsed *wire.Response
}

// sendAndReceive materializes and sends the request on conn (acquiring
// a fresh one if conn is nil, as the auth-retry path does), with one
// transparent retry on a fresh connection if the write fails before any
// response byte is read.
func sendAndReceive(ctx context.Context, p *pool.Pool, conn *pool.Connection, origin pool.Origin, in Input) (*hopResult, bool, error) {
	if conn == nil {
		acquired, err := p.Acquire(ctx, origin, in.Verify)
		if err != nil {
			return nil, false, err
		}
		conn = acquired
	}

	header, target := materialize(in)
	applyDeadline(ctx, conn)

	if err := wire.EncodeRequest(conn.Writer(), in.URL.Hostname(), in.Method, target, header, in.Body, in.ContentLength); err != nil {
		p.Discard(conn)
		retryConn, aerr := p.Acquire(ctx, origin, in.Verify)
		if aerr != nil {
			return nil, false, errs.Wrap(errs.ConnectionFailed, err)
		}
		applyDeadline(ctx, retryConn)
		if err := wire.EncodeRequest(retryConn.Writer(), in.URL.Hostname(), in.Method, target, header, in.Body, in.ContentLength); err != nil {
			p.Discard(retryConn)
			return nil, false, errs.Wrap(errs.ConnectionFailed, err)
		}
		parsed, err := wire.ParseResponse(retryConn.Reader, wire.ParseOptions{MaxHeaderBytes: in.MaxHeaderBytes, MaxBodyBytes: in.MaxBodyBytes})
		if err != nil {
			p.Discard(retryConn)
			return nil, false, classifyDeadlineErr(ctx, err)
		}
		return &hopResult{conn: retryConn, parsed: parsed}, true, nil
	}

	parsed, err := wire.ParseResponse(conn.Reader, wire.ParseOptions{MaxHeaderBytes: in.MaxHeaderBytes, MaxBodyBytes: in.MaxBodyBytes})
	if err != nil {
		p.Discard(conn)
		return nil, false, classifyDeadlineErr(ctx, err)
	}
	return &hopResult{conn: conn, parsed: parsed}, false, nil
}

// applyDeadline binds the connection's socket deadline to ctx's
// deadline, if any, so a blocking header read cannot outlive the
// request's own timeout.
func applyDeadline(ctx context.Context, conn *pool.Connection) {
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl) //nolint:errcheck
	}
}

// clearDeadline removes any per-hop deadline before the connection is
// handed to a body reader or returned to the pool, so it doesn't carry
// a stale expiry into the next use.
func clearDeadline(conn *pool.Connection) {
	conn.SetDeadline(time.Time{}) //nolint:errcheck
}

// classifyDeadlineErr reports a context deadline/cancellation as
// errs.Timeout/errs.Cancelled rather than the raw socket timeout error
// the OS hands back.
func classifyDeadlineErr(ctx context.Context, err error) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return errs.Wrap(errs.Timeout, err)
	case context.Canceled:
		return errs.Wrap(errs.Cancelled, err)
	default:
		return errs.Wrap(errs.ConnectionClosed, err)
	}
}

// materialize fills in Cookie and auth headers for the hop, leaving
// in.Header itself untouched. Host is added later by wire.EncodeRequest.
func materialize(in Input) (http.Header, string) {
	header := in.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	if header.Get("Cookie") == "" && in.Jar != nil {
		if c := in.Jar.SerializeHeader(in.URL); c != "" {
			header.Set("Cookie", c)
		}
	}

	if in.Auth != nil {
		target := in.URL.RequestURI()
		in.Auth.Apply(header, auth.Context{Method: in.Method, Target: target})
	}

	return header, in.URL.RequestURI()
}

// drainAndRelease reads a 401 response's body to the end and releases its
// connection to the pool (re-pooled only if both sides allow keep-alive),
// so the retry can reacquire it: the body is typically short, but hop
// never risks corrupting framing by sending a new request before the
// prior one is fully read.
func drainAndRelease(p *pool.Pool, conn *pool.Connection, resp *wire.Response, reqKeepAlive bool) {
	_, _ = io.Copy(io.Discard, resp.Body)
	clearDeadline(conn)
	p.Release(conn, pool.Outcome{Clean: resp.KeepAlive && reqKeepAlive})
}

// body ties a response's byte stream to the connection it was read
// from: reading to EOF releases the connection to the pool (if
// keep-alive), while an explicit Close before EOF discards it, since
// the stream cannot prove the body was fully consumed without reading
// it.
type body struct {
	r         io.Reader
	conn      *pool.Connection
	pool      *pool.Pool
	keepAlive bool
	done      bool
}

func newBody(r io.Reader, conn *pool.Connection, p *pool.Pool, keepAlive bool) *body {
	return &body{r: r, conn: conn, pool: p, keepAlive: keepAlive}
}

func (b *body) Read(p []byte) (int, error) {
	if b.done {
		return 0, io.EOF
	}
	n, err := b.r.Read(p)
	if err == io.EOF {
		b.release(b.keepAlive)
	} else if err != nil {
		b.release(false)
	}
	return n, err
}

func (b *body) Close() error {
	if !b.done {
		b.release(false)
	}
	return nil
}

func (b *body) release(clean bool) {
	b.done = true
	clearDeadline(b.conn)
	b.pool.Release(b.conn, pool.Outcome{Clean: clean})
}

// readBuffered drains r (bounded by maxBody, 0 meaning unlimited) into
// memory and returns a ReadCloser over the result; the underlying
// connection has already been released by the time this returns.
func readBuffered(r io.ReadCloser, maxBody int64) (io.ReadCloser, error) {
	defer r.Close() //nolint:errcheck

	var buf []byte
	var err error
	if maxBody > 0 {
		limited := io.LimitReader(r, maxBody+1)
		buf, err = io.ReadAll(limited)
		if err == nil && int64(len(buf)) > maxBody {
			return nil, errs.New(errs.BodyTooLarge)
		}
	} else {
		buf, err = io.ReadAll(r)
	}
	if err != nil {
		if kind, ok := errs.Of(err); ok && kind == errs.BodyTooLarge {
			return nil, err
		}
		return nil, errs.Wrap(errs.ConnectionClosed, err)
	}
	return &bufferedBody{r: newByteReader(buf)}, nil
}

type bufferedBody struct{ r io.Reader }

func (b *bufferedBody) Read(p []byte) (int, error) { return b.r.Read(p) }
func (b *bufferedBody) Close() error               { return nil }

func newByteReader(b []byte) io.Reader { return &sliceReader{b: b} }

type sliceReader struct {
	b []byte
	i int
}

func (s *sliceReader) Read(p []byte) (int, error) {
	if s.i >= len(s.b) {
		return 0, io.EOF
	}
	n := copy(p, s.b[s.i:])
	s.i += n
	return n, nil
}
