package redirect_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/mccutchen/go-httpbin/httpbin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gohop/hop/errs"
	"github.com/gohop/hop/internal/pool"
	"github.com/gohop/hop/internal/redirect"
)

// rawServer serves one fixed raw HTTP response per accepted request, in
// order, on the same connection (so pooled reuse is observable).
func rawServer(t *testing.T, responses ...string) (string, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close() //nolint:errcheck
				buf := make([]byte, 65536)
				for _, resp := range responses {
					n, err := c.Read(buf)
					if err != nil || n == 0 {
						return
					}
					if _, err := c.Write([]byte(resp)); err != nil {
						return
					}
				}
			}(c)
		}
	}()

	return ln.Addr().String(), func() { ln.Close() } //nolint:errcheck
}

func mustURL(t *testing.T, addr, path string) *url.URL {
	t.Helper()
	u, err := url.Parse("http://" + addr + path)
	require.NoError(t, err)
	return u
}

func TestRedirectHistoryLength(t *testing.T) {
	t.Parallel()
	addr, cleanup := rawServer(t,
		"HTTP/1.1 302 Found\r\nLocation: /b\r\nContent-Length: 0\r\n\r\n",
		"HTTP/1.1 302 Found\r\nLocation: /c\r\nContent-Length: 0\r\n\r\n",
		"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok",
	)
	defer cleanup()

	p := pool.New(pool.Dialer{}, time.Minute, 8, nil)
	res, err := redirect.Run(context.Background(), p, redirect.Input{
		Method:         http.MethodGet,
		URL:            mustURL(t, addr, "/a"),
		Header:         http.Header{},
		AllowRedirects: true,
		MaxRedirects:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Final.Response.StatusCode)
	assert.Len(t, res.History, 2)
	assert.Equal(t, "/c", res.FinalURL.Path)
}

func TestTooManyRedirects(t *testing.T) {
	t.Parallel()
	addr, cleanup := rawServer(t,
		"HTTP/1.1 302 Found\r\nLocation: /b\r\nContent-Length: 0\r\n\r\n",
		"HTTP/1.1 302 Found\r\nLocation: /c\r\nContent-Length: 0\r\n\r\n",
	)
	defer cleanup()

	p := pool.New(pool.Dialer{}, time.Minute, 8, nil)
	_, err := redirect.Run(context.Background(), p, redirect.Input{
		Method:         http.MethodGet,
		URL:            mustURL(t, addr, "/a"),
		Header:         http.Header{},
		AllowRedirects: true,
		MaxRedirects:   1,
	})
	require.Error(t, err)
	kind, ok := errs.Of(err)
	require.True(t, ok)
	assert.Equal(t, errs.TooManyRedirects, kind)
}

func TestMethodRewrite303DropsBody(t *testing.T) {
	t.Parallel()

	// The second hop lands on a different listener so the captured
	// request can be asserted independently of the first hop's server.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close() //nolint:errcheck

	gotReq := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close() //nolint:errcheck
		buf := make([]byte, 65536)
		n, _ := c.Read(buf)
		gotReq <- string(buf[:n])
		c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")) //nolint:errcheck
	}()

	addr, cleanup := rawServer(t, fmt.Sprintf(
		"HTTP/1.1 303 See Other\r\nLocation: http://%s/next\r\nContent-Length: 0\r\n\r\n", ln.Addr().String()))
	defer cleanup()

	p := pool.New(pool.Dialer{}, time.Minute, 8, nil)
	res, err := redirect.Run(context.Background(), p, redirect.Input{
		Method:         http.MethodPost,
		URL:            mustURL(t, addr, "/a"),
		Header:         http.Header{},
		Body:           strings.NewReader("x=1"),
		ContentLength:  3,
		AllowRedirects: true,
		MaxRedirects:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Final.Response.StatusCode)
	assert.Equal(t, "/next", res.FinalURL.Path)

	select {
	case req := <-gotReq:
		assert.True(t, strings.HasPrefix(req, "GET /next "))
		assert.NotContains(t, req, "x=1")
		assert.NotContains(t, req, "Content-Length")
	case <-time.After(time.Second):
		t.Fatal("second hop never arrived")
	}
}

func TestMethodRewrite307PreservesBody(t *testing.T) {
	t.Parallel()

	// The second hop lands on a different listener so the captured
	// request can be asserted independently of the first hop's server.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close() //nolint:errcheck

	gotBody := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close() //nolint:errcheck
		buf := make([]byte, 65536)
		n, _ := c.Read(buf)
		gotBody <- string(buf[:n])
		c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")) //nolint:errcheck
	}()

	addr, cleanup := rawServer(t, fmt.Sprintf(
		"HTTP/1.1 307 Temporary Redirect\r\nLocation: http://%s/next\r\nContent-Length: 0\r\n\r\n", ln.Addr().String()))
	defer cleanup()

	p := pool.New(pool.Dialer{}, time.Minute, 8, nil)
	res, err := redirect.Run(context.Background(), p, redirect.Input{
		Method:         http.MethodPost,
		URL:            mustURL(t, addr, "/a"),
		Header:         http.Header{},
		Body:           strings.NewReader("x=1"),
		ContentLength:  3,
		AllowRedirects: true,
		MaxRedirects:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Final.Response.StatusCode)

	select {
	case body := <-gotBody:
		assert.True(t, strings.HasPrefix(body, "POST"))
		assert.True(t, strings.HasSuffix(body, "x=1"))
	case <-time.After(time.Second):
		t.Fatal("second hop never arrived")
	}
}

func TestCrossOriginRedirectScrubsAuthorization(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close() //nolint:errcheck

	gotHeaders := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close() //nolint:errcheck
		buf := make([]byte, 65536)
		n, _ := c.Read(buf)
		gotHeaders <- string(buf[:n])
		c.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n")) //nolint:errcheck
	}()

	addr, cleanup := rawServer(t, fmt.Sprintf(
		"HTTP/1.1 302 Found\r\nLocation: http://%s/next\r\nContent-Length: 0\r\n\r\n", ln.Addr().String()))
	defer cleanup()

	p := pool.New(pool.Dialer{}, time.Minute, 8, nil)
	header := http.Header{}
	header.Set("Authorization", "Basic dXNlcjpwYXNz")
	res, err := redirect.Run(context.Background(), p, redirect.Input{
		Method:         http.MethodGet,
		URL:            mustURL(t, addr, "/a"),
		Header:         header,
		AllowRedirects: true,
		MaxRedirects:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Final.Response.StatusCode)

	select {
	case headers := <-gotHeaders:
		assert.NotContains(t, headers, "Authorization")
	case <-time.After(time.Second):
		t.Fatal("second hop never arrived")
	}
}

// TestAgainstHTTPBinRelativeRedirectChain exercises the redirect engine
// against a real HTTP server (go-httpbin's /redirect/:n, which issues n
// chained relative 302s ending at /get) rather than a hand-rolled raw
// response fixture.
func TestAgainstHTTPBinRelativeRedirectChain(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(httpbin.New().Handler())
	defer srv.Close()

	target, err := url.Parse(srv.URL + "/redirect/3")
	require.NoError(t, err)

	p := pool.New(pool.Dialer{}, time.Minute, 8, nil)
	res, err := redirect.Run(context.Background(), p, redirect.Input{
		Method:         http.MethodGet,
		URL:            target,
		Header:         http.Header{},
		AllowRedirects: true,
		MaxRedirects:   5,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Final.Response.StatusCode)
	assert.Len(t, res.History, 3)
	assert.Equal(t, "/get", res.FinalURL.Path)
}
