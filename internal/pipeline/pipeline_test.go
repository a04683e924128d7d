package pipeline_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gohop/hop/auth"
	"github.com/gohop/hop/cookiejar"
	"github.com/gohop/hop/internal/pipeline"
	"github.com/gohop/hop/internal/pool"
)

// rawServer starts a listener that, for each accepted connection, reads
// one request and writes back a fixed raw response, then optionally
// loops to serve a second hop on the same connection (keep-alive).
func rawServer(t *testing.T, responses ...string) (pool.Origin, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for i := 0; ; i++ {
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

	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return pool.Origin{Scheme: "http", Host: "127.0.0.1", Port: port}, func() { ln.Close() } //nolint:errcheck
}

func mustURL(t *testing.T, origin pool.Origin, path string) *url.URL {
	t.Helper()
	u, err := url.Parse("http://" + origin.Host + ":" + origin.Port + path)
	require.NoError(t, err)
	return u
}

func TestRunBufferedResponse(t *testing.T) {
	t.Parallel()
	origin, cleanup := rawServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")
	defer cleanup()

	p := pool.New(pool.Dialer{}, time.Minute, 8, nil)
	u := mustURL(t, origin, "/a")

	res, err := pipeline.Run(context.Background(), p, origin, pipeline.Input{
		Method:        "GET",
		URL:           u,
		Header:        http.Header{},
		ContentLength: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Response.StatusCode)

	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestRunSendsJarCookies(t *testing.T) {
	t.Parallel()

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
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	origin := pool.Origin{Scheme: "http", Host: "127.0.0.1", Port: port}

	p := pool.New(pool.Dialer{}, time.Minute, 8, nil)
	u := mustURL(t, origin, "/a")
	jar := cookiejar.New()
	jar.Set(cookiejar.Cookie{Name: "s", Value: "1", Domain: origin.Host, Path: "/"})

	res, err := pipeline.Run(context.Background(), p, origin, pipeline.Input{
		Method: "GET",
		URL:    u,
		Header: http.Header{},
		Jar:    jar,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Response.StatusCode)

	select {
	case req := <-gotReq:
		assert.Contains(t, req, "Cookie: s=1\r\n")
	case <-time.After(time.Second):
		t.Fatal("request never arrived")
	}
}

func TestRunDigestAuthRetry(t *testing.T) {
	t.Parallel()
	origin, cleanup := rawServer(t,
		"HTTP/1.1 401 Unauthorized\r\nWWW-Authenticate: Digest realm=\"r\", nonce=\"n\", qop=\"auth\"\r\nContent-Length: 0\r\n\r\n",
		"HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok",
	)
	defer cleanup()

	p := pool.New(pool.Dialer{}, time.Minute, 8, nil)
	u := mustURL(t, origin, "/a")

	res, err := pipeline.Run(context.Background(), p, origin, pipeline.Input{
		Method: "GET",
		URL:    u,
		Header: http.Header{},
		Auth:   &auth.Digest{Username: "u", Password: "p"},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Response.StatusCode)
	assert.True(t, res.AuthRetried)
}

func TestRunStreamedBodyReleasesOnEOF(t *testing.T) {
	t.Parallel()
	origin, cleanup := rawServer(t, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")
	defer cleanup()

	p := pool.New(pool.Dialer{}, time.Minute, 8, nil)
	u := mustURL(t, origin, "/a")

	res, err := pipeline.Run(context.Background(), p, origin, pipeline.Input{
		Method:   "GET",
		URL:      u,
		Header:   http.Header{},
		Streamed: true,
	})
	require.NoError(t, err)

	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	require.NoError(t, res.Body.Close())
}
