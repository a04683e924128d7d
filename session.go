// Package hop is a small HTTP/1.1 client library: a Session holding a
// connection pool, cookie jar, and default auth/headers, driving the
// request/response pipeline and redirect engine beneath it.
package hop

import (
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gohop/hop/auth"
	"github.com/gohop/hop/cookiejar"
	"github.com/gohop/hop/internal/pool"
)

const (
	defaultMaxRedirects = 30
	defaultTimeout      = 30 * time.Second
)

// Session holds everything shared across requests: the connection
// pool, cookie jar, and default headers/auth/verify/redirect policy.
// A Session makes no promise of safety for concurrent use; callers
// serialize access to it. (The cookie jar and the Digest scheme do guard
// their own state with a mutex.)
type Session struct {
	pool *pool.Pool
	jar  *cookiejar.Jar

	defaultHeader  http.Header
	defaultAuth    auth.Scheme
	verify         *tls.Config
	maxRedirects   int
	defaultTimeout time.Duration
	allowCrossAuth bool

	maxHeaderBytes int64
	maxBodyBytes   int64

	logger logrus.FieldLogger
}

// Option configures a Session at construction time.
type Option func(*Session)

// New builds a Session with the given options applied over the
// defaults: a fresh cookie jar, no default auth, platform trust roots,
// 30 max redirects, and a 30s default timeout.
func New(opts ...Option) *Session {
	silent := logrus.New()
	silent.SetOutput(io.Discard)

	s := &Session{
		jar:            cookiejar.New(),
		defaultHeader:  make(http.Header),
		maxRedirects:   defaultMaxRedirects,
		defaultTimeout: defaultTimeout,
		logger:         silent,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pool = pool.New(pool.Dialer{TLSConfig: s.verify}, 0, 0, s.logger)
	return s
}

// WithJar replaces the session's cookie jar.
func WithJar(j *cookiejar.Jar) Option {
	return func(s *Session) { s.jar = j }
}

// WithDefaultHeader sets a header sent on every request unless a
// per-request option overrides it.
func WithDefaultHeader(name, value string) Option {
	return func(s *Session) { s.defaultHeader.Set(name, value) }
}

// WithAuth sets the session-level auth scheme.
func WithAuth(a auth.Scheme) Option {
	return func(s *Session) { s.defaultAuth = a }
}

// WithVerify sets the TLS configuration used to verify server
// certificates. Pass a config with InsecureSkipVerify to disable
// verification session-wide.
func WithVerify(cfg *tls.Config) Option {
	return func(s *Session) { s.verify = cfg }
}

// WithMaxRedirects sets the default redirect budget.
func WithMaxRedirects(n int) Option {
	return func(s *Session) { s.maxRedirects = n }
}

// WithTimeout sets the default per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) { s.defaultTimeout = d }
}

// WithCrossOriginAuth opts into carrying Authorization across a
// cross-origin redirect, which is off by default.
func WithCrossOriginAuth(allow bool) Option {
	return func(s *Session) { s.allowCrossAuth = allow }
}

// WithMaxHeaderBytes caps the status line + header block of any
// response. Zero means the wire codec's own default (1 MiB).
func WithMaxHeaderBytes(n int64) Option {
	return func(s *Session) { s.maxHeaderBytes = n }
}

// WithMaxBodyBytes caps a buffered response body. Zero means unlimited.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Session) { s.maxBodyBytes = n }
}

// WithLogger sets the structured logger handed to the connection pool
// for its debug diagnostics (new dials and discarded expired or stale
// connections). The default logger is silent.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Session) { s.logger = logger }
}

// Jar returns the session's cookie jar.
func (s *Session) Jar() *cookiejar.Jar { return s.jar }

// Close drops all pooled connections and forbids further requests.
func (s *Session) Close() error { return s.pool.Close() }
