// Package pool implements hop's per-origin connection pool: dialing,
// TLS handshake, and a free list of reusable connections with a bounded
// idle window and MRU ordering.
package pool

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gohop/hop/errs"
)

// Origin identifies a pooling domain: scheme, case-folded host, and
// port. Two connections are interchangeable only within the same
// Origin.
type Origin struct {
	Scheme string
	Host   string
	Port   string
}

// OriginFor derives an Origin from a scheme and authority (host[:port]),
// applying the scheme's default port when none is given.
func OriginFor(scheme, host string) Origin {
	h, p, err := net.SplitHostPort(host)
	if err != nil {
		h = host
		p = defaultPort(scheme)
	}
	return Origin{Scheme: strings.ToLower(scheme), Host: strings.ToLower(h), Port: p}
}

func defaultPort(scheme string) string {
	if strings.EqualFold(scheme, "https") {
		return "443"
	}
	return "80"
}

func (o Origin) addr() string { return net.JoinHostPort(o.Host, o.Port) }

// Connection is a pooled socket, plain or TLS, wrapped in a bufio.Reader
// for the wire codec to parse responses from.
type Connection struct {
	Origin    Origin
	conn      net.Conn
	Reader    *bufio.Reader
	lastUsed  time.Time
	knownGood bool
}

// MarkBad flags the connection so Release never returns it to the free
// list, regardless of the outcome it's given.
func (c *Connection) MarkBad() { c.knownGood = false }

// Stale reports whether the peer has likely half-closed the socket: a
// one-byte peek under a short deadline that returns EOF or any error
// means the connection is no longer usable. A read timing out with no
// data available is the normal, healthy case.
func (c *Connection) Stale() bool {
	if err := c.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return true
	}
	defer c.conn.SetReadDeadline(time.Time{}) //nolint:errcheck

	_, err := c.Reader.Peek(1)
	if err == nil {
		return false
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return false
	}
	return true
}

// Writer exposes the underlying socket for the wire codec to write the
// serialized request to.
func (c *Connection) Writer() net.Conn { return c.conn }

// SetDeadline forwards to the underlying socket, letting the pipeline
// bound a hop's send/receive by the request's own context deadline
// rather than the connect-time deadline used by Acquire.
func (c *Connection) SetDeadline(t time.Time) error { return c.conn.SetDeadline(t) }

func (c *Connection) Close() error { return c.conn.Close() }

// Outcome tells Release whether a Connection may be re-pooled.
type Outcome struct {
	// Clean is true when the response was fully consumed with no
	// protocol error and neither side asked for Connection: close.
	Clean bool
}

// Dialer performs the suspension-point work of Acquire when the free
// list is empty: DNS resolution, TCP connect, and (for https) the TLS
// handshake.
type Dialer struct {
	// ConnectTimeout bounds DNS+TCP+TLS as a whole; zero means 30s.
	ConnectTimeout time.Duration
	// TLSConfig is cloned per-dial so SNI/ServerName can be overridden
	// per request without mutating shared trust material.
	TLSConfig *tls.Config
	netDialer net.Dialer
}

// Pool owns, per Origin, a bounded MRU free list of idle connections.
type Pool struct {
	mu      sync.Mutex
	free    map[Origin][]*Connection
	closed  bool
	dialer  Dialer
	idleTTL time.Duration
	freeCap int
	logger  logrus.FieldLogger
}

const (
	defaultIdleWindow = 90 * time.Second
	defaultFreeCap    = 8
	defaultConnectTO  = 30 * time.Second
)

// New returns a Pool using dialer for cache misses. idleWindow and
// freeCap fall back to the package defaults (90s, 8) when zero. A nil
// logger is replaced with logrus's standard logger.
func New(dialer Dialer, idleWindow time.Duration, freeCap int, logger logrus.FieldLogger) *Pool {
	if idleWindow <= 0 {
		idleWindow = defaultIdleWindow
	}
	if freeCap <= 0 {
		freeCap = defaultFreeCap
	}
	if dialer.ConnectTimeout <= 0 {
		dialer.ConnectTimeout = defaultConnectTO
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pool{free: make(map[Origin][]*Connection), dialer: dialer, idleTTL: idleWindow, freeCap: freeCap, logger: logger}
}

// Acquire returns a connection for origin: a pooled, known-good,
// non-stale one if available, otherwise a freshly dialed one.
//
// ctx governs the overall request deadline; it races against the
// pool's own connect-timeout and whichever fires first determines the
// error.
func (p *Pool) Acquire(ctx context.Context, origin Origin, verify *tls.Config) (*Connection, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errs.New(errs.ConnectionClosed)
	}
	list := p.free[origin]
	for len(list) > 0 {
		c := list[len(list)-1]
		list = list[:len(list)-1]
		p.free[origin] = list
		if !c.knownGood || time.Since(c.lastUsed) > p.idleTTL {
			p.mu.Unlock()
			p.logger.WithField("origin", origin).Debug("pool: discarding expired idle connection")
			c.Close() //nolint:errcheck
			p.mu.Lock()
			continue
		}
		p.mu.Unlock()
		if c.Stale() {
			p.logger.WithField("origin", origin).Debug("pool: discarding stale connection")
			c.Close() //nolint:errcheck
			p.mu.Lock()
			continue
		}
		return c, nil
	}
	p.free[origin] = list
	p.mu.Unlock()

	p.logger.WithField("origin", origin).Debug("pool: dialing new connection")
	return p.dial(ctx, origin, verify)
}

func (p *Pool) dial(ctx context.Context, origin Origin, verify *tls.Config) (*Connection, error) {
	connectCtx, cancel := context.WithTimeout(ctx, p.dialer.ConnectTimeout)
	defer cancel()

	rawConn, err := p.dialer.netDialer.DialContext(connectCtx, "tcp", origin.addr())
	if err != nil {
		if connectCtx.Err() != nil || ctx.Err() != nil {
			return nil, errs.Wrap(errs.Timeout, err)
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return nil, errs.Wrap(errs.ResolveFailed, err)
		}
		return nil, errs.Wrap(errs.ConnectionFailed, err)
	}

	conn := rawConn
	if origin.Scheme == "https" {
		cfg := verify
		if cfg == nil {
			cfg = p.dialer.TLSConfig
		}
		if cfg == nil {
			cfg = &tls.Config{} //nolint:gosec // verifies against the platform trust store by default
		} else {
			cfg = cfg.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = origin.Host
		}
		tlsConn := tls.Client(rawConn, cfg)
		if err := tlsConn.HandshakeContext(connectCtx); err != nil {
			rawConn.Close() //nolint:errcheck
			return nil, errs.Wrap(errs.TLSHandshakeFailed, err)
		}
		conn = tlsConn
	}

	return &Connection{
		Origin:    origin,
		conn:      conn,
		Reader:    bufio.NewReader(conn),
		lastUsed:  time.Now(),
		knownGood: true,
	}, nil
}

// Release returns c to the free list on a clean outcome, subject to the
// per-origin cap; any other outcome, or a connection already marked
// bad, closes it instead.
func (p *Pool) Release(c *Connection, outcome Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !outcome.Clean || !c.knownGood {
		p.mu.Unlock()
		c.Close() //nolint:errcheck
		p.mu.Lock()
		return
	}

	list := p.free[c.Origin]
	if len(list) >= p.freeCap {
		p.mu.Unlock()
		c.Close() //nolint:errcheck
		p.mu.Lock()
		return
	}
	c.lastUsed = time.Now()
	p.free[c.Origin] = append(list, c)
}

// Discard closes c without considering it for re-pooling, used by the
// pipeline's one-shot stale-socket retry.
func (p *Pool) Discard(c *Connection) {
	c.MarkBad()
	c.Close() //nolint:errcheck
}

// Close drops every free connection and forbids further Acquire calls.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for origin, list := range p.free {
		for _, c := range list {
			c.Close() //nolint:errcheck
		}
		delete(p.free, origin)
	}
	return nil
}
