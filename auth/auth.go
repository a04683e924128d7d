// Package auth implements hop's pluggable authentication schemes: Basic
// (RFC 7617), Bearer (RFC 6750), and Digest (RFC 7616), plus the
// extension point for user-defined schemes, modeled as a small interface
// rather than a base-class hierarchy.
package auth

import "net/http"

// Context carries the parts of a single hop a Scheme needs to compute its
// Authorization header: the method and the request-target (path?query).
type Context struct {
	Method string
	Target string
}

// Scheme applies credentials to an outgoing request and absorbs 401
// challenges. Implementations must be safe to Clone and reuse across
// hops of the same request, and across requests on the same Session.
type Scheme interface {
	// Apply sets whatever headers the scheme contributes to header for
	// the given hop context.
	Apply(header http.Header, ctx Context)

	// HandleChallenge inspects a 401 response's headers and updates any
	// internal state. It reports whether the caller should retry the
	// request once with the scheme re-applied.
	HandleChallenge(status int, header http.Header) (needsRetry bool)

	// Clone returns an independent copy, so that a session-level scheme
	// and a per-request override never share mutable challenge state.
	Clone() Scheme
}
