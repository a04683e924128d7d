package hop

import (
	"crypto/tls"
	"net/http"
	"time"

	null "gopkg.in/guregu/null.v3"

	"github.com/gohop/hop/auth"
)

// Options carries the per-request overrides accepted by Request and
// its convenience wrappers. Every field is independent and optional;
// the zero value means "inherit the session default".
type Options struct {
	// Headers are merged over the session's default headers: a name
	// present here overrides the session default of the same name.
	Headers http.Header

	// JSON, if non-empty, becomes the request body and sets
	// Content-Type: application/json unless Headers already set one.
	JSON string

	// Data, if non-empty, becomes the request body and sets
	// Content-Type: application/x-www-form-urlencoded unless Headers
	// already set one.
	Data string

	// Timeout overrides the session default when non-zero.
	Timeout time.Duration

	// MaxRedirects overrides the session default when valid.
	MaxRedirects null.Int

	// AllowRedirects overrides following redirects at all; an invalid
	// (unset) value means follow them (the session-wide default).
	AllowRedirects null.Bool

	// Verify overrides the session's TLS verification config for this
	// call only.
	Verify *tls.Config

	// Auth overrides the session's default auth scheme for this call
	// only.
	Auth auth.Scheme
}

func (o Options) body() (string, string) {
	switch {
	case o.JSON != "":
		return o.JSON, "application/json"
	case o.Data != "":
		return o.Data, "application/x-www-form-urlencoded"
	default:
		return "", ""
	}
}
