// Package cookiejar implements an RFC 6265-compliant in-memory cookie jar.
//
// Unlike net/http/cookiejar, Jar.SerializeHeader orders cookies by path
// length descending, then by insertion order, and a Jar can be queried
// and mutated directly (Set, Remove, RemoveExpired) rather than only
// through the http.CookieJar Cookies/SetCookies pair.
package cookiejar

import "time"

// SameSite mirrors the three values a Set-Cookie SameSite attribute can
// carry.
type SameSite int

const (
	SameSiteNone SameSite = iota
	SameSiteLax
	SameSiteStrict
)

// Cookie is one stored cookie. Expires is the zero time.Time for a
// session cookie (no Expires/Max-Age attribute was given).
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
	SameSite SameSite
}

// Expired reports whether c has a set expiry in the past relative to now.
func (c Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && now.After(c.Expires)
}

// key is the jar's uniqueness triple: (name, domain, path).
type key struct {
	name, domain, path string
}
