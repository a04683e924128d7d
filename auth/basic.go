package auth

import (
	"encoding/base64"
	"net/http"
)

// Basic implements RFC 7617 Basic authentication. It is stateless:
// HandleChallenge never requests a retry.
type Basic struct {
	Username string
	Password string
}

// Apply sets Authorization: Basic <base64(username ":" password)>.
func (b Basic) Apply(header http.Header, _ Context) {
	creds := b.Username + ":" + b.Password
	header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(creds)))
}

// HandleChallenge is a no-op: Basic credentials don't change in response
// to a 401.
func (b Basic) HandleChallenge(int, http.Header) bool { return false }

// Clone returns b itself, since Basic holds no mutable state.
func (b Basic) Clone() Scheme { return b }
