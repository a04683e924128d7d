package auth

import "net/http"

// Bearer implements RFC 6750 Bearer authentication. Stateless, like Basic.
type Bearer struct {
	Token string
}

// Apply sets Authorization: Bearer <token>.
func (b Bearer) Apply(header http.Header, _ Context) {
	header.Set("Authorization", "Bearer "+b.Token)
}

// HandleChallenge is a no-op.
func (b Bearer) HandleChallenge(int, http.Header) bool { return false }

// Clone returns b itself, since Bearer holds no mutable state.
func (b Bearer) Clone() Scheme { return b }
