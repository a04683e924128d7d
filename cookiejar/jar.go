package cookiejar

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// entry pairs a stored Cookie with the bookkeeping the jar needs for its
// serialization order (path length descending, then insertion order)
// without mutating the Cookie itself.
type entry struct {
	cookie   Cookie
	inserted int64 // monotonically increasing insertion sequence
}

// Jar is a set of cookies unique on (name, domain, path). It is safe for
// concurrent use, so a Jar may reasonably be shared across sessions.
type Jar struct {
	mu      sync.Mutex
	entries map[key]entry
	seq     int64
}

// New returns an empty Jar.
func New() *Jar {
	return &Jar{entries: make(map[key]entry)}
}

// Set inserts c, replacing any existing cookie with the same
// (name, domain, path) triple.
func (j *Jar) Set(c Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.setLocked(c)
}

func (j *Jar) setLocked(c Cookie) {
	k := key{name: c.Name, domain: canonicalDomain(c.Domain), path: c.Path}
	j.seq++
	j.entries[k] = entry{cookie: c, inserted: j.seq}
}

// Remove deletes the cookie identified by (name, domain). If path is
// non-empty it narrows the match to that exact path too; otherwise every
// cookie with that name and domain, regardless of path, is removed.
func (j *Jar) Remove(name, domain string, path ...string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	domain = canonicalDomain(domain)
	if len(path) > 0 && path[0] != "" {
		delete(j.entries, key{name: name, domain: domain, path: path[0]})
		return
	}
	for k := range j.entries {
		if k.name == name && k.domain == domain {
			delete(j.entries, k)
		}
	}
}

// RemoveExpired deletes every cookie whose expiry is in the past.
func (j *Jar) RemoveExpired() {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := time.Now()
	for k, e := range j.entries {
		if e.cookie.Expired(now) {
			delete(j.entries, k)
		}
	}
}

// Clear empties the jar.
func (j *Jar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = make(map[key]entry)
}

// Size returns the number of stored cookies, expired or not.
func (j *Jar) Size() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// All returns every stored cookie in undefined order. Expired cookies are
// included; callers wanting only live cookies should call RemoveExpired
// first or use GetFor.
func (j *Jar) All() []Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Cookie, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e.cookie)
	}
	return out
}

// GetFor returns the cookies that match u per RFC 6265 §5.1.3/§5.1.4,
// ordered by path length descending, ties broken by insertion order.
func (j *Jar) GetFor(u *url.URL) []Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	host := canonicalDomain(u.Hostname())
	path := u.Path
	if path == "" {
		path = "/"
	}
	isHTTPS := strings.EqualFold(u.Scheme, "https")
	now := time.Now()

	matches := make([]entry, 0)
	for _, e := range j.entries {
		c := e.cookie
		if c.Expired(now) {
			continue
		}
		if !domainMatch(host, c.Domain) {
			continue
		}
		if !pathMatch(path, c.Path) {
			continue
		}
		if c.Secure && !isHTTPS {
			continue
		}
		matches = append(matches, e)
	}

	sort.SliceStable(matches, func(i, k int) bool {
		li, lk := len(matches[i].cookie.Path), len(matches[k].cookie.Path)
		if li != lk {
			return li > lk
		}
		return matches[i].inserted < matches[k].inserted
	})

	out := make([]Cookie, len(matches))
	for i, e := range matches {
		out[i] = e.cookie
	}
	return out
}

// SerializeHeader renders GetFor(u) as a Cookie header value, or "" if
// there is nothing to send.
func (j *Jar) SerializeHeader(u *url.URL) string {
	cookies := j.GetFor(u)
	if len(cookies) == 0 {
		return ""
	}
	parts := make([]string, len(cookies))
	for i, c := range cookies {
		parts[i] = c.Name + "=" + c.Value
	}
	return strings.Join(parts, "; ")
}

// domainMatch implements RFC 6265 §5.1.3: exact equality, or cookieDomain
// preceded by a dot is a suffix of host.
func domainMatch(host, cookieDomain string) bool {
	if host == cookieDomain {
		return true
	}
	return strings.HasSuffix(host, "."+cookieDomain)
}

// pathMatch implements RFC 6265 §5.1.4.
func pathMatch(requestPath, cookiePath string) bool {
	if requestPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	if cookiePath != "" && cookiePath[len(cookiePath)-1] == '/' {
		return true
	}
	return requestPath[len(cookiePath)] == '/'
}

// canonicalDomain lowercases and punycode-normalizes host, so that jar
// keys and domain-matching are stable across non-ASCII hosts.
func canonicalDomain(host string) string {
	host = strings.ToLower(host)
	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}
	return strings.TrimSuffix(host, ".")
}

// isPublicSuffix reports whether domain is itself a public suffix (e.g.
// "com", "co.uk"), in which case a cookie scoped to exactly that domain
// must be rejected.
func isPublicSuffix(domain string) bool {
	suffix := publicsuffix.PublicSuffix(domain)
	return suffix == domain
}
