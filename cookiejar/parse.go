package cookiejar

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SetFromHeader parses one Set-Cookie header value per RFC 6265 §5.2 and
// stores the result, scoped to requestURL's host and default path.
//
// A cookie whose Domain attribute is not a suffix of the request host, or
// that names a bare public suffix other than the request host itself, is
// rejected rather than stored.
func (j *Jar) SetFromHeader(header string, requestURL *url.URL) error {
	c, expired, err := parseSetCookie(header, requestURL)
	if err != nil {
		return err
	}

	host := canonicalDomain(requestURL.Hostname())
	if c.Domain != host {
		if !domainMatch(host, c.Domain) {
			return fmt.Errorf("cookiejar: cookie domain %q is not a suffix of request host %q", c.Domain, host)
		}
		if isPublicSuffix(c.Domain) {
			return fmt.Errorf("cookiejar: refusing cookie scoped to public suffix %q", c.Domain)
		}
	}

	if expired {
		// Parsed to an already-expired cookie: RFC 6265 treats this as a
		// deletion instruction for any existing entry with that identity.
		j.Remove(c.Name, c.Domain, c.Path)
		return nil
	}
	j.Set(*c)
	return nil
}

// parseSetCookie parses a single Set-Cookie value. expired reports that
// the cookie parsed but has already expired (Max-Age<=0 or Expires in the
// past): callers should treat that as "remove, don't store".
func parseSetCookie(header string, requestURL *url.URL) (*Cookie, bool, error) {
	parts := strings.Split(header, ";")
	if len(parts) == 0 {
		return nil, false, fmt.Errorf("cookiejar: empty Set-Cookie value")
	}

	nameValue := strings.TrimSpace(parts[0])
	eq := strings.IndexByte(nameValue, '=')
	if eq < 0 {
		return nil, false, fmt.Errorf("cookiejar: Set-Cookie missing '=' in %q", nameValue)
	}
	name := strings.TrimSpace(nameValue[:eq])
	value := strings.TrimSpace(nameValue[eq+1:])
	if name == "" {
		return nil, false, fmt.Errorf("cookiejar: Set-Cookie has empty name")
	}

	c := &Cookie{Name: name, Value: value}

	var (
		haveMaxAge bool
		expired    bool
	)

	for _, raw := range parts[1:] {
		attr := strings.TrimSpace(raw)
		if attr == "" {
			continue
		}
		var attrName, attrValue string
		if idx := strings.IndexByte(attr, '='); idx >= 0 {
			attrName = strings.TrimSpace(attr[:idx])
			attrValue = strings.TrimSpace(attr[idx+1:])
		} else {
			attrName = attr
		}

		switch strings.ToLower(attrName) {
		case "expires":
			if haveMaxAge {
				continue // Max-Age takes precedence over Expires.
			}
			t, err := http.ParseTime(attrValue)
			if err != nil {
				continue // Unparseable Expires is ignored, not fatal.
			}
			c.Expires = t.UTC()
			if !t.After(time.Now()) {
				expired = true
			}
		case "max-age":
			seconds, err := strconv.Atoi(attrValue)
			if err != nil {
				continue
			}
			haveMaxAge = true
			expired = seconds <= 0
			if seconds <= 0 {
				c.Expires = time.Unix(0, 0).UTC()
			} else {
				c.Expires = time.Now().Add(time.Duration(seconds) * time.Second).UTC()
			}
		case "domain":
			domain := strings.TrimPrefix(attrValue, ".")
			c.Domain = canonicalDomain(domain)
		case "path":
			if strings.HasPrefix(attrValue, "/") {
				c.Path = attrValue
			}
		case "secure":
			c.Secure = true
		case "httponly":
			c.HTTPOnly = true
		case "samesite":
			switch strings.ToLower(attrValue) {
			case "lax":
				c.SameSite = SameSiteLax
			case "strict":
				c.SameSite = SameSiteStrict
			default:
				c.SameSite = SameSiteNone
			}
		}
	}

	if c.Domain == "" {
		c.Domain = canonicalDomain(requestURL.Hostname())
	}
	if c.Path == "" {
		c.Path = defaultPath(requestURL.Path)
	}

	return c, expired, nil
}

// defaultPath derives the default cookie path per RFC 6265 §5.1.4: up to
// but not including the request URL path's last '/', or "/" if there is
// none.
func defaultPath(requestPath string) string {
	if requestPath == "" || requestPath[0] != '/' {
		return "/"
	}
	i := strings.LastIndexByte(requestPath, '/')
	if i == 0 {
		return "/"
	}
	return requestPath[:i]
}
