// Package session defines the cookie attributes used by the session
// subsystem and the pure construction of session cookies from them.
//
// The handler and middleware packages both consume this package, so it
// must not import either of them.
package session

import (
	"net/http"
	"time"
)

// Default cookie attribute values, used by config when the corresponding
// environment variables are not set.
const (
	// DefaultCookieName is the name of the cookie that stores the session token.
	DefaultCookieName = "gatehouse_session"

	// DefaultCookiePath ensures the cookie is sent with all requests.
	DefaultCookiePath = "/"

	// DefaultTimeout is the default cookie lifetime in minutes (7 days).
	// This should match the session duration configured in the user service.
	DefaultTimeout = 7 * 24 * 60
)

// Settings holds the attributes applied to every cookie the session
// subsystem generates. Instances are built once at configuration time and
// read many times; treat them as immutable after construction.
//
// Cookies provide no isolation by port or by scheme: a cookie readable by a
// service on one port of a host is readable by services on every other port
// of that host.
//
// WARNING: Do not create multiple Settings with equal Name but different
// Domain/Path expecting consumers to tell the resulting cookies apart. User
// agents send only the name/value pair with requests, so in several cases
// the right cookie cannot be identified. This hazard is documented, not
// enforced.
type Settings struct {
	// Timeout is the lifetime of generated cookies, in minutes.
	//
	// The expiration date is recomputed every time a cookie is generated.
	// When zero, generated cookies carry no expiration and are discarded at
	// the end of the user agent's session.
	Timeout int

	// HttpOnly marks generated cookies as inaccessible to non-HTTP contexts
	// (e.g., scripting engines in the user agent). Turn this on for cookies
	// that store sensitive data.
	HttpOnly bool

	// Secure restricts generated cookies to secure transport channels
	// (typically HTTP over TLS). Note this protects confidentiality only:
	// an active network attacker can still overwrite secure cookies from an
	// insecure channel.
	Secure bool

	// Name is the cookie's identifying key. Required in practice, though
	// not validated here; validation belongs to whatever serializes the
	// cookie to wire format.
	Name string

	// Path is the request-path scope of generated cookies. When empty, the
	// user agent chooses a default based on the current request's path.
	// See PathMatches for the matching rules consumers must honor.
	Path string

	// Domain is the host scope of generated cookies. Subdomains are
	// included: "example.com" also covers "www.example.com". When empty,
	// the user agent sends the cookie only to the exact origin host.
	Domain string
}

// NewCookie creates a cookie from the given settings, using value as the
// cookie's value.
//
// It is a pure function of its inputs and, when settings.Timeout is
// nonzero, the current wall-clock time. No validation is performed;
// malformed names or values are rejected later by net/http's serializer.
func NewCookie(settings Settings, value string) *http.Cookie {
	cookie := &http.Cookie{
		Name:  settings.Name,
		Value: value,
	}

	if settings.Timeout != 0 {
		cookie.Expires = time.Now().UTC().Add(time.Duration(settings.Timeout) * time.Minute)
	}
	cookie.HttpOnly = settings.HttpOnly
	cookie.Secure = settings.Secure
	if settings.Domain != "" {
		cookie.Domain = settings.Domain
	}
	if settings.Path != "" {
		cookie.Path = settings.Path
	}

	return cookie
}

// Cookie creates a cookie from these settings, using value as the cookie's
// value. It is a convenience wrapper around NewCookie.
func (s Settings) Cookie(value string) *http.Cookie {
	return NewCookie(s, value)
}
