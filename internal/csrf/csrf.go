// Package csrf provides CSRF protection using the double-submit cookie pattern.
//
// The double-submit cookie pattern works by:
// 1. Setting a random token in a cookie (not HttpOnly, so JS can read it)
// 2. Sending the same token back in the X-CSRF-Token request header
// 3. On mutating requests, comparing the cookie value with the header value
//
// This is secure because:
// - Attackers can make the browser send cookies with cross-origin requests
// - But attackers cannot read/set cookies for our domain (same-origin policy)
// - So they cannot include the correct token in the request header
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/DukeRupert/gatehouse/internal/session"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// CookieName is the name of the CSRF token cookie.
	CookieName = "gatehouse_csrf"

	// HeaderName is the request header clients echo the token back in.
	HeaderName = "X-CSRF-Token"

	// TokenLength is the number of random bytes for the token (32 bytes = 256 bits).
	TokenLength = 32

	// CookieTimeoutMinutes is the lifetime of the CSRF cookie (1 hour).
	// This is shorter than session cookies since CSRF tokens should be refreshed.
	CookieTimeoutMinutes = 60
)

// cookieSettings describes the CSRF cookie. HttpOnly stays false so
// client-side code can read the token and echo it in the header.
func cookieSettings(isSecure bool) session.Settings {
	return session.Settings{
		Timeout:  CookieTimeoutMinutes,
		HttpOnly: false,
		Secure:   isSecure,
		Name:     CookieName,
		Path:     "/",
	}
}

// =============================================================================
// Token Generation
// =============================================================================

// GenerateToken generates a cryptographically secure random token.
//
// The token is 32 bytes of random data, base64 URL-encoded.
// This produces a 43-character string.
func GenerateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// MustGenerateToken generates a token or panics.
// Use this only in contexts where crypto/rand failure would be
// catastrophic anyway.
func MustGenerateToken() string {
	token, err := GenerateToken()
	if err != nil {
		panic("csrf: failed to generate token: " + err.Error())
	}
	return token
}

// =============================================================================
// Token Validation
// =============================================================================

// ValidateToken compares the cookie token with the header token.
//
// Uses constant-time comparison to prevent timing attacks.
// Returns true if tokens match, false otherwise.
func ValidateToken(cookieToken, headerToken string) bool {
	if cookieToken == "" || headerToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) == 1
}

// ValidateRequest validates the CSRF token from a request.
//
// It reads the token from:
// - Cookie: the gatehouse_csrf cookie
// - Header: the X-CSRF-Token request header
//
// Returns true if the tokens match, false otherwise.
func ValidateRequest(r *http.Request) bool {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}

	return ValidateToken(cookie.Value, r.Header.Get(HeaderName))
}

// =============================================================================
// Cookie Management
// =============================================================================

// SetCookie sets the CSRF token cookie on the response.
//
// SameSite is Strict for maximum CSRF protection; the session cookie
// uses Lax so top-level navigation still authenticates.
func SetCookie(w http.ResponseWriter, token string, isSecure bool) {
	cookie := cookieSettings(isSecure).Cookie(token)
	cookie.MaxAge = CookieTimeoutMinutes * 60
	cookie.SameSite = http.SameSiteStrictMode
	http.SetCookie(w, cookie)
}

// GetTokenFromRequest retrieves the CSRF token from the request cookie.
// Returns empty string if cookie doesn't exist.
func GetTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// =============================================================================
// Handler Helpers
// =============================================================================

// EnsureToken ensures a CSRF token exists for the request.
// If a valid token cookie exists, it returns that token.
// Otherwise, it generates a new token, sets the cookie, and returns it.
func EnsureToken(w http.ResponseWriter, r *http.Request, isSecure bool) string {
	existingToken := GetTokenFromRequest(r)
	if existingToken != "" {
		return existingToken
	}

	token := MustGenerateToken()
	SetCookie(w, token, isSecure)

	return token
}

// RefreshToken generates a new CSRF token and sets it in the response cookie.
// Use this after successful logins to prevent token fixation across users.
func RefreshToken(w http.ResponseWriter, isSecure bool) string {
	token := MustGenerateToken()
	SetCookie(w, token, isSecure)
	return token
}

// =============================================================================
// Middleware
// =============================================================================

// Protect returns middleware that rejects mutating requests whose header
// token does not match the cookie token. Safe methods pass through.
func Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if !ValidateRequest(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "invalid_csrf_token",
				"message": "CSRF token missing or invalid.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
