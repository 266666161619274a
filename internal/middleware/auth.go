// Package middleware contains HTTP middleware for the Gatehouse service.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/DukeRupert/gatehouse/internal/auth"
	"github.com/DukeRupert/gatehouse/internal/service"
	"github.com/DukeRupert/gatehouse/internal/session"
)

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// AuthMiddleware provides authentication middleware functionality.
//
// The session cookie is described by a session.Settings value: its Name
// selects the cookie on incoming requests, its Path/Domain scope is checked
// against the request before the cookie is honored, and outgoing cookies
// are materialized through the settings' builder.
type AuthMiddleware struct {
	userService service.UserService
	settings    session.Settings
	logger      *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
//
// Parameters:
// - userService: Service for user and session operations
// - settings: Cookie attributes for the session cookie
// - logger: Structured logger for auth events
func NewAuthMiddleware(userService service.UserService, settings session.Settings, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		userService: userService,
		settings:    settings,
		logger:      logger,
	}
}

// =============================================================================
// WithUser Middleware
// =============================================================================

// WithUser is middleware that attempts to load the user from the session cookie.
//
// This middleware:
// 1. Checks for a session cookie that applies to this request's path and host
// 2. If found, validates the session and loads the user
// 3. Stores the user in the request context
// 4. Continues to the next handler regardless of authentication status
//
// Use this middleware on routes that work both authenticated and
// unauthenticated. The user can be retrieved in handlers using:
//
//	user := auth.GetUser(r.Context())
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := m.sessionToken(r)
		if !ok {
			// No applicable cookie - continue without user
			next.ServeHTTP(w, r)
			return
		}

		// Validate session and get user
		user, err := m.userService.GetBySessionToken(r.Context(), token)
		if err != nil {
			// Invalid or expired session - clear the cookie and continue
			ClearSessionCookie(w, m.settings)
			next.ServeHTTP(w, r)
			return
		}

		ctx := auth.SetUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// =============================================================================
// RequireUser Middleware
// =============================================================================

// RequireUser is middleware that requires an authenticated user.
//
// This middleware checks if a user is present in the context (set by
// WithUser) and returns 401 with a JSON error body otherwise.
//
// IMPORTANT: This middleware must be used AFTER WithUser in the middleware chain.
//
// Usage:
//
//	requireUser := middleware.Stack(authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /api/me", requireUser(meHandler))
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUser(r.Context())
		if user == nil {
			m.logger.Info("unauthenticated request", "path", r.URL.Path, "method", r.Method)
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sessionToken extracts the session token from the request, honoring the
// cookie's configured scope.
//
// User agents send only the name/value pair, so the scope check works the
// other way around: the request's path and host are matched against the
// settings' Path and Domain, and the cookie is ignored when this service is
// being addressed outside the scope it issues cookies for.
func (m *AuthMiddleware) sessionToken(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(m.settings.Name)
	if err != nil {
		return "", false
	}

	if m.settings.Path != "" && !session.PathMatches(r.URL.Path, m.settings.Path) {
		return "", false
	}

	if m.settings.Domain != "" && !session.DomainMatches(requestHost(r), m.settings.Domain) {
		return "", false
	}

	return cookie.Value, true
}

// requestHost returns the request's host with any port stripped.
func requestHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.Host); err == nil {
		return host
	}
	return r.Host
}

// writeUnauthorized writes a minimal JSON 401 response.
//
// The middleware package deliberately does not depend on the handler
// package's error helpers to keep the dependency direction one-way.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]map[string]string{
		"error": {
			"code":    "unauthorized",
			"message": "Authentication required",
		},
	})
}

// =============================================================================
// Cookie Helpers
// =============================================================================

// SetSessionCookie sets the session cookie on the response.
//
// The cookie is built from the configured settings (name, scope, flags,
// expiration) with the raw session token as its value. SameSite is fixed to
// Lax: it prevents CSRF on cross-site POSTs while allowing normal
// navigation, and it is a property of how this service uses the cookie
// rather than of the cookie settings themselves.
func SetSessionCookie(w http.ResponseWriter, settings session.Settings, token string) {
	cookie := settings.Cookie(token)
	cookie.SameSite = http.SameSiteLaxMode
	http.SetCookie(w, cookie)
}

// ClearSessionCookie removes the session cookie from the client.
//
// This is done by setting MaxAge to -1, which tells the browser to delete
// the cookie immediately. The deletion cookie must carry the same name,
// path and domain as the original or the user agent treats it as a
// different cookie.
func ClearSessionCookie(w http.ResponseWriter, settings session.Settings) {
	cookie := settings.Cookie("")
	cookie.Expires = time.Time{}
	cookie.MaxAge = -1 // Delete immediately
	cookie.SameSite = http.SameSiteLaxMode
	http.SetCookie(w, cookie)
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(loggingMw, authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /api/me", stack(meHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
