// Package handler contains the HTTP handlers for the JSON API.
//
// Handlers are responsible for:
// - Decoding and validating request bodies
// - Calling the service layer
// - Translating domain errors to HTTP responses
// - Managing the session and CSRF cookies
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/gatehouse/internal/auth"
	"github.com/DukeRupert/gatehouse/internal/csrf"
	"github.com/DukeRupert/gatehouse/internal/domain"
	"github.com/DukeRupert/gatehouse/internal/middleware"
	"github.com/DukeRupert/gatehouse/internal/service"
	"github.com/DukeRupert/gatehouse/internal/session"
	"github.com/google/uuid"
)

// maxRequestBody caps request body size to keep JSON decoding cheap.
const maxRequestBody = 1 << 20 // 1 MB

// =============================================================================
// Handler Definition
// =============================================================================

// AuthHandler handles account and session endpoints.
//
// Routes handled:
// - POST /api/register  -> Register
// - POST /api/login     -> Login
// - POST /api/logout    -> Logout
// - GET  /api/me        -> Me
// - GET  /api/sessions  -> ListSessions
// - POST /api/password  -> ChangePassword
// - GET  /api/csrf      -> CSRFToken
type AuthHandler struct {
	userService service.UserService
	authLimiter *middleware.AuthRateLimiter
	settings    session.Settings
	logger      *slog.Logger
	isSecure    bool
}

// NewAuthHandler creates a new AuthHandler with the required dependencies.
//
// Parameters:
// - userService: Service for user-related operations
// - authLimiter: Per-endpoint rate limiter for the auth surface
// - settings: Session cookie configuration shared with the auth middleware
// - logger: Structured logger for request logging
// - isSecure: Set to true in production (enables Secure flag on the CSRF cookie)
func NewAuthHandler(
	userService service.UserService,
	authLimiter *middleware.AuthRateLimiter,
	settings session.Settings,
	logger *slog.Logger,
	isSecure bool,
) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		authLimiter: authLimiter,
		settings:    settings,
		logger:      logger,
		isSecure:    isSecure,
	}
}

// =============================================================================
// Request / Response Types
// =============================================================================

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// userResponse is the public view of a user. The password hash never
// leaves the service layer, but the shape is explicit anyway.
type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	ID        uuid.UUID `json:"id"`
	UserAgent string    `json:"user_agent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	}
}

// =============================================================================
// POST /api/register
// =============================================================================

// Register creates a new user account.
//
// Request body: {"name": "...", "email": "...", "password": "..."}
//
// Responses:
// - 201 with the created user
// - 400 for malformed JSON or validation failures
// - 409 when the email is already registered
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("AuthHandler.Register", "Request body must be valid JSON"))
		return
	}

	user, err := h.userService.Register(r.Context(), domain.RegisterParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": toUserResponse(user)})
}

// =============================================================================
// POST /api/login
// =============================================================================

// Login authenticates a user and starts a session.
//
// Request body: {"email": "...", "password": "..."}
//
// On success the session token is delivered in the session cookie and the
// CSRF cookie is rotated. The raw token is never included in the body.
//
// Failed attempts count against the per-IP login limit.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("AuthHandler.Login", "Request body must be valid JSON"))
		return
	}

	clientIP := middleware.ClientIP(r)

	result, err := h.userService.Login(r.Context(), domain.LoginParams{
		Email:    req.Email,
		Password: req.Password,
		Metadata: domain.SessionMetadata{
			UserAgent: r.UserAgent(),
			IP:        clientIP,
		},
	})
	if err != nil {
		if domain.ErrorCode(err) == domain.EUNAUTHORIZED {
			h.authLimiter.RecordFailedLogin(clientIP)
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.authLimiter.ResetLogin(clientIP)

	middleware.SetSessionCookie(w, h.settings, result.Token)
	// Rotate the CSRF token so it is never shared across accounts
	csrf.RefreshToken(w, h.isSecure)

	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(result.User)})
}

// =============================================================================
// POST /api/logout
// =============================================================================

// Logout ends the current session and clears the session cookie.
// Logout is idempotent: a missing or invalid cookie still returns 204.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.settings.Name); err == nil && cookie.Value != "" {
		if err := h.userService.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("logout failed", "error", err)
		}
	}

	middleware.ClearSessionCookie(w, h.settings)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// GET /api/me
// =============================================================================

// Me returns the authenticated user. Mount behind RequireUser.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}

// =============================================================================
// GET /api/sessions
// =============================================================================

// ListSessions returns the authenticated user's active sessions, newest
// first. Mount behind RequireUser.
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	sessions, err := h.userService.ListSessions(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, sessionResponse{
			ID:        s.ID,
			UserAgent: s.Metadata.UserAgent,
			IP:        s.Metadata.IP,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": resp})
}

// =============================================================================
// POST /api/password
// =============================================================================

// ChangePassword updates the authenticated user's password.
//
// Request body: {"current_password": "...", "new_password": "..."}
//
// All of the user's sessions are invalidated on success, including the one
// that made this request, so the session cookie is cleared and the client
// must log in again.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("AuthHandler.ChangePassword", "Request body must be valid JSON"))
		return
	}

	err := h.userService.ChangePassword(r.Context(), domain.PasswordChangeParams{
		UserID:          user.ID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	middleware.ClearSessionCookie(w, h.settings)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// GET /api/csrf
// =============================================================================

// CSRFToken issues (or returns the existing) CSRF token. Clients call this
// once before their first mutating request and echo the token in the
// X-CSRF-Token header afterwards.
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token := csrf.EnsureToken(w, r, h.isSecure)
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers all auth routes on the provided ServeMux.
// The auth middleware supplies RequireUser for the authenticated endpoints;
// login and register carry their per-IP rate limits.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, authMw *middleware.AuthMiddleware) {
	mux.Handle("POST /api/register", h.authLimiter.LimitRegister(http.HandlerFunc(h.Register)))
	mux.Handle("POST /api/login", h.authLimiter.LimitLogin(http.HandlerFunc(h.Login)))
	mux.Handle("POST /api/logout", http.HandlerFunc(h.Logout))
	mux.Handle("GET /api/me", authMw.RequireUser(http.HandlerFunc(h.Me)))
	mux.Handle("GET /api/sessions", authMw.RequireUser(http.HandlerFunc(h.ListSessions)))
	mux.Handle("POST /api/password", authMw.RequireUser(http.HandlerFunc(h.ChangePassword)))
	mux.Handle("GET /api/csrf", http.HandlerFunc(h.CSRFToken))
}

// =============================================================================
// Helpers
// =============================================================================

// decodeJSON decodes a request body into dst, rejecting oversized bodies
// and trailing garbage.
func decodeJSON(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxRequestBody)
	dec := json.NewDecoder(body)

	if err := dec.Decode(dst); err != nil {
		return err
	}

	// A second decode must hit EOF, otherwise the body held more than one value
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}

	return nil
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
