package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// =============================================================================
// Token Generation Tests
// =============================================================================

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}

	// 32 bytes base64 URL-encoded is 44 characters (with padding)
	if len(token) < 40 {
		t.Errorf("token too short: %d chars", len(token))
	}
}

func TestGenerateToken_Unique(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}

	if a == b {
		t.Error("two generated tokens should never collide")
	}
}

// =============================================================================
// Token Validation Tests
// =============================================================================

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name        string
		cookieToken string
		headerToken string
		want        bool
	}{
		{"matching tokens", "abc123", "abc123", true},
		{"mismatched tokens", "abc123", "xyz789", false},
		{"empty cookie token", "", "abc123", false},
		{"empty header token", "abc123", "", false},
		{"both empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateToken(tt.cookieToken, tt.headerToken); got != tt.want {
				t.Errorf("ValidateToken(%q, %q) = %v, want %v",
					tt.cookieToken, tt.headerToken, got, tt.want)
			}
		})
	}
}

func TestValidateRequest_MatchingTokens(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/logout", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "token-value"})
	req.Header.Set(HeaderName, "token-value")

	if !ValidateRequest(req) {
		t.Error("expected matching tokens to validate")
	}
}

func TestValidateRequest_NoCookie(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/logout", nil)
	req.Header.Set(HeaderName, "token-value")

	if ValidateRequest(req) {
		t.Error("expected validation to fail without cookie")
	}
}

func TestValidateRequest_NoHeader(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/logout", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "token-value"})

	if ValidateRequest(req) {
		t.Error("expected validation to fail without header")
	}
}

// =============================================================================
// Cookie Tests
// =============================================================================

func TestSetCookie(t *testing.T) {
	rec := httptest.NewRecorder()

	SetCookie(rec, "test-token", true)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}

	cookie := cookies[0]
	if cookie.Name != CookieName {
		t.Errorf("cookie.Name = %q, want %q", cookie.Name, CookieName)
	}
	if cookie.Value != "test-token" {
		t.Errorf("cookie.Value = %q, want %q", cookie.Value, "test-token")
	}
	if cookie.HttpOnly {
		t.Error("CSRF cookie must not be HttpOnly")
	}
	if !cookie.Secure {
		t.Error("expected Secure cookie when isSecure=true")
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Errorf("cookie.SameSite = %v, want Strict", cookie.SameSite)
	}
	if cookie.MaxAge != CookieTimeoutMinutes*60 {
		t.Errorf("cookie.MaxAge = %d, want %d", cookie.MaxAge, CookieTimeoutMinutes*60)
	}
	if cookie.Expires.IsZero() {
		t.Error("CSRF cookie should carry an expiration")
	}
}

func TestEnsureToken_ReusesExisting(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/csrf", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "existing-token"})
	rec := httptest.NewRecorder()

	token := EnsureToken(rec, req, false)

	if token != "existing-token" {
		t.Errorf("EnsureToken = %q, want existing token", token)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("no new cookie should be set when a token already exists")
	}
}

func TestEnsureToken_GeneratesNew(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/csrf", nil)
	rec := httptest.NewRecorder()

	token := EnsureToken(rec, req, false)

	if token == "" {
		t.Fatal("expected a token to be generated")
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	if cookies[0].Value != token {
		t.Error("cookie value should match returned token")
	}
}

func TestRefreshToken_ReplacesToken(t *testing.T) {
	rec := httptest.NewRecorder()

	token := RefreshToken(rec, false)

	if token == "" {
		t.Fatal("expected a token to be generated")
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	if cookies[0].Value != token {
		t.Error("cookie value should match returned token")
	}
}

// =============================================================================
// Middleware Tests
// =============================================================================

func TestProtect_AllowsSafeMethods(t *testing.T) {
	handler := Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, method := range []string{"GET", "HEAD", "OPTIONS"} {
		req := httptest.NewRequest(method, "/api/me", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", method, rec.Code)
		}
	}
}

func TestProtect_RejectsMutationWithoutToken(t *testing.T) {
	handler := Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be called without a valid token")
	}))

	req := httptest.NewRequest("POST", "/api/logout", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestProtect_AllowsMutationWithMatchingToken(t *testing.T) {
	handlerCalled := false
	handler := Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/api/logout", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "token-value"})
	req.Header.Set(HeaderName, "token-value")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !handlerCalled {
		t.Error("handler should have been called")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
