package estateauth_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ea "github.com/panyam/estateauth"
)

func newAPIServer(t *testing.T, env *testEnv, configure func(*ea.API)) *httptest.Server {
	t.Helper()
	api := &ea.API{
		Auth:               env.Auth,
		DefaultRedirectURL: "https://catalog.example.com",
		Logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if configure != nil {
		configure(api)
	}
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestAPIRegisterRefreshReplay(t *testing.T) {
	env := newTestEnv(t)
	server := newAPIServer(t, env, nil)

	resp := doJSON(t, http.MethodPost, server.URL+"/auth/register",
		`{"email":"alice@example.com","name":"Alice","password":"Secure1!"}`, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
	registered := decodeBody[ea.AuthResult](t, resp)
	if registered.User.Role != ea.RoleOwner || registered.User.Email != "alice@example.com" {
		t.Errorf("unexpected user: %+v", registered.User)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/auth/refresh-token",
		`{"refreshToken":"`+registered.RefreshToken+`"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200", resp.StatusCode)
	}
	refreshed := decodeBody[ea.RefreshResult](t, resp)
	if refreshed.RefreshToken == "" || refreshed.RefreshToken == registered.RefreshToken {
		t.Error("refresh token was not rotated")
	}
	if refreshed.ExpiresIn <= 0 {
		t.Errorf("expiresIn = %d", refreshed.ExpiresIn)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/auth/refresh-token",
		`{"refreshToken":"`+registered.RefreshToken+`"}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replayed refresh status = %d, want 401", resp.StatusCode)
	}
	body := decodeBody[ea.ErrorBody](t, resp)
	if body.Error != "invalid_grant" {
		t.Errorf("error = %q, want invalid_grant", body.Error)
	}
}

func TestAPIErrorResponses(t *testing.T) {
	env := newTestEnv(t)
	server := newAPIServer(t, env, nil)
	env.register(t, "alice@example.com", "Alice", "Secure1!")

	tests := []struct {
		name      string
		path      string
		body      string
		wantCode  int
		wantError string
		wantField string
	}{
		{"malformed body", "/auth/register", `{"email":`, http.StatusBadRequest, "invalid_request", ""},
		{"weak password", "/auth/register", `{"email":"bob@example.com","password":"weak"}`, http.StatusBadRequest, "invalid_request", "password"},
		{"bad email", "/auth/register", `{"email":"bob","password":"Secure1!"}`, http.StatusBadRequest, "invalid_request", "email"},
		{"duplicate", "/auth/register", `{"email":"alice@example.com","password":"Secure1!"}`, http.StatusBadRequest, "conflict", "email"},
		{"wrong password", "/auth/login", `{"email":"alice@example.com","password":"Wrong1!!"}`, http.StatusUnauthorized, "invalid_grant", ""},
		{"unknown email", "/auth/login", `{"email":"zed@example.com","password":"Secure1!"}`, http.StatusUnauthorized, "invalid_grant", ""},
		{"empty code", "/auth/google-login", `{"code":""}`, http.StatusBadRequest, "invalid_request", "code"},
		{"rejected code", "/auth/google-login", `{"code":"nope"}`, http.StatusUnauthorized, "upstream_auth_failed", ""},
		{"missing refresh token", "/auth/refresh-token", `{}`, http.StatusUnauthorized, "invalid_grant", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, server.URL+tt.path, tt.body, nil)
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			body := decodeBody[ea.ErrorBody](t, resp)
			if body.Error != tt.wantError {
				t.Errorf("error = %q, want %q", body.Error, tt.wantError)
			}
			if body.Field != tt.wantField {
				t.Errorf("field = %q, want %q", body.Field, tt.wantField)
			}
		})
	}
}

func TestAPILoginAndMe(t *testing.T) {
	env := newTestEnv(t)
	server := newAPIServer(t, env, nil)
	env.register(t, "alice@example.com", "Alice", "Secure1!")

	resp := doJSON(t, http.MethodPost, server.URL+"/auth/login", `{"email":"Alice@example.com","password":"Secure1!"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	result := decodeBody[ea.AuthResult](t, resp)

	resp = doJSON(t, http.MethodGet, server.URL+"/auth/me", "", bearer(result.AccessToken))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("me Content-Type = %q, want application/json", ct)
	}
	me := decodeBody[ea.UserSummary](t, resp)
	if me.ID != result.User.ID || me.Email != "alice@example.com" {
		t.Errorf("unexpected /me: %+v", me)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/auth/me", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("me without token status = %d, want 401", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Error("expected a WWW-Authenticate challenge")
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/auth/login", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /auth/login status = %d, want 405", resp.StatusCode)
	}
}

func TestAPILogoutAcceptsExpiredAccessToken(t *testing.T) {
	env := newTestEnv(t)
	server := newAPIServer(t, env, nil)
	result := env.register(t, "alice@example.com", "Alice", "Secure1!")

	env.Clock.Advance(2 * time.Hour)

	resp := doJSON(t, http.MethodGet, server.URL+"/auth/me", "", bearer(result.AccessToken))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("me with expired token status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/auth/logout", "", bearer(result.AccessToken))
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/auth/refresh-token", `{"refreshToken":"`+result.RefreshToken+`"}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/auth/logout", "", bearer("forged.token.value"))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("logout with forged token status = %d, want 401", resp.StatusCode)
	}
}

func TestAPIGoogleLoginRedirectURI(t *testing.T) {
	env := newTestEnv(t)
	server := newAPIServer(t, env, nil)
	env.OAuth.accept("code-1", &ea.OAuthIdentity{Subject: "g-1", Email: "gina@example.com", EmailVerified: true, Name: "Gina"})

	resp := doJSON(t, http.MethodPost, server.URL+"/auth/google-login", `{"code":"code-1"}`,
		map[string]string{"Origin": "https://app.example.com"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("google-login status = %d, want 200", resp.StatusCode)
	}
	if env.OAuth.redirect() != "https://app.example.com" {
		t.Errorf("redirect uri = %q, want the request origin", env.OAuth.redirect())
	}
	result := decodeBody[ea.AuthResult](t, resp)
	if result.User.Email != "gina@example.com" {
		t.Errorf("unexpected user: %+v", result.User)
	}

	doJSON(t, http.MethodPost, server.URL+"/auth/google-login", `{"code":"code-1"}`, nil)
	if env.OAuth.redirect() != "https://catalog.example.com" {
		t.Errorf("redirect uri = %q, want the default", env.OAuth.redirect())
	}
}

func TestAPILoginRateLimit(t *testing.T) {
	env := newTestEnv(t)
	server := newAPIServer(t, env, func(api *ea.API) { api.LoginRateLimit = 2 })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := doJSON(t, http.MethodPost, server.URL+"/auth/login", `{"email":"a@example.com","password":"x"}`, nil)
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusUnauthorized || codes[1] != http.StatusUnauthorized {
		t.Errorf("first attempts = %v, want 401s", codes[:2])
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third attempt = %d, want 429", codes[2])
	}
}

func TestAPIBodyLimit(t *testing.T) {
	env := newTestEnv(t)
	server := newAPIServer(t, env, func(api *ea.API) { api.MaxBodyBytes = 64 })

	big := `{"email":"alice@example.com","name":"` + strings.Repeat("a", 200) + `","password":"Secure1!"}`
	resp := doJSON(t, http.MethodPost, server.URL+"/auth/register", big, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("oversized body status = %d, want 400", resp.StatusCode)
	}
}
