package estateauth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/gorilla/mux"
)

// DefaultMaxBodyBytes caps JSON request bodies on the auth endpoints
const DefaultMaxBodyBytes = 1 << 20

// API exposes an Authenticator over HTTP under /auth
type API struct {
	Auth   *Authenticator
	Tokens TokenVerifier

	// DefaultRedirectURL is used for the code exchange when the request has no Origin header
	DefaultRedirectURL string

	// LoginRateLimit is requests per minute per client IP on the credential
	// endpoints. Zero disables limiting.
	LoginRateLimit int

	MaxBodyBytes int64
	Logger       *slog.Logger
}

// GoogleLoginRequest carries the authorization code from the browser
type GoogleLoginRequest struct {
	Code string `json:"code"`
}

// RefreshRequest carries the refresh token to rotate
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ErrorBody is the JSON body of every error response
type ErrorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	Field            string `json:"field,omitempty"`
}

// Handler returns a router serving only the auth endpoints
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the auth endpoints on r
func (a *API) RegisterRoutes(r *mux.Router) {
	limit := func(h http.Handler) http.Handler { return h }
	if a.LoginRateLimit > 0 {
		limit = httprate.LimitByIP(a.LoginRateLimit, time.Minute)
	}
	tokens := a.Tokens
	if tokens == nil {
		tokens = a.Auth.Tokens
	}
	strict := &Middleware{Tokens: tokens}
	lenient := &Middleware{Tokens: tokens, AllowExpired: true}

	s := r.PathPrefix("/auth").Subrouter()
	s.Handle("/register", limit(http.HandlerFunc(a.HandleRegister))).Methods(http.MethodPost)
	s.Handle("/login", limit(http.HandlerFunc(a.HandleLogin))).Methods(http.MethodPost)
	s.Handle("/google-login", limit(http.HandlerFunc(a.HandleGoogleLogin))).Methods(http.MethodPost)
	s.Handle("/refresh-token", limit(http.HandlerFunc(a.HandleRefresh))).Methods(http.MethodPost)
	s.Handle("/logout", lenient.RequireClaims(http.HandlerFunc(a.HandleLogout))).Methods(http.MethodPost)
	s.Handle("/me", strict.RequireClaims(http.HandlerFunc(a.HandleMe))).Methods(http.MethodGet)
}

// HandleRegister handles POST /auth/register
func (a *API) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !a.decode(w, r, &req) {
		return
	}
	result, err := a.Auth.Register(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	tokenResponse(w, http.StatusCreated, result)
}

// HandleLogin handles POST /auth/login
func (a *API) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !a.decode(w, r, &req) {
		return
	}
	result, err := a.Auth.LoginWithPassword(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	tokenResponse(w, http.StatusOK, result)
}

// HandleGoogleLogin handles POST /auth/google-login. The redirect uri sent to
// the provider is the caller's Origin, which must match the one the browser
// used to obtain the code.
func (a *API) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req GoogleLoginRequest
	if !a.decode(w, r, &req) {
		return
	}
	redirectURI := r.Header.Get("Origin")
	if redirectURI == "" {
		redirectURI = a.DefaultRedirectURL
	}
	result, err := a.Auth.LoginWithOAuthCode(r.Context(), req.Code, redirectURI)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	tokenResponse(w, http.StatusOK, result)
}

// HandleRefresh handles POST /auth/refresh-token
func (a *API) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !a.decode(w, r, &req) {
		return
	}
	result, err := a.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	tokenResponse(w, http.StatusOK, result)
}

// HandleLogout handles POST /auth/logout
func (a *API) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Auth.Logout(r.Context(), ClaimsFromContext(r.Context())); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe handles GET /auth/me
func (a *API) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.Auth.CurrentUser(r.Context(), ClaimsFromContext(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	limit := a.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errorResponse(w, "invalid_request", "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := asAuthError(err)
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch ae.Kind {
	case KindInternal:
		logger.Error("auth request failed", "path", r.URL.Path, "error", err)
	case KindUpstream:
		logger.Warn("upstream auth failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, ae.Status(), ErrorBody{
		Error:            ae.Code,
		ErrorDescription: ae.Message,
		Field:            ae.Field,
	})
}

// tokenResponse sends a successful token response
func tokenResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, status, body)
}

// errorResponse sends an OAuth 2.0 style error response
func errorResponse(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, ErrorBody{Error: errorCode, ErrorDescription: description})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
