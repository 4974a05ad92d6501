package estateauth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type claimsKey struct{}

// TokenVerifier verifies access tokens. *TokenIssuer implements it.
type TokenVerifier interface {
	VerifyAccessToken(token string, allowExpired bool) (*Claims, bool)
}

// Middleware extracts and verifies bearer access tokens
type Middleware struct {
	Tokens              TokenVerifier
	AuthTokenHeaderName string

	// AllowExpired accepts correctly signed tokens past their expiry.
	// Only used for logout.
	AllowExpired bool
}

// Ensures that config values have reasonable defaults.
func (m *Middleware) EnsureReasonableDefaults() {
	if m.AuthTokenHeaderName == "" {
		m.AuthTokenHeaderName = "Authorization"
	}
}

// RequireClaims rejects the request with 401 unless it carries a valid bearer
// token. The verified claims are available via ClaimsFromContext.
func (m *Middleware) RequireClaims(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r, m.AuthTokenHeaderName)
		if token == "" {
			writeUnauthorized(w, "missing bearer token")
			return
		}
		claims, ok := m.Tokens.VerifyAccessToken(token, m.AllowExpired)
		if !ok {
			slog.Debug("rejected bearer token", "path", r.URL.Path)
			writeUnauthorized(w, "invalid access token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// BearerToken returns the token of a "Bearer <token>" header, or ""
func BearerToken(r *http.Request, headerName string) string {
	if headerName == "" {
		headerName = "Authorization"
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get(headerName)), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// WithClaims returns a context carrying claims
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the claims set by RequireClaims, or nil
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	errorResponse(w, "unauthorized", description, http.StatusUnauthorized)
}
