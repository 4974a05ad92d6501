// Package grpc lets catalog services behind estateauth verify the same bearer
// access tokens over gRPC metadata that the HTTP API accepts.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"

	ea "github.com/panyam/estateauth"
)

const (
	// DefaultMetadataKeyAuthorization carries "Bearer <access token>"
	DefaultMetadataKeyAuthorization = "authorization"

	// DefaultMetadataKeyCallerID and DefaultMetadataKeyCallerRole are set on
	// calls forwarded to services that trust the caller and skip verification
	DefaultMetadataKeyCallerID   = "x-estate-principal"
	DefaultMetadataKeyCallerRole = "x-estate-role"
)

// Config names the metadata keys used for bearer tokens and forwarded callers.
// Zero values fall back to the defaults above.
type Config struct {
	MetadataKeyAuthorization string
	MetadataKeyCallerID      string
	MetadataKeyCallerRole    string
}

func DefaultConfig() *Config {
	c := &Config{}
	c.EnsureDefaults()
	return c
}

func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
	if c.MetadataKeyCallerID == "" {
		c.MetadataKeyCallerID = DefaultMetadataKeyCallerID
	}
	if c.MetadataKeyCallerRole == "" {
		c.MetadataKeyCallerRole = DefaultMetadataKeyCallerRole
	}
}

// ClaimsFromContext returns the claims verified by the auth interceptors, or nil
func ClaimsFromContext(ctx context.Context) *ea.Claims {
	return ea.ClaimsFromContext(ctx)
}

// UserIDFromContext returns the verified principal id, or "" for anonymous calls.
func UserIDFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}

func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}

// IsAdmin reports whether the verified caller has the ADMIN role
func IsAdmin(ctx context.Context) bool {
	claims := ClaimsFromContext(ctx)
	return claims != nil && claims.Role == ea.RoleAdmin
}

// BearerFromIncomingContext returns the bearer token in the incoming metadata
// under key, or "".
func BearerFromIncomingContext(ctx context.Context, key string) string {
	if key == "" {
		key = DefaultMetadataKeyAuthorization
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(values[0]), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AccessTokenToOutgoingContext attaches accessToken as a bearer credential to
// outgoing gRPC calls.
func AccessTokenToOutgoingContext(ctx context.Context, accessToken string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+accessToken)
}

// ForwardCaller copies the verified caller on ctx into outgoing metadata.
// Anonymous contexts are returned unchanged.
func ForwardCaller(ctx context.Context, cfg *Config) context.Context {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return ctx
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return metadata.AppendToOutgoingContext(ctx,
		cfg.MetadataKeyCallerID, claims.Subject,
		cfg.MetadataKeyCallerRole, string(claims.Role))
}

// ForwardedCaller reads a caller written by ForwardCaller on the other side.
// The values are only as trustworthy as the network path they came over.
func ForwardedCaller(ctx context.Context, cfg *Config) (id string, role ea.Role, ok bool) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	md, found := metadata.FromIncomingContext(ctx)
	if !found {
		return "", "", false
	}
	ids := md.Get(cfg.MetadataKeyCallerID)
	if len(ids) == 0 || ids[0] == "" {
		return "", "", false
	}
	if roles := md.Get(cfg.MetadataKeyCallerRole); len(roles) > 0 {
		role = ea.Role(roles[0])
	}
	return ids[0], role, true
}
