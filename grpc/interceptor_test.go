package grpc

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	ea "github.com/panyam/estateauth"
)

const (
	listProperties = "/estate.v1.Catalog/ListProperties"
	updateListing  = "/estate.v1.Catalog/UpdateListing"
	watchListings  = "/estate.v1.Catalog/WatchListings"
)

func newTestIssuer(t *testing.T) *ea.TokenIssuer {
	t.Helper()
	issuer, err := ea.NewTokenIssuer("grpc-test-secret", "estateauth")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return issuer
}

func issueToken(t *testing.T, issuer *ea.TokenIssuer, role ea.Role) string {
	t.Helper()
	token, _, err := issuer.IssueAccessToken(&ea.Principal{ID: "p-agent", Email: "agent@example.com", Role: role}, 0)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	return token
}

func bearerContext(token string) context.Context {
	md := metadata.Pairs(DefaultMetadataKeyAuthorization, "Bearer "+token)
	return metadata.NewIncomingContext(context.Background(), md)
}

type stubStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *stubStream) Context() context.Context { return s.ctx }

func TestNewInterceptorConfig(t *testing.T) {
	cfg := NewInterceptorConfig(newTestIssuer(t), listProperties)
	if !cfg.RequireAuth || !cfg.PublicMethods[listProperties] || cfg.PublicMethods[updateListing] {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Config == nil || cfg.MetadataKeyAuthorization != DefaultMetadataKeyAuthorization {
		t.Error("metadata keys should be defaulted")
	}
	if OptionalAuthConfig(newTestIssuer(t)).RequireAuth {
		t.Error("optional config should not require auth")
	}
}

func TestUnaryAuthInterceptor(t *testing.T) {
	issuer := newTestIssuer(t)
	other, err := ea.NewTokenIssuer("some-other-secret", "estateauth")
	if err != nil {
		t.Fatal(err)
	}
	stale := issuer.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })

	required := NewInterceptorConfig(issuer, listProperties)
	optional := OptionalAuthConfig(issuer)

	tests := []struct {
		name      string
		config    *InterceptorConfig
		method    string
		ctx       context.Context
		wantCode  codes.Code
		wantUser  string
		wantAdmin bool
	}{
		{"owner token", required, updateListing, bearerContext(issueToken(t, issuer, ea.RoleOwner)), codes.OK, "p-agent", false},
		{"admin token", required, updateListing, bearerContext(issueToken(t, issuer, ea.RoleAdmin)), codes.OK, "p-agent", true},
		{"no token", required, updateListing, context.Background(), codes.Unauthenticated, "", false},
		{"garbage token", required, updateListing, bearerContext("not-a-jwt"), codes.Unauthenticated, "", false},
		{"foreign key", required, updateListing, bearerContext(issueToken(t, other, ea.RoleOwner)), codes.Unauthenticated, "", false},
		{"expired token", required, updateListing, bearerContext(issueToken(t, stale, ea.RoleOwner)), codes.Unauthenticated, "", false},
		{"public without token", required, listProperties, context.Background(), codes.OK, "", false},
		{"public ignores bad token", required, listProperties, bearerContext("not-a-jwt"), codes.OK, "", false},
		{"public keeps good token", required, listProperties, bearerContext(issueToken(t, issuer, ea.RoleOwner)), codes.OK, "p-agent", false},
		{"optional without token", optional, updateListing, context.Background(), codes.OK, "", false},
		{"optional rejects bad token", optional, updateListing, bearerContext("not-a-jwt"), codes.Unauthenticated, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interceptor := UnaryAuthInterceptor(tt.config)
			called := false
			var gotUser string
			var gotAdmin bool
			_, err := interceptor(tt.ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method},
				func(ctx context.Context, req any) (any, error) {
					called = true
					gotUser = UserIDFromContext(ctx)
					gotAdmin = IsAdmin(ctx)
					return "listing", nil
				})

			if got := status.Code(err); got != tt.wantCode {
				t.Fatalf("code = %v, want %v (err %v)", got, tt.wantCode, err)
			}
			if called != (tt.wantCode == codes.OK) {
				t.Fatalf("handler called = %v", called)
			}
			if gotUser != tt.wantUser || gotAdmin != tt.wantAdmin {
				t.Errorf("caller = %q admin=%v, want %q admin=%v", gotUser, gotAdmin, tt.wantUser, tt.wantAdmin)
			}
		})
	}
}

func TestStreamAuthInterceptor(t *testing.T) {
	issuer := newTestIssuer(t)
	interceptor := StreamAuthInterceptor(NewInterceptorConfig(issuer, listProperties))

	var gotUser string
	handler := func(srv any, ss grpc.ServerStream) error {
		gotUser = UserIDFromContext(ss.Context())
		return nil
	}

	stream := &stubStream{ctx: bearerContext(issueToken(t, issuer, ea.RoleOwner))}
	if err := interceptor(nil, stream, &grpc.StreamServerInfo{FullMethod: watchListings}, handler); err != nil {
		t.Fatalf("valid stream: %v", err)
	}
	if gotUser != "p-agent" {
		t.Errorf("stream caller = %q, want p-agent", gotUser)
	}

	gotUser = ""
	err := interceptor(nil, &stubStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: watchListings}, handler)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("anonymous stream code = %v, want Unauthenticated", status.Code(err))
	}

	err = interceptor(nil, &stubStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: listProperties}, handler)
	if err != nil || gotUser != "" {
		t.Errorf("public stream: err=%v caller=%q", err, gotUser)
	}
}

func TestInterceptorRequiresVerifier(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected a panic without Tokens")
		}
	}()
	UnaryAuthInterceptor(&InterceptorConfig{RequireAuth: true})
}
