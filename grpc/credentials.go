package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc/credentials"
)

// TokenSource yields a current access token. client.AuthClient.GetToken
// satisfies it and refreshes as needed.
type TokenSource func(ctx context.Context) (string, error)

// BearerCredentials attaches a fresh access token to every outgoing call.
type BearerCredentials struct {
	Source TokenSource

	// AllowInsecure permits sending tokens over plaintext connections, for
	// local development only.
	AllowInsecure bool
}

var _ credentials.PerRPCCredentials = (*BearerCredentials)(nil)

func (b *BearerCredentials) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	if b.Source == nil {
		return nil, fmt.Errorf("grpc: BearerCredentials has no token source")
	}
	if !b.AllowInsecure {
		ri, _ := credentials.RequestInfoFromContext(ctx)
		if err := credentials.CheckSecurityLevel(ri.AuthInfo, credentials.PrivacyAndIntegrity); err != nil {
			return nil, fmt.Errorf("grpc: refusing to send access token: %w", err)
		}
	}
	token, err := b.Source(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{DefaultMetadataKeyAuthorization: "Bearer " + token}, nil
}

func (b *BearerCredentials) RequireTransportSecurity() bool {
	return !b.AllowInsecure
}
