// Package oauth2 exchanges authorization codes obtained by the browser for
// verified identities.
package oauth2

import (
	"context"
	"errors"
	"net/http"
	"time"

	ea "github.com/panyam/estateauth"
	"golang.org/x/oauth2"
)

// DefaultTimeout bounds a whole exchange including id token verification
const DefaultTimeout = 10 * time.Second

// BaseExchanger holds the provider independent part of an authorization
// code exchange
type BaseExchanger struct {
	ClientId     string
	ClientSecret string

	// Config.RedirectURL is replaced per request
	Config oauth2.Config

	// HTTPClient is used for the token endpoint when set
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewBaseExchanger(clientId, clientSecret string, endpoint oauth2.Endpoint) *BaseExchanger {
	return &BaseExchanger{
		ClientId:     clientId,
		ClientSecret: clientSecret,
		Config: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		Timeout: DefaultTimeout,
	}
}

// withTimeout applies the exchange timeout and the custom http client to ctx
func (b *BaseExchanger) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if b.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	return context.WithTimeout(ctx, timeout)
}

// exchangeCode posts the code to the token endpoint with redirectURI
func (b *BaseExchanger) exchangeCode(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	config := b.Config
	config.RedirectURL = redirectURI
	token, err := config.Exchange(ctx, code)
	if err != nil {
		return nil, upstreamError("authorization code exchange failed", err)
	}
	return token, nil
}

// upstreamError classifies err; timeouts get their own message
func upstreamError(message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ea.UpstreamAuthError("identity provider timed out", err)
	}
	return ea.UpstreamAuthError(message, err)
}
