package oauth2

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"

	ea "github.com/panyam/estateauth"
)

// GoogleIssuers are the accepted values of the id token iss claim
var GoogleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// IDTokenValidator verifies an id token's signature, expiry and audience.
// *idtoken.Validator implements it.
type IDTokenValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

// GoogleExchanger implements estateauth.OAuthExchanger for Google sign-in
type GoogleExchanger struct {
	*BaseExchanger
	Validator IDTokenValidator
}

// NewGoogleExchanger builds an exchanger that verifies id tokens against
// Google's published keys
func NewGoogleExchanger(ctx context.Context, clientId, clientSecret string) (*GoogleExchanger, error) {
	if clientId == "" || clientSecret == "" {
		return nil, fmt.Errorf("google client id and secret are required")
	}
	// the validator only fetches public certs, so it needs no credentials
	validator, err := idtoken.NewValidator(ctx, option.WithHTTPClient(http.DefaultClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create id token validator: %w", err)
	}
	return &GoogleExchanger{
		BaseExchanger: NewBaseExchanger(clientId, clientSecret, google.Endpoint),
		Validator:     validator,
	}, nil
}

// Exchange trades code for tokens and returns the identity asserted by the
// verified id token. Every failure is an upstream auth error.
func (g *GoogleExchanger) Exchange(ctx context.Context, code, redirectURI string) (*ea.OAuthIdentity, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	token, err := g.exchangeCode(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}
	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, ea.UpstreamAuthError("token response has no id token", nil)
	}

	payload, err := g.Validator.Validate(ctx, rawIDToken, g.ClientId)
	if err != nil {
		return nil, upstreamError("id token verification failed", err)
	}
	if !validIssuer(payload.Issuer) {
		return nil, ea.UpstreamAuthError("id token has an unexpected issuer", nil)
	}
	return identityFromPayload(payload), nil
}

func validIssuer(iss string) bool {
	for _, allowed := range GoogleIssuers {
		if iss == allowed {
			return true
		}
	}
	return false
}

func identityFromPayload(payload *idtoken.Payload) *ea.OAuthIdentity {
	out := &ea.OAuthIdentity{
		Provider: "google",
		Subject:  payload.Subject,
	}
	out.Email, _ = payload.Claims["email"].(string)
	out.Name, _ = payload.Claims["name"].(string)
	out.Picture, _ = payload.Claims["picture"].(string)
	switch v := payload.Claims["email_verified"].(type) {
	case bool:
		out.EmailVerified = v
	case string:
		out.EmailVerified = v == "true"
	}
	return out
}
