package estateauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token lifetimes
const (
	TokenExpiryAccessToken  = 1 * time.Hour
	TokenExpiryRefreshToken = 7 * 24 * time.Hour
)

// RefreshTokenBytes is the number of random bytes in a refresh token
const RefreshTokenBytes = 64

// Claims are the identity claims carried in an access token
type Claims struct {
	Subject   string
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessTokenClaims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs HS256 access tokens and generates opaque refresh tokens.
// The signing key is fixed at construction.
type TokenIssuer struct {
	secret []byte
	issuer string

	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	// now is swapped in tests
	now func() time.Time
}

// NewTokenIssuer fails when secret is empty
func NewTokenIssuer(secret, issuer string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt signing secret is not configured")
	}
	return &TokenIssuer{
		secret:             []byte(secret),
		issuer:             issuer,
		AccessTokenExpiry:  TokenExpiryAccessToken,
		RefreshTokenExpiry: TokenExpiryRefreshToken,
		now:                time.Now,
	}, nil
}

// WithClock returns a copy of the issuer that reads time from now
func (t *TokenIssuer) WithClock(now func() time.Time) *TokenIssuer {
	out := *t
	out.now = now
	return &out
}

func (t *TokenIssuer) Now() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}

// IssueAccessToken signs a token for p. A zero ttl uses AccessTokenExpiry.
func (t *TokenIssuer) IssueAccessToken(p *Principal, ttl time.Duration) (token string, expiresAt time.Time, err error) {
	if ttl <= 0 {
		ttl = t.AccessTokenExpiry
	}
	if ttl <= 0 {
		ttl = TokenExpiryAccessToken
	}
	now := t.Now()
	expiresAt = now.Add(ttl)

	claims := accessTokenClaims{
		Email: p.Email,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// IssueRefreshToken returns a random opaque token and its expiry
func (t *TokenIssuer) IssueRefreshToken() (token string, expiresAt time.Time, err error) {
	b := make([]byte, RefreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}
	ttl := t.RefreshTokenExpiry
	if ttl <= 0 {
		ttl = TokenExpiryRefreshToken
	}
	return base64.StdEncoding.EncodeToString(b), t.Now().Add(ttl), nil
}

// VerifyAccessToken checks signature and algorithm. Lifetime is checked unless
// allowExpired is set. Any failure yields ok == false.
func (t *TokenIssuer) VerifyAccessToken(tokenString string, allowExpired bool) (claims *Claims, ok bool) {
	if tokenString == "" {
		return nil, false
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.Now),
	}
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	} else {
		opts = append(opts, jwt.WithExpirationRequired())
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	var parsed accessTokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &parsed, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, false
	}
	// WithoutClaimsValidation also skips the issuer check
	if allowExpired && t.issuer != "" && parsed.Issuer != t.issuer {
		return nil, false
	}
	if parsed.Subject == "" {
		return nil, false
	}

	claims = &Claims{
		Subject: parsed.Subject,
		Email:   parsed.Email,
		Role:    parsed.Role,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims, true
}

// HashRefreshToken is the at-rest form of a refresh token
func HashRefreshToken(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
