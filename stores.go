package estateauth

import (
	"context"
	"strings"
	"time"
)

// Role is the authorization role carried in access tokens
type Role string

const (
	RoleOwner Role = "OWNER"
	RoleAdmin Role = "ADMIN"
)

// Principal is an account that can authenticate. It has a password hash, a
// Google subject, or both.
type Principal struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash,omitempty"`
	GoogleID     string `json:"google_id,omitempty"`
	Role         Role   `json:"role"`
	PhotoURL     string `json:"photo_url,omitempty"`

	// PhotoSourceURL is the provider picture PhotoURL was mirrored from
	PhotoSourceURL string `json:"photo_source_url,omitempty"`

	// Only the SHA-256 of the current refresh token is stored (see HashRefreshToken)
	RefreshTokenHash      string    `json:"refresh_token_hash,omitempty"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPassword returns true if the principal can log in with a password
func (p *Principal) HasPassword() bool {
	return p.PasswordHash != ""
}

// RefreshTokenExpired returns true if there is no usable refresh token at now
func (p *Principal) RefreshTokenExpired(now time.Time) bool {
	if p.RefreshTokenHash == "" || p.RefreshTokenExpiresAt.IsZero() {
		return true
	}
	return !now.Before(p.RefreshTokenExpiresAt)
}

// Profile is the catalog-side owner record tied 1:1 to a principal.
// Name and Photo follow the principal; everything else is owner managed.
type Profile struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id"`
	Name        string    `json:"name"`
	Address     string    `json:"address,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	Photo       string    `json:"photo,omitempty"`
	Birthday    time.Time `json:"birthday,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PrincipalStore persists principals and their single active refresh token
type PrincipalStore interface {
	// CreatePrincipal inserts a new principal. An empty ID is assigned by the
	// store. Returns ErrDuplicate if the email or google id is taken.
	CreatePrincipal(ctx context.Context, p *Principal) error

	// GetPrincipalByID returns ErrNotFound if there is no such principal
	GetPrincipalByID(ctx context.Context, id string) (*Principal, error)

	// GetPrincipalByEmail looks up by normalized email
	GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error)

	// GetPrincipalByGoogleID looks up by Google subject
	GetPrincipalByGoogleID(ctx context.Context, googleID string) (*Principal, error)

	// GetPrincipalByRefreshToken looks up by refresh token hash.
	// An empty hash never matches.
	GetPrincipalByRefreshToken(ctx context.Context, tokenHash string) (*Principal, error)

	// UpdatePrincipalIdentity overwrites email, name, photo urls and google id
	UpdatePrincipalIdentity(ctx context.Context, p *Principal) error

	// SetRefreshToken unconditionally stores tokenHash for the principal.
	// An empty hash clears the session.
	SetRefreshToken(ctx context.Context, principalID, tokenHash string, expiresAt time.Time) error

	// ReplaceRefreshToken stores newHash only if currentHash is still the
	// stored token, as a single atomic update. Returns ErrTokenMismatch otherwise.
	ReplaceRefreshToken(ctx context.Context, principalID, currentHash, newHash string, expiresAt time.Time) error
}

// ProfileStore persists owner profiles. At most one profile exists per principal.
type ProfileStore interface {
	// GetProfileByPrincipalID returns ErrNotFound when the principal has no profile yet
	GetProfileByPrincipalID(ctx context.Context, principalID string) (*Profile, error)

	// CreateProfile returns ErrDuplicate if the principal already has a profile
	CreateProfile(ctx context.Context, p *Profile) error

	// UpdateProfile replaces the stored profile for p.PrincipalID
	UpdateProfile(ctx context.Context, p *Profile) error

	// UpdateProfileIdentity sets only name and photo, leaving owner managed
	// fields as they are in the store. Returns ErrNotFound without a profile.
	UpdateProfileIdentity(ctx context.Context, principalID, name, photo string) error
}

// NormalizeEmail lowercases and trims an email so lookups are case insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
