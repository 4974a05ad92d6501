//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
	ea "github.com/panyam/estateauth"
)

// PrincipalEntity is the Datastore entity for principals
type PrincipalEntity struct {
	Key                   *datastore.Key `datastore:"__key__"`
	Email                 string         `datastore:"email"`
	Name                  string         `datastore:"name,noindex"`
	PasswordHash          string         `datastore:"password_hash,noindex"`
	GoogleID              string         `datastore:"google_id"`
	Role                  string         `datastore:"role"`
	PhotoURL              string         `datastore:"photo_url,noindex"`
	PhotoSourceURL        string         `datastore:"photo_source_url,noindex"`
	RefreshTokenHash      string         `datastore:"refresh_token_hash"`
	RefreshTokenExpiresAt time.Time      `datastore:"refresh_token_expires_at,noindex"`
	CreatedAt             time.Time      `datastore:"created_at"`
	UpdatedAt             time.Time      `datastore:"updated_at"`
}

func (e *PrincipalEntity) ToPrincipal() *ea.Principal {
	return &ea.Principal{
		ID:                    e.Key.Name,
		Email:                 e.Email,
		Name:                  e.Name,
		PasswordHash:          e.PasswordHash,
		GoogleID:              e.GoogleID,
		Role:                  ea.Role(e.Role),
		PhotoURL:              e.PhotoURL,
		PhotoSourceURL:        e.PhotoSourceURL,
		RefreshTokenHash:      e.RefreshTokenHash,
		RefreshTokenExpiresAt: e.RefreshTokenExpiresAt,
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             e.UpdatedAt,
	}
}

func PrincipalToEntity(p *ea.Principal, key *datastore.Key) *PrincipalEntity {
	return &PrincipalEntity{
		Key:                   key,
		Email:                 p.Email,
		Name:                  p.Name,
		PasswordHash:          p.PasswordHash,
		GoogleID:              p.GoogleID,
		Role:                  string(p.Role),
		PhotoURL:              p.PhotoURL,
		PhotoSourceURL:        p.PhotoSourceURL,
		RefreshTokenHash:      p.RefreshTokenHash,
		RefreshTokenExpiresAt: p.RefreshTokenExpiresAt,
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
}

// ReservationEntity claims a unique value (email or google subject) for a principal.
// Key name is the reserved value.
type ReservationEntity struct {
	Key         *datastore.Key `datastore:"__key__"`
	PrincipalID string         `datastore:"principal_id"`
	CreatedAt   time.Time      `datastore:"created_at,noindex"`
}

// ProfileEntity is the Datastore entity for owner profiles.
// Key name is the principal id.
type ProfileEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	ProfileID string         `datastore:"profile_id"`
	Name      string         `datastore:"name"`
	Address   string         `datastore:"address,noindex"`
	Phone     string         `datastore:"phone,noindex"`
	Email     string         `datastore:"email"`
	Photo     string         `datastore:"photo,noindex"`
	Birthday  time.Time      `datastore:"birthday,noindex"`
	CreatedAt time.Time      `datastore:"created_at"`
	UpdatedAt time.Time      `datastore:"updated_at"`
}

func (e *ProfileEntity) ToProfile() *ea.Profile {
	return &ea.Profile{
		ID:          e.ProfileID,
		PrincipalID: e.Key.Name,
		Name:        e.Name,
		Address:     e.Address,
		Phone:       e.Phone,
		Email:       e.Email,
		Photo:       e.Photo,
		Birthday:    e.Birthday,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func ProfileToEntity(p *ea.Profile, key *datastore.Key) *ProfileEntity {
	return &ProfileEntity{
		Key:       key,
		ProfileID: p.ID,
		Name:      p.Name,
		Address:   p.Address,
		Phone:     p.Phone,
		Email:     p.Email,
		Photo:     p.Photo,
		Birthday:  p.Birthday,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
