//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	ea "github.com/panyam/estateauth"
)

// PrincipalModel is the GORM model for principals. Optional unique columns
// are pointers so an absent value is NULL and never collides.
type PrincipalModel struct {
	ID                    string     `gorm:"primaryKey;size:64"`
	Email                 string     `gorm:"size:320;not null;uniqueIndex"`
	Name                  string     `gorm:"size:255"`
	PasswordHash          string     `gorm:"size:255"`
	GoogleID              *string    `gorm:"size:255;uniqueIndex"`
	Role                  string     `gorm:"size:16;not null;default:OWNER"`
	PhotoURL              string     `gorm:"size:2048"`
	PhotoSourceURL        string     `gorm:"size:2048"`
	RefreshTokenHash      *string    `gorm:"size:64;index"`
	RefreshTokenExpiresAt *time.Time
	CreatedAt             time.Time `gorm:"autoCreateTime"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime"`
}

func (PrincipalModel) TableName() string {
	return "users"
}

func (m *PrincipalModel) ToPrincipal() *ea.Principal {
	p := &ea.Principal{
		ID:             m.ID,
		Email:          m.Email,
		Name:           m.Name,
		PasswordHash:   m.PasswordHash,
		Role:           ea.Role(m.Role),
		PhotoURL:       m.PhotoURL,
		PhotoSourceURL: m.PhotoSourceURL,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.GoogleID != nil {
		p.GoogleID = *m.GoogleID
	}
	if m.RefreshTokenHash != nil {
		p.RefreshTokenHash = *m.RefreshTokenHash
	}
	if m.RefreshTokenExpiresAt != nil {
		p.RefreshTokenExpiresAt = *m.RefreshTokenExpiresAt
	}
	return p
}

func PrincipalToModel(p *ea.Principal) *PrincipalModel {
	return &PrincipalModel{
		ID:                    p.ID,
		Email:                 p.Email,
		Name:                  p.Name,
		PasswordHash:          p.PasswordHash,
		GoogleID:              nullableString(p.GoogleID),
		Role:                  string(p.Role),
		PhotoURL:              p.PhotoURL,
		PhotoSourceURL:        p.PhotoSourceURL,
		RefreshTokenHash:      nullableString(p.RefreshTokenHash),
		RefreshTokenExpiresAt: nullableTime(p.RefreshTokenExpiresAt),
		CreatedAt:             p.CreatedAt,
		UpdatedAt:             p.UpdatedAt,
	}
}

// ProfileModel is the GORM model for owner profiles
type ProfileModel struct {
	ID          string `gorm:"primaryKey;size:64"`
	PrincipalID string `gorm:"size:64;not null;uniqueIndex"`
	Name        string `gorm:"size:255"`
	Address     string `gorm:"size:512"`
	Phone       string `gorm:"size:64"`
	Email       string `gorm:"size:320"`
	Photo       string `gorm:"size:2048"`
	Birthday    *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

func (ProfileModel) TableName() string {
	return "owners"
}

func (m *ProfileModel) ToProfile() *ea.Profile {
	p := &ea.Profile{
		ID:          m.ID,
		PrincipalID: m.PrincipalID,
		Name:        m.Name,
		Address:     m.Address,
		Phone:       m.Phone,
		Email:       m.Email,
		Photo:       m.Photo,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.Birthday != nil {
		p.Birthday = *m.Birthday
	}
	return p
}

func ProfileToModel(p *ea.Profile) *ProfileModel {
	return &ProfileModel{
		ID:          p.ID,
		PrincipalID: p.PrincipalID,
		Name:        p.Name,
		Address:     p.Address,
		Phone:       p.Phone,
		Email:       p.Email,
		Photo:       p.Photo,
		Birthday:    nullableTime(p.Birthday),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
