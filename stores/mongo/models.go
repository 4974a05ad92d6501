package mongo

import (
	"time"

	ea "github.com/panyam/estateauth"
)

// Collection names
const (
	CollectionPrincipals = "Users"
	CollectionProfiles   = "Owners"
)

type principalDocument struct {
	ID                    string     `bson:"_id"`
	Email                 string     `bson:"email"`
	Name                  string     `bson:"name"`
	PasswordHash          string     `bson:"passwordHash,omitempty"`
	GoogleID              string     `bson:"googleId,omitempty"`
	Role                  string     `bson:"role"`
	PhotoURL              string     `bson:"photoUrl,omitempty"`
	PhotoSourceURL        string     `bson:"photoSourceUrl,omitempty"`
	RefreshTokenHash      string     `bson:"refreshTokenHash,omitempty"`
	RefreshTokenExpiresAt *time.Time `bson:"refreshTokenExpiresAt,omitempty"`
	CreatedAt             time.Time  `bson:"createdAt"`
	UpdatedAt             time.Time  `bson:"updatedAt"`
}

func (d *principalDocument) toPrincipal() *ea.Principal {
	p := &ea.Principal{
		ID:               d.ID,
		Email:            d.Email,
		Name:             d.Name,
		PasswordHash:     d.PasswordHash,
		GoogleID:         d.GoogleID,
		Role:             ea.Role(d.Role),
		PhotoURL:         d.PhotoURL,
		PhotoSourceURL:   d.PhotoSourceURL,
		RefreshTokenHash: d.RefreshTokenHash,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if d.RefreshTokenExpiresAt != nil {
		p.RefreshTokenExpiresAt = *d.RefreshTokenExpiresAt
	}
	return p
}

func principalToDocument(p *ea.Principal) *principalDocument {
	d := &principalDocument{
		ID:               p.ID,
		Email:            p.Email,
		Name:             p.Name,
		PasswordHash:     p.PasswordHash,
		GoogleID:         p.GoogleID,
		Role:             string(p.Role),
		PhotoURL:         p.PhotoURL,
		PhotoSourceURL:   p.PhotoSourceURL,
		RefreshTokenHash: p.RefreshTokenHash,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if !p.RefreshTokenExpiresAt.IsZero() {
		t := p.RefreshTokenExpiresAt
		d.RefreshTokenExpiresAt = &t
	}
	return d
}

type profileDocument struct {
	ID          string     `bson:"_id"`
	PrincipalID string     `bson:"principalId"`
	Name        string     `bson:"name"`
	Address     string     `bson:"address,omitempty"`
	Phone       string     `bson:"phone,omitempty"`
	Email       string     `bson:"email,omitempty"`
	Photo       string     `bson:"photo,omitempty"`
	Birthday    *time.Time `bson:"birthday,omitempty"`
	CreatedAt   time.Time  `bson:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt"`
}

func (d *profileDocument) toProfile() *ea.Profile {
	p := &ea.Profile{
		ID:          d.ID,
		PrincipalID: d.PrincipalID,
		Name:        d.Name,
		Address:     d.Address,
		Phone:       d.Phone,
		Email:       d.Email,
		Photo:       d.Photo,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.Birthday != nil {
		p.Birthday = *d.Birthday
	}
	return p
}

func profileToDocument(p *ea.Profile) *profileDocument {
	d := &profileDocument{
		ID:          p.ID,
		PrincipalID: p.PrincipalID,
		Name:        p.Name,
		Address:     p.Address,
		Phone:       p.Phone,
		Email:       p.Email,
		Photo:       p.Photo,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if !p.Birthday.IsZero() {
		b := p.Birthday
		d.Birthday = &b
	}
	return d
}
