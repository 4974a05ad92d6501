//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	ea "github.com/panyam/estateauth"
)

// AutoMigrate runs database migrations for all estateauth tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&PrincipalModel{},
		&ProfileModel{},
	)
}

// translate maps gorm errors onto the estateauth sentinels
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ea.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, ea.ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

// =============================================================================
// PrincipalStore
// =============================================================================

// PrincipalStore implements ea.PrincipalStore using GORM
type PrincipalStore struct {
	db *gorm.DB
}

func NewPrincipalStore(db *gorm.DB) *PrincipalStore {
	return &PrincipalStore{db: db}
}

func (s *PrincipalStore) CreatePrincipal(ctx context.Context, p *ea.Principal) error {
	if p.ID == "" {
		p.ID = ea.NewID()
	}
	p.Email = ea.NormalizeEmail(p.Email)
	model := PrincipalToModel(p)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return translate(err, "create principal")
	}
	p.CreatedAt, p.UpdatedAt = model.CreatedAt, model.UpdatedAt
	return nil
}

func (s *PrincipalStore) GetPrincipalByID(ctx context.Context, id string) (*ea.Principal, error) {
	return s.getWhere(ctx, "id = ?", id)
}

func (s *PrincipalStore) GetPrincipalByEmail(ctx context.Context, email string) (*ea.Principal, error) {
	return s.getWhere(ctx, "email = ?", ea.NormalizeEmail(email))
}

func (s *PrincipalStore) GetPrincipalByGoogleID(ctx context.Context, googleID string) (*ea.Principal, error) {
	return s.getWhere(ctx, "google_id = ?", googleID)
}

func (s *PrincipalStore) GetPrincipalByRefreshToken(ctx context.Context, tokenHash string) (*ea.Principal, error) {
	return s.getWhere(ctx, "refresh_token_hash = ?", tokenHash)
}

func (s *PrincipalStore) getWhere(ctx context.Context, query string, value string) (*ea.Principal, error) {
	if value == "" {
		return nil, ea.ErrNotFound
	}
	var model PrincipalModel
	if err := s.db.WithContext(ctx).Where(query, value).First(&model).Error; err != nil {
		return nil, translate(err, "get principal")
	}
	return model.ToPrincipal(), nil
}

func (s *PrincipalStore) UpdatePrincipalIdentity(ctx context.Context, p *ea.Principal) error {
	result := s.db.WithContext(ctx).Model(&PrincipalModel{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"email":            ea.NormalizeEmail(p.Email),
			"name":             p.Name,
			"photo_url":        p.PhotoURL,
			"photo_source_url": p.PhotoSourceURL,
			"google_id":        nullableString(p.GoogleID),
		})
	if result.Error != nil {
		return translate(result.Error, "update principal")
	}
	if result.RowsAffected == 0 {
		return ea.ErrNotFound
	}
	return nil
}

func (s *PrincipalStore) SetRefreshToken(ctx context.Context, principalID, tokenHash string, expiresAt time.Time) error {
	result := s.db.WithContext(ctx).Model(&PrincipalModel{}).
		Where("id = ?", principalID).
		Updates(tokenColumns(tokenHash, expiresAt))
	if result.Error != nil {
		return translate(result.Error, "set refresh token")
	}
	if result.RowsAffected == 0 {
		return ea.ErrNotFound
	}
	return nil
}

// ReplaceRefreshToken is a single conditional UPDATE; the row lock taken by
// the database makes concurrent callers with the same currentHash race for
// one match.
func (s *PrincipalStore) ReplaceRefreshToken(ctx context.Context, principalID, currentHash, newHash string, expiresAt time.Time) error {
	if currentHash == "" {
		return ea.ErrTokenMismatch
	}
	result := s.db.WithContext(ctx).Model(&PrincipalModel{}).
		Where("id = ? AND refresh_token_hash = ?", principalID, currentHash).
		Updates(tokenColumns(newHash, expiresAt))
	if result.Error != nil {
		return translate(result.Error, "replace refresh token")
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetPrincipalByID(ctx, principalID); err != nil {
			return err
		}
		return ea.ErrTokenMismatch
	}
	return nil
}

func tokenColumns(tokenHash string, expiresAt time.Time) map[string]any {
	return map[string]any{
		"refresh_token_hash":       nullableString(tokenHash),
		"refresh_token_expires_at": nullableTime(expiresAt),
	}
}

// =============================================================================
// ProfileStore
// =============================================================================

// ProfileStore implements ea.ProfileStore using GORM
type ProfileStore struct {
	db *gorm.DB
}

func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) GetProfileByPrincipalID(ctx context.Context, principalID string) (*ea.Profile, error) {
	if principalID == "" {
		return nil, ea.ErrNotFound
	}
	var model ProfileModel
	if err := s.db.WithContext(ctx).Where("principal_id = ?", principalID).First(&model).Error; err != nil {
		return nil, translate(err, "get profile")
	}
	return model.ToProfile(), nil
}

func (s *ProfileStore) CreateProfile(ctx context.Context, p *ea.Profile) error {
	if p.PrincipalID == "" {
		return fmt.Errorf("profile has no principal id")
	}
	if p.ID == "" {
		p.ID = ea.NewID()
	}
	model := ProfileToModel(p)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return translate(err, "create profile")
	}
	p.CreatedAt, p.UpdatedAt = model.CreatedAt, model.UpdatedAt
	return nil
}

func (s *ProfileStore) UpdateProfileIdentity(ctx context.Context, principalID, name, photo string) error {
	result := s.db.WithContext(ctx).Model(&ProfileModel{}).
		Where("principal_id = ?", principalID).
		Updates(map[string]any{"name": name, "photo": photo})
	if result.Error != nil {
		return translate(result.Error, "update profile identity")
	}
	if result.RowsAffected == 0 {
		return ea.ErrNotFound
	}
	return nil
}

func (s *ProfileStore) UpdateProfile(ctx context.Context, p *ea.Profile) error {
	result := s.db.WithContext(ctx).Model(&ProfileModel{}).
		Where("principal_id = ?", p.PrincipalID).
		Updates(map[string]any{
			"name":     p.Name,
			"address":  p.Address,
			"phone":    p.Phone,
			"email":    p.Email,
			"photo":    p.Photo,
			"birthday": nullableTime(p.Birthday),
		})
	if result.Error != nil {
		return translate(result.Error, "update profile")
	}
	if result.RowsAffected == 0 {
		return ea.ErrNotFound
	}
	return nil
}
