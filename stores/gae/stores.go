//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	ea "github.com/panyam/estateauth"
)

// Kind constants for Datastore entities
const (
	KindPrincipal         = "Principal"
	KindPrincipalEmail    = "PrincipalEmail"
	KindPrincipalGoogleID = "PrincipalGoogleID"
	KindProfile           = "Profile"
)

// ============================================================================
// PrincipalStore
// ============================================================================

// PrincipalStore implements ea.PrincipalStore using Google Cloud Datastore
type PrincipalStore struct {
	client    *datastore.Client
	namespace string
}

// NewPrincipalStore creates a new Datastore-backed PrincipalStore
func NewPrincipalStore(client *datastore.Client, namespace string) *PrincipalStore {
	return &PrincipalStore{client: client, namespace: namespace}
}

func (s *PrincipalStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *PrincipalStore) CreatePrincipal(ctx context.Context, p *ea.Principal) error {
	if p.ID == "" {
		p.ID = ea.NewID()
	}
	p.Email = ea.NormalizeEmail(p.Email)
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	key := s.namespacedKey(KindPrincipal, p.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing PrincipalEntity
		if err := tx.Get(key, &existing); err == nil {
			return fmt.Errorf("principal %s: %w", p.ID, ea.ErrDuplicate)
		} else if err != datastore.ErrNoSuchEntity {
			return err
		}
		if err := s.reserve(tx, KindPrincipalEmail, p.Email, p.ID); err != nil {
			return err
		}
		if p.GoogleID != "" {
			if err := s.reserve(tx, KindPrincipalGoogleID, p.GoogleID, p.ID); err != nil {
				return err
			}
		}
		_, err := tx.Put(key, PrincipalToEntity(p, key))
		return err
	})
	return err
}

func (s *PrincipalStore) GetPrincipalByID(ctx context.Context, id string) (*ea.Principal, error) {
	if id == "" {
		return nil, ea.ErrNotFound
	}
	key := s.namespacedKey(KindPrincipal, id)
	var entity PrincipalEntity
	if err := s.client.Get(ctx, key, &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, ea.ErrNotFound
		}
		return nil, err
	}
	return entity.ToPrincipal(), nil
}

func (s *PrincipalStore) GetPrincipalByEmail(ctx context.Context, email string) (*ea.Principal, error) {
	return s.getByReservation(ctx, KindPrincipalEmail, ea.NormalizeEmail(email))
}

func (s *PrincipalStore) GetPrincipalByGoogleID(ctx context.Context, googleID string) (*ea.Principal, error) {
	return s.getByReservation(ctx, KindPrincipalGoogleID, googleID)
}

func (s *PrincipalStore) GetPrincipalByRefreshToken(ctx context.Context, tokenHash string) (*ea.Principal, error) {
	if tokenHash == "" {
		return nil, ea.ErrNotFound
	}
	query := datastore.NewQuery(KindPrincipal).
		Namespace(s.namespace).
		FilterField("refresh_token_hash", "=", tokenHash).
		Limit(1)

	it := s.client.Run(ctx, query)
	var entity PrincipalEntity
	_, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, ea.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entity.ToPrincipal(), nil
}

// UpdatePrincipalIdentity moves the email and google id reservations along
// with the principal in one transaction
func (s *PrincipalStore) UpdatePrincipalIdentity(ctx context.Context, p *ea.Principal) error {
	key := s.namespacedKey(KindPrincipal, p.ID)
	email := ea.NormalizeEmail(p.Email)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity PrincipalEntity
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return ea.ErrNotFound
			}
			return err
		}
		if entity.Email != email {
			if err := s.reserve(tx, KindPrincipalEmail, email, p.ID); err != nil {
				return err
			}
			if err := tx.Delete(s.namespacedKey(KindPrincipalEmail, entity.Email)); err != nil {
				return err
			}
		}
		if entity.GoogleID != p.GoogleID {
			if p.GoogleID != "" {
				if err := s.reserve(tx, KindPrincipalGoogleID, p.GoogleID, p.ID); err != nil {
					return err
				}
			}
			if entity.GoogleID != "" {
				if err := tx.Delete(s.namespacedKey(KindPrincipalGoogleID, entity.GoogleID)); err != nil {
					return err
				}
			}
		}
		entity.Email = email
		entity.Name = p.Name
		entity.PhotoURL = p.PhotoURL
		entity.PhotoSourceURL = p.PhotoSourceURL
		entity.GoogleID = p.GoogleID
		entity.UpdatedAt = time.Now()
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

func (s *PrincipalStore) SetRefreshToken(ctx context.Context, principalID, tokenHash string, expiresAt time.Time) error {
	return s.updateToken(ctx, principalID, func(entity *PrincipalEntity) error {
		entity.RefreshTokenHash = tokenHash
		entity.RefreshTokenExpiresAt = expiresAt
		return nil
	})
}

func (s *PrincipalStore) ReplaceRefreshToken(ctx context.Context, principalID, currentHash, newHash string, expiresAt time.Time) error {
	return s.updateToken(ctx, principalID, func(entity *PrincipalEntity) error {
		if currentHash == "" || entity.RefreshTokenHash != currentHash {
			return ea.ErrTokenMismatch
		}
		entity.RefreshTokenHash = newHash
		entity.RefreshTokenExpiresAt = expiresAt
		return nil
	})
}

// updateToken applies fn to the principal inside a transaction. Datastore
// retries the transaction on contention, so fn sees the committed state.
func (s *PrincipalStore) updateToken(ctx context.Context, principalID string, fn func(*PrincipalEntity) error) error {
	if principalID == "" {
		return ea.ErrNotFound
	}
	key := s.namespacedKey(KindPrincipal, principalID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity PrincipalEntity
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return ea.ErrNotFound
			}
			return err
		}
		if err := fn(&entity); err != nil {
			return err
		}
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

// reserve claims value for principalID, failing with ErrDuplicate if another
// principal holds it
func (s *PrincipalStore) reserve(tx *datastore.Transaction, kind, value, principalID string) error {
	key := s.namespacedKey(kind, value)
	var existing ReservationEntity
	err := tx.Get(key, &existing)
	if err == nil && existing.PrincipalID != principalID {
		return fmt.Errorf("%s %q: %w", kind, value, ea.ErrDuplicate)
	}
	if err != nil && err != datastore.ErrNoSuchEntity {
		return err
	}
	_, err = tx.Put(key, &ReservationEntity{Key: key, PrincipalID: principalID, CreatedAt: time.Now()})
	return err
}

func (s *PrincipalStore) getByReservation(ctx context.Context, kind, value string) (*ea.Principal, error) {
	if value == "" {
		return nil, ea.ErrNotFound
	}
	var reservation ReservationEntity
	if err := s.client.Get(ctx, s.namespacedKey(kind, value), &reservation); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, ea.ErrNotFound
		}
		return nil, err
	}
	p, err := s.GetPrincipalByID(ctx, reservation.PrincipalID)
	if errors.Is(err, ea.ErrNotFound) {
		return nil, fmt.Errorf("dangling %s reservation for %s: %w", kind, reservation.PrincipalID, ea.ErrNotFound)
	}
	return p, err
}

// ============================================================================
// ProfileStore
// ============================================================================

// ProfileStore implements ea.ProfileStore using Google Cloud Datastore.
// Profiles are keyed by principal id.
type ProfileStore struct {
	client    *datastore.Client
	namespace string
}

// NewProfileStore creates a new Datastore-backed ProfileStore
func NewProfileStore(client *datastore.Client, namespace string) *ProfileStore {
	return &ProfileStore{client: client, namespace: namespace}
}

func (s *ProfileStore) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *ProfileStore) GetProfileByPrincipalID(ctx context.Context, principalID string) (*ea.Profile, error) {
	if principalID == "" {
		return nil, ea.ErrNotFound
	}
	var entity ProfileEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindProfile, principalID), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, ea.ErrNotFound
		}
		return nil, err
	}
	return entity.ToProfile(), nil
}

func (s *ProfileStore) CreateProfile(ctx context.Context, p *ea.Profile) error {
	if p.PrincipalID == "" {
		return fmt.Errorf("profile has no principal id")
	}
	if p.ID == "" {
		p.ID = ea.NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	key := s.namespacedKey(KindProfile, p.PrincipalID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing ProfileEntity
		if err := tx.Get(key, &existing); err == nil {
			return fmt.Errorf("profile for %s: %w", p.PrincipalID, ea.ErrDuplicate)
		} else if err != datastore.ErrNoSuchEntity {
			return err
		}
		_, err := tx.Put(key, ProfileToEntity(p, key))
		return err
	})
	return err
}

// UpdateProfileIdentity changes name and photo inside a transaction
func (s *ProfileStore) UpdateProfileIdentity(ctx context.Context, principalID, name, photo string) error {
	if principalID == "" {
		return ea.ErrNotFound
	}
	key := s.namespacedKey(KindProfile, principalID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity ProfileEntity
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return ea.ErrNotFound
			}
			return err
		}
		entity.Name = name
		entity.Photo = photo
		entity.UpdatedAt = time.Now()
		_, err := tx.Put(key, &entity)
		return err
	})
	return err
}

func (s *ProfileStore) UpdateProfile(ctx context.Context, p *ea.Profile) error {
	key := s.namespacedKey(KindProfile, p.PrincipalID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing ProfileEntity
		if err := tx.Get(key, &existing); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return ea.ErrNotFound
			}
			return err
		}
		p.UpdatedAt = time.Now()
		entity := ProfileToEntity(p, key)
		entity.CreatedAt = existing.CreatedAt
		_, err := tx.Put(key, entity)
		return err
	})
	return err
}
