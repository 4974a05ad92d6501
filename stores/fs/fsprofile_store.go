package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	ea "github.com/panyam/estateauth"
)

// FSProfileStore stores owner profiles as JSON files named by principal id,
// which makes the one-profile-per-principal rule structural.
type FSProfileStore struct {
	StoragePath string
	mu          sync.RWMutex
}

func NewFSProfileStore(storagePath string) *FSProfileStore {
	return &FSProfileStore{StoragePath: storagePath}
}

func (s *FSProfileStore) getProfilePath(principalID string) string {
	return filepath.Join(s.StoragePath, "profiles", safeName(principalID)+".json")
}

func (s *FSProfileStore) GetProfileByPrincipalID(ctx context.Context, principalID string) (*ea.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProfileUnsafe(principalID)
}

func (s *FSProfileStore) CreateProfile(ctx context.Context, p *ea.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.PrincipalID == "" {
		return fmt.Errorf("profile has no principal id")
	}
	if _, err := os.Stat(s.getProfilePath(p.PrincipalID)); err == nil {
		return fmt.Errorf("profile for %s: %w", p.PrincipalID, ea.ErrDuplicate)
	}
	if p.ID == "" {
		p.ID = ea.NewID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return s.saveProfileUnsafe(p)
}

func (s *FSProfileStore) UpdateProfile(ctx context.Context, p *ea.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getProfileUnsafe(p.PrincipalID); err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	return s.saveProfileUnsafe(p)
}

func (s *FSProfileStore) UpdateProfileIdentity(ctx context.Context, principalID, name, photo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.getProfileUnsafe(principalID)
	if err != nil {
		return err
	}
	p.Name = name
	p.Photo = photo
	p.UpdatedAt = time.Now()
	return s.saveProfileUnsafe(p)
}

func (s *FSProfileStore) getProfileUnsafe(principalID string) (*ea.Profile, error) {
	if principalID == "" {
		return nil, ea.ErrNotFound
	}
	return readJSON[ea.Profile](s.getProfilePath(principalID))
}

func (s *FSProfileStore) saveProfileUnsafe(p *ea.Profile) error {
	return writeJSON(s.getProfilePath(p.PrincipalID), p)
}
