package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ea "github.com/panyam/estateauth"
)

// FSPrincipalStore stores principals as JSON files, one per principal.
// Lookups other than by id scan the directory.
type FSPrincipalStore struct {
	StoragePath string
	mu          sync.RWMutex
}

// NewFSPrincipalStore creates a new file-based principal store
func NewFSPrincipalStore(storagePath string) *FSPrincipalStore {
	return &FSPrincipalStore{StoragePath: storagePath}
}

func (s *FSPrincipalStore) getPrincipalDir() string {
	return filepath.Join(s.StoragePath, "principals")
}

func (s *FSPrincipalStore) getPrincipalPath(id string) string {
	return filepath.Join(s.getPrincipalDir(), safeName(id)+".json")
}

// CreatePrincipal inserts p, assigning an id if it has none
func (s *FSPrincipalStore) CreatePrincipal(ctx context.Context, p *ea.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = ea.NewID()
	}
	p.Email = ea.NormalizeEmail(p.Email)
	if _, err := os.Stat(s.getPrincipalPath(p.ID)); err == nil {
		return fmt.Errorf("principal %s: %w", p.ID, ea.ErrDuplicate)
	}
	if err := s.checkUniqueUnsafe(p); err != nil {
		return err
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	return s.savePrincipalUnsafe(p)
}

func (s *FSPrincipalStore) GetPrincipalByID(ctx context.Context, id string) (*ea.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPrincipalUnsafe(id)
}

func (s *FSPrincipalStore) GetPrincipalByEmail(ctx context.Context, email string) (*ea.Principal, error) {
	email = ea.NormalizeEmail(email)
	return s.findOne(func(p *ea.Principal) bool { return p.Email == email })
}

func (s *FSPrincipalStore) GetPrincipalByGoogleID(ctx context.Context, googleID string) (*ea.Principal, error) {
	if googleID == "" {
		return nil, ea.ErrNotFound
	}
	return s.findOne(func(p *ea.Principal) bool { return p.GoogleID == googleID })
}

func (s *FSPrincipalStore) GetPrincipalByRefreshToken(ctx context.Context, tokenHash string) (*ea.Principal, error) {
	if tokenHash == "" {
		return nil, ea.ErrNotFound
	}
	return s.findOne(func(p *ea.Principal) bool { return p.RefreshTokenHash == tokenHash })
}

// UpdatePrincipalIdentity overwrites email, name, photo and google id
func (s *FSPrincipalStore) UpdatePrincipalIdentity(ctx context.Context, p *ea.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getPrincipalUnsafe(p.ID)
	if err != nil {
		return err
	}
	if err := s.checkUniqueUnsafe(p); err != nil {
		return err
	}
	existing.Email = ea.NormalizeEmail(p.Email)
	existing.Name = p.Name
	existing.PhotoURL = p.PhotoURL
	existing.PhotoSourceURL = p.PhotoSourceURL
	existing.GoogleID = p.GoogleID
	existing.UpdatedAt = time.Now()
	return s.savePrincipalUnsafe(existing)
}

func (s *FSPrincipalStore) SetRefreshToken(ctx context.Context, principalID, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.getPrincipalUnsafe(principalID)
	if err != nil {
		return err
	}
	p.RefreshTokenHash = tokenHash
	p.RefreshTokenExpiresAt = expiresAt
	return s.savePrincipalUnsafe(p)
}

// ReplaceRefreshToken swaps the token under the write lock so only one of
// several concurrent callers presenting currentHash succeeds
func (s *FSPrincipalStore) ReplaceRefreshToken(ctx context.Context, principalID, currentHash, newHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.getPrincipalUnsafe(principalID)
	if err != nil {
		return err
	}
	if currentHash == "" || p.RefreshTokenHash != currentHash {
		return ea.ErrTokenMismatch
	}
	p.RefreshTokenHash = newHash
	p.RefreshTokenExpiresAt = expiresAt
	return s.savePrincipalUnsafe(p)
}

// checkUniqueUnsafe fails if another principal holds p's email or google id
func (s *FSPrincipalStore) checkUniqueUnsafe(p *ea.Principal) error {
	email := ea.NormalizeEmail(p.Email)
	all, err := s.listUnsafe()
	if err != nil {
		return err
	}
	for _, other := range all {
		if other.ID == p.ID {
			continue
		}
		if other.Email == email {
			return fmt.Errorf("email %s: %w", email, ea.ErrDuplicate)
		}
		if p.GoogleID != "" && other.GoogleID == p.GoogleID {
			return fmt.Errorf("google id: %w", ea.ErrDuplicate)
		}
	}
	return nil
}

func (s *FSPrincipalStore) findOne(match func(*ea.Principal) bool) (*ea.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all, err := s.listUnsafe()
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		if match(p) {
			return p, nil
		}
	}
	return nil, ea.ErrNotFound
}

func (s *FSPrincipalStore) listUnsafe() ([]*ea.Principal, error) {
	entries, err := os.ReadDir(s.getPrincipalDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]*ea.Principal, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		p, err := s.getPrincipalUnsafe(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// getPrincipalUnsafe reads a principal without locking (caller must hold lock)
func (s *FSPrincipalStore) getPrincipalUnsafe(id string) (*ea.Principal, error) {
	if id == "" {
		return nil, ea.ErrNotFound
	}
	return readJSON[ea.Principal](s.getPrincipalPath(id))
}

func (s *FSPrincipalStore) savePrincipalUnsafe(p *ea.Principal) error {
	return writeJSON(s.getPrincipalPath(p.ID), p)
}

// safeName prevents path traversal through ids
func safeName(id string) string {
	return filepath.Base(filepath.Clean("/" + id))
}
