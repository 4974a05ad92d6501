package estateauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// IdentitySynchronizer keeps each principal's owner profile in step with it
type IdentitySynchronizer struct {
	Profiles ProfileStore
	Logger   *slog.Logger

	now func() time.Time
}

func NewIdentitySynchronizer(profiles ProfileStore) *IdentitySynchronizer {
	return &IdentitySynchronizer{Profiles: profiles}
}

// Sync creates the principal's profile if missing, otherwise overwrites its
// name and photo. Other profile fields are never touched.
func (s *IdentitySynchronizer) Sync(ctx context.Context, p *Principal) (*Profile, error) {
	profile, err := s.Profiles.GetProfileByPrincipalID(ctx, p.ID)
	if errors.Is(err, ErrNotFound) {
		profile, err = s.create(ctx, p)
		if !errors.Is(err, ErrDuplicate) {
			return profile, err
		}
		// lost a creation race, fall through to update the winner's profile
		profile, err = s.Profiles.GetProfileByPrincipalID(ctx, p.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile for %s: %w", p.ID, err)
	}

	if profile.Name == p.Name && profile.Photo == p.PhotoURL {
		return profile, nil
	}
	if err := s.Profiles.UpdateProfileIdentity(ctx, p.ID, p.Name, p.PhotoURL); err != nil {
		return nil, fmt.Errorf("failed to update profile for %s: %w", p.ID, err)
	}
	return s.Profiles.GetProfileByPrincipalID(ctx, p.ID)
}

func (s *IdentitySynchronizer) create(ctx context.Context, p *Principal) (*Profile, error) {
	now := s.clock()
	profile := &Profile{
		ID:          NewID(),
		PrincipalID: p.ID,
		Name:        p.Name,
		Photo:       p.PhotoURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Profiles.CreateProfile(ctx, profile); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create profile for %s: %w", p.ID, err)
	}
	s.logger().Info("created owner profile", "principal_id", p.ID, "profile_id", profile.ID)
	return profile, nil
}

// syncQuietly runs Sync and logs instead of failing the login
func (s *IdentitySynchronizer) syncQuietly(ctx context.Context, p *Principal) {
	if s == nil || s.Profiles == nil {
		return
	}
	if _, err := s.Sync(ctx, p); err != nil {
		s.logger().Warn("profile sync failed", "principal_id", p.ID, "error", err)
	}
}

func (s *IdentitySynchronizer) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *IdentitySynchronizer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
