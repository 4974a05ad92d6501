// Package storetest holds behavioural tests every PrincipalStore and
// ProfileStore implementation must pass. Backends call the Run functions from
// their own _test.go files.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ea "github.com/panyam/estateauth"
)

// NewPrincipal returns a fresh password principal with a unique email
func NewPrincipal(label string) *ea.Principal {
	id := ea.NewID()
	return &ea.Principal{
		ID:           id,
		Email:        fmt.Sprintf("%s-%s@example.com", label, id[:8]),
		Name:         label,
		PasswordHash: "$2a$10$notarealhashnotarealhashnotarealhashnotarealhashnotar",
		Role:         ea.RoleOwner,
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

// RunPrincipalStoreTests exercises a PrincipalStore. newStore is called once
// per subtest.
func RunPrincipalStoreTests(t *testing.T, newStore func(t *testing.T) ea.PrincipalStore) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		store := newStore(t)
		p := NewPrincipal("alice")
		p.Email = "Alice-" + p.ID[:8] + "@Example.com"
		if err := store.CreatePrincipal(ctx, p); err != nil {
			t.Fatalf("CreatePrincipal failed: %v", err)
		}

		byID, err := store.GetPrincipalByID(ctx, p.ID)
		if err != nil {
			t.Fatalf("GetPrincipalByID failed: %v", err)
		}
		if byID.Email != ea.NormalizeEmail(p.Email) {
			t.Errorf("Expected normalized email %q, got %q", ea.NormalizeEmail(p.Email), byID.Email)
		}
		if byID.PasswordHash != p.PasswordHash || byID.Role != ea.RoleOwner {
			t.Errorf("Stored principal does not match: %+v", byID)
		}

		byEmail, err := store.GetPrincipalByEmail(ctx, p.Email)
		if err != nil {
			t.Fatalf("GetPrincipalByEmail failed: %v", err)
		}
		if byEmail.ID != p.ID {
			t.Errorf("Expected id %s, got %s", p.ID, byEmail.ID)
		}
	})

	t.Run("AssignsID", func(t *testing.T) {
		store := newStore(t)
		p := NewPrincipal("noid")
		p.ID = ""
		if err := store.CreatePrincipal(ctx, p); err != nil {
			t.Fatalf("CreatePrincipal failed: %v", err)
		}
		if p.ID == "" {
			t.Fatal("Expected store to assign an id")
		}
		if _, err := store.GetPrincipalByID(ctx, p.ID); err != nil {
			t.Errorf("GetPrincipalByID failed: %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.GetPrincipalByID(ctx, ea.NewID()); !errors.Is(err, ea.ErrNotFound) {
			t.Errorf("Expected ErrNotFound by id, got %v", err)
		}
		if _, err := store.GetPrincipalByEmail(ctx, "nobody@example.com"); !errors.Is(err, ea.ErrNotFound) {
			t.Errorf("Expected ErrNotFound by email, got %v", err)
		}
		if _, err := store.GetPrincipalByGoogleID(ctx, "missing-sub"); !errors.Is(err, ea.ErrNotFound) {
			t.Errorf("Expected ErrNotFound by google id, got %v", err)
		}
		if _, err := store.GetPrincipalByRefreshToken(ctx, ""); !errors.Is(err, ea.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for empty token hash, got %v", err)
		}
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		store := newStore(t)
		first := NewPrincipal("dup")
		if err := store.CreatePrincipal(ctx, first); err != nil {
			t.Fatalf("CreatePrincipal failed: %v", err)
		}
		second := NewPrincipal("dup")
		second.Email = first.Email
		if err := store.CreatePrincipal(ctx, second); !errors.Is(err, ea.ErrDuplicate) {
			t.Errorf("Expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("DuplicateGoogleID", func(t *testing.T) {
		store := newStore(t)
		sub := "google-" + ea.NewID()
		first := NewPrincipal("g1")
		first.GoogleID = sub
		if err := store.CreatePrincipal(ctx, first); err != nil {
			t.Fatalf("CreatePrincipal failed: %v", err)
		}
		second := NewPrincipal("g2")
		second.GoogleID = sub
		if err := store.CreatePrincipal(ctx, second); !errors.Is(err, ea.ErrDuplicate) {
			t.Errorf("Expected ErrDuplicate, got %v", err)
		}

		// principals without a google id never collide with each other
		a, b := NewPrincipal("nog1"), NewPrincipal("nog2")
		if err := store.CreatePrincipal(ctx, a); err != nil {
			t.Fatalf("CreatePrincipal failed: %v", err)
		}
		if err := store.CreatePrincipal(ctx, b); err != nil {
			t.Fatalf("CreatePrincipal without google id failed: %v", err)
		}

		found, err := store.GetPrincipalByGoogleID(ctx, sub)
		if err != nil || found.ID != first.ID {
			t.Errorf("Expected %s by google id, got %v, %v", first.ID, found, err)
		}
	})

	t.Run("UpdateIdentity", func(t *testing.T) {
		store := newStore(t)
		p := NewPrincipal("upd")
		if err := store.CreatePrincipal(ctx, p); err != nil {
			t.Fatalf("CreatePrincipal failed: %v", err)
		}
		p.Name = "Updated Name"
		p.PhotoURL = "https://images.example.com/p.png"
		p.PhotoSourceURL = "https://lh3.example.com/p.jpg"
		p.GoogleID = "google-" + p.ID
		if err := store.UpdatePrincipalIdentity(ctx, p); err != nil {
			t.Fatalf("UpdatePrincipalIdentity failed: %v", err)
		}
		got, err := store.GetPrincipalByGoogleID(ctx, p.GoogleID)
		if err != nil {
			t.Fatalf("GetPrincipalByGoogleID failed: %v", err)
		}
		if got.Name != "Updated Name" || got.PhotoURL != p.PhotoURL || got.PhotoSourceURL != p.PhotoSourceURL {
			t.Errorf("Identity not updated: %+v", got)
		}
		if got.PasswordHash != p.PasswordHash {
			t.Error("Password hash should be untouched by identity update")
		}

		other := NewPrincipal("other")
		if err := store.CreatePrincipal(ctx, other); err != nil {
			t.Fatalf("CreatePrincipal failed: %v", err)
		}
		other.Email = p.Email
		if err := store.UpdatePrincipalIdentity(ctx, other); !errors.Is(err, ea.ErrDuplicate) {
			t.Errorf("Expected ErrDuplicate when taking another email, got %v", err)
		}
	})

	t.Run("RefreshTokenLifecycle", func(t *testing.T) {
		store := newStore(t)
		p := NewPrincipal("tok")
		if err := store.CreatePrincipal(ctx, p); err != nil {
			t.Fatalf("CreatePrincipal failed: %v", err)
		}
		expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		h1, h2, h3, h4 := "hash-1-"+p.ID, "hash-2-"+p.ID, "hash-3-"+p.ID, "hash-4-"+p.ID

		if err := store.SetRefreshToken(ctx, p.ID, h1, expires); err != nil {
			t.Fatalf("SetRefreshToken failed: %v", err)
		}
		got, err := store.GetPrincipalByRefreshToken(ctx, h1)
		if err != nil {
			t.Fatalf("GetPrincipalByRefreshToken failed: %v", err)
		}
		if got.ID != p.ID || !got.RefreshTokenExpiresAt.Equal(expires) {
			t.Errorf("Unexpected principal for token: %+v", got)
		}

		if err := store.ReplaceRefreshToken(ctx, p.ID, h1, h2, expires); err != nil {
			t.Fatalf("ReplaceRefreshToken failed: %v", err)
		}
		if _, err := store.GetPrincipalByRefreshToken(ctx, h1); !errors.Is(err, ea.ErrNotFound) {
			t.Errorf("Old token should no longer resolve, got %v", err)
		}
		if err := store.ReplaceRefreshToken(ctx, p.ID, h1, h3, expires); !errors.Is(err, ea.ErrTokenMismatch) {
			t.Errorf("Expected ErrTokenMismatch replaying old token, got %v", err)
		}

		if err := store.SetRefreshToken(ctx, p.ID, "", time.Time{}); err != nil {
			t.Fatalf("Clearing refresh token failed: %v", err)
		}
		if _, err := store.GetPrincipalByRefreshToken(ctx, h2); !errors.Is(err, ea.ErrNotFound) {
			t.Errorf("Cleared token should not resolve, got %v", err)
		}
		if err := store.ReplaceRefreshToken(ctx, p.ID, "", h4, expires); !errors.Is(err, ea.ErrTokenMismatch) {
			t.Errorf("Expected ErrTokenMismatch for empty current hash, got %v", err)
		}
		if err := store.SetRefreshToken(ctx, ea.NewID(), "x", expires); !errors.Is(err, ea.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for unknown principal, got %v", err)
		}
	})

	t.Run("ConcurrentReplaceSingleWinner", func(t *testing.T) {
		store := newStore(t)
		p := NewPrincipal("race")
		if err := store.CreatePrincipal(ctx, p); err != nil {
			t.Fatalf("CreatePrincipal failed: %v", err)
		}
		expires := time.Now().Add(time.Hour)
		if err := store.SetRefreshToken(ctx, p.ID, "start-"+p.ID, expires); err != nil {
			t.Fatalf("SetRefreshToken failed: %v", err)
		}

		const workers = 8
		var wins, mismatches atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := store.ReplaceRefreshToken(ctx, p.ID, "start-"+p.ID, fmt.Sprintf("next-%d-%s", i, p.ID), expires)
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, ea.ErrTokenMismatch):
					mismatches.Add(1)
				default:
					t.Errorf("Unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		if wins.Load() != 1 {
			t.Errorf("Expected exactly one winner, got %d", wins.Load())
		}
		if mismatches.Load() != workers-1 {
			t.Errorf("Expected %d mismatches, got %d", workers-1, mismatches.Load())
		}
	})
}

// RunProfileStoreTests exercises a ProfileStore
func RunProfileStoreTests(t *testing.T, newStore func(t *testing.T) ea.ProfileStore) {
	ctx := context.Background()

	newProfile := func() *ea.Profile {
		return &ea.Profile{
			ID:          ea.NewID(),
			PrincipalID: ea.NewID(),
			Name:        "Owner",
			Photo:       "https://images.example.com/o.png",
			CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
		}
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		store := newStore(t)
		p := newProfile()
		p.Address = "1 Main St"
		if err := store.CreateProfile(ctx, p); err != nil {
			t.Fatalf("CreateProfile failed: %v", err)
		}
		got, err := store.GetProfileByPrincipalID(ctx, p.PrincipalID)
		if err != nil {
			t.Fatalf("GetProfileByPrincipalID failed: %v", err)
		}
		if got.ID != p.ID || got.Name != "Owner" || got.Address != "1 Main St" {
			t.Errorf("Unexpected profile: %+v", got)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.GetProfileByPrincipalID(ctx, ea.NewID()); !errors.Is(err, ea.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("OnePerPrincipal", func(t *testing.T) {
		store := newStore(t)
		p := newProfile()
		if err := store.CreateProfile(ctx, p); err != nil {
			t.Fatalf("CreateProfile failed: %v", err)
		}
		again := newProfile()
		again.PrincipalID = p.PrincipalID
		if err := store.CreateProfile(ctx, again); !errors.Is(err, ea.ErrDuplicate) {
			t.Errorf("Expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("ConcurrentCreateSingleWinner", func(t *testing.T) {
		store := newStore(t)
		principalID := ea.NewID()

		const workers = 6
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p := newProfile()
				p.PrincipalID = principalID
				err := store.CreateProfile(ctx, p)
				if err == nil {
					wins.Add(1)
				} else if !errors.Is(err, ea.ErrDuplicate) {
					t.Errorf("Unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Errorf("Expected exactly one profile created, got %d", wins.Load())
		}
	})

	t.Run("Update", func(t *testing.T) {
		store := newStore(t)
		p := newProfile()
		p.Phone = "555-1234"
		if err := store.CreateProfile(ctx, p); err != nil {
			t.Fatalf("CreateProfile failed: %v", err)
		}
		p.Name = "Renamed"
		if err := store.UpdateProfile(ctx, p); err != nil {
			t.Fatalf("UpdateProfile failed: %v", err)
		}
		got, err := store.GetProfileByPrincipalID(ctx, p.PrincipalID)
		if err != nil {
			t.Fatalf("GetProfileByPrincipalID failed: %v", err)
		}
		if got.Name != "Renamed" || got.Phone != "555-1234" {
			t.Errorf("Unexpected profile after update: %+v", got)
		}

		missing := newProfile()
		if err := store.UpdateProfile(ctx, missing); !errors.Is(err, ea.ErrNotFound) {
			t.Errorf("Expected ErrNotFound updating missing profile, got %v", err)
		}
	})

	t.Run("UpdateIdentityKeepsOwnerFields", func(t *testing.T) {
		store := newStore(t)
		p := newProfile()
		if err := store.CreateProfile(ctx, p); err != nil {
			t.Fatalf("CreateProfile failed: %v", err)
		}

		// owner edits after the caller last read the profile
		edited := *p
		edited.Address = "9 Harbour Rd"
		edited.Phone = "555-9876"
		if err := store.UpdateProfile(ctx, &edited); err != nil {
			t.Fatalf("UpdateProfile failed: %v", err)
		}

		if err := store.UpdateProfileIdentity(ctx, p.PrincipalID, "New Name", "https://images.example.com/n.png"); err != nil {
			t.Fatalf("UpdateProfileIdentity failed: %v", err)
		}
		got, err := store.GetProfileByPrincipalID(ctx, p.PrincipalID)
		if err != nil {
			t.Fatalf("GetProfileByPrincipalID failed: %v", err)
		}
		if got.Name != "New Name" || got.Photo != "https://images.example.com/n.png" {
			t.Errorf("Identity fields not updated: %+v", got)
		}
		if got.Address != "9 Harbour Rd" || got.Phone != "555-9876" {
			t.Errorf("Owner fields overwritten: %+v", got)
		}

		if err := store.UpdateProfileIdentity(ctx, ea.NewID(), "x", ""); !errors.Is(err, ea.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for missing profile, got %v", err)
		}
	})
}
