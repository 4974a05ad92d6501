package fs_test

import (
	"testing"

	ea "github.com/panyam/estateauth"
	"github.com/panyam/estateauth/stores/fs"
	"github.com/panyam/estateauth/stores/storetest"
)

func TestFSPrincipalStore(t *testing.T) {
	storetest.RunPrincipalStoreTests(t, func(t *testing.T) ea.PrincipalStore {
		return fs.NewFSPrincipalStore(t.TempDir())
	})
}

func TestFSProfileStore(t *testing.T) {
	storetest.RunProfileStoreTests(t, func(t *testing.T) ea.ProfileStore {
		return fs.NewFSProfileStore(t.TempDir())
	})
}

func TestFSPrincipalStorePathTraversal(t *testing.T) {
	dir := t.TempDir()
	store := fs.NewFSPrincipalStore(dir)
	p := storetest.NewPrincipal("evil")
	p.ID = "../../escape"
	if err := store.CreatePrincipal(t.Context(), p); err != nil {
		t.Fatalf("CreatePrincipal failed: %v", err)
	}
	got, err := store.GetPrincipalByID(t.Context(), "escape")
	if err != nil {
		t.Fatalf("Expected principal stored under its base name: %v", err)
	}
	if got.Email != p.Email {
		t.Errorf("Expected %s, got %s", p.Email, got.Email)
	}
}
