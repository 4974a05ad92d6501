package estateauth_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	ea "github.com/panyam/estateauth"
	"github.com/panyam/estateauth/stores/fs"
)

const testSecret = "test-signing-secret"

// testClock is a settable clock shared by the token issuer and the assertions
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeExchanger accepts the codes registered in identities
type fakeExchanger struct {
	mu           sync.Mutex
	identities   map[string]*ea.OAuthIdentity
	calls        int
	lastRedirect string
}

func (f *fakeExchanger) Exchange(ctx context.Context, code, redirectURI string) (*ea.OAuthIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastRedirect = redirectURI
	id, ok := f.identities[code]
	if !ok {
		return nil, errors.New("oauth2: invalid_grant")
	}
	out := *id
	return &out, nil
}

func (f *fakeExchanger) redirect() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRedirect
}

func (f *fakeExchanger) accept(code string, id *ea.OAuthIdentity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.identities == nil {
		f.identities = map[string]*ea.OAuthIdentity{}
	}
	f.identities[code] = id
}

// fakeMirror returns url, or err when set. mirror overrides both.
type fakeMirror struct {
	mu      sync.Mutex
	url     string
	err     error
	mirror  func(sourceURL string) (string, error)
	sources []string
	folder  string
}

func (m *fakeMirror) MirrorPhoto(ctx context.Context, sourceURL, folder string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, sourceURL)
	m.folder = folder
	if m.mirror != nil {
		return m.mirror(sourceURL)
	}
	if m.err != nil {
		return "", m.err
	}
	return m.url, nil
}

func (m *fakeMirror) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sources...)
}

// editingProfiles applies an owner edit right after the first profile read,
// the way a catalog request racing a login would
type editingProfiles struct {
	*fs.FSProfileStore
	edit func(p ea.Profile) ea.Profile
	done bool
}

func (s *editingProfiles) GetProfileByPrincipalID(ctx context.Context, principalID string) (*ea.Profile, error) {
	p, err := s.FSProfileStore.GetProfileByPrincipalID(ctx, principalID)
	if err != nil || s.done {
		return p, err
	}
	s.done = true
	edited := s.edit(*p)
	if err := s.FSProfileStore.UpdateProfile(ctx, &edited); err != nil {
		return nil, err
	}
	return p, nil
}

// staleGoogleLookup misses the first google id lookup, as if another login
// created the principal right after it
type staleGoogleLookup struct {
	*fs.FSPrincipalStore
	missed bool
}

func (s *staleGoogleLookup) GetPrincipalByGoogleID(ctx context.Context, googleID string) (*ea.Principal, error) {
	if !s.missed {
		s.missed = true
		return nil, ea.ErrNotFound
	}
	return s.FSPrincipalStore.GetPrincipalByGoogleID(ctx, googleID)
}

// countingHasher records how many passwords were hashed
type countingHasher struct {
	ea.BcryptHasher
	hashes atomic.Int32
}

func (h *countingHasher) Hash(plaintext string) (string, error) {
	h.hashes.Add(1)
	return h.BcryptHasher.Hash(plaintext)
}

// brokenProfiles fails every call
type brokenProfiles struct{}

var errProfilesDown = errors.New("profile store unavailable")

func (brokenProfiles) GetProfileByPrincipalID(ctx context.Context, principalID string) (*ea.Profile, error) {
	return nil, errProfilesDown
}

func (brokenProfiles) CreateProfile(ctx context.Context, p *ea.Profile) error {
	return errProfilesDown
}

func (brokenProfiles) UpdateProfile(ctx context.Context, p *ea.Profile) error {
	return errProfilesDown
}

func (brokenProfiles) UpdateProfileIdentity(ctx context.Context, principalID, name, photo string) error {
	return errProfilesDown
}

type testEnv struct {
	Dir        string
	Principals *fs.FSPrincipalStore
	Profiles   *fs.FSProfileStore
	Clock      *testClock
	Tokens     *ea.TokenIssuer
	OAuth      *fakeExchanger
	Photos     *fakeMirror
	Hasher     *countingHasher
	Metrics    *ea.Metrics
	Auth       *ea.Authenticator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	issuer, err := ea.NewTokenIssuer(testSecret, "estateauth")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	env := &testEnv{
		Dir:        dir,
		Principals: fs.NewFSPrincipalStore(dir),
		Profiles:   fs.NewFSProfileStore(dir),
		Clock:      clock,
		Tokens:     issuer.WithClock(clock.Now),
		OAuth:      &fakeExchanger{},
		Photos:     &fakeMirror{url: "https://images.example.com/profiles/mirrored.jpg"},
		Hasher:     &countingHasher{BcryptHasher: ea.BcryptHasher{Cost: bcrypt.MinCost}},
		Metrics:    ea.NewMetrics(prometheus.NewRegistry()),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	syncer := ea.NewIdentitySynchronizer(env.Profiles)
	syncer.Logger = logger

	env.Auth = &ea.Authenticator{
		Principals:       env.Principals,
		Sync:             syncer,
		Hasher:           env.Hasher,
		Tokens:           env.Tokens,
		OAuth:            env.OAuth,
		Photos:           env.Photos,
		AdminEmailDomain: "agency.example.com",
		Metrics:          env.Metrics,
		Logger:           logger,
	}
	return env
}

// register creates a password principal or fails the test
func (e *testEnv) register(t *testing.T, email, name, password string) *ea.AuthResult {
	t.Helper()
	result, err := e.Auth.Register(context.Background(), ea.RegisterRequest{Email: email, Name: name, Password: password})
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", email, err)
	}
	return result
}

// requireKind fails unless err is an AuthError of the given kind
func requireKind(t *testing.T, err error, want ea.ErrorKind) *ea.AuthError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	var ae *ea.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AuthError, got %T: %v", err, err)
	}
	if ae.Kind != want {
		t.Fatalf("kind = %s, want %s (%v)", ae.Kind, want, err)
	}
	return ae
}
