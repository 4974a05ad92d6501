// Package fs keeps estateauth client sessions in a JSON file.
package fs

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/panyam/estateauth/client"
)

// DefaultAppName names the config directory when no path is given
const DefaultAppName = "estateauth"

// FSSessionStore keeps one session per server in a single file readable only
// by its owner. Changes are held in memory until Flush.
type FSSessionStore struct {
	mu    sync.RWMutex
	path  string
	byKey map[string]*client.Session
	dirty bool
}

type sessionFile struct {
	Servers map[string]*client.Session `json:"servers"`
}

// NewFSSessionStore opens the session file at path, which need not exist yet.
// An empty path means <user config dir>/<appName>/sessions.json.
func NewFSSessionStore(path string, appName string) (*FSSessionStore, error) {
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		if appName == "" {
			appName = DefaultAppName
		}
		path = filepath.Join(dir, appName, "sessions.json")
	}

	s := &FSSessionStore{path: path, byKey: map[string]*client.Session{}}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, err
	}

	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	if file.Servers != nil {
		s.byKey = file.Servers
	}
	return s, nil
}

func configDir() (string, error) {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine config directory: %w", err)
	}
	return filepath.Join(home, ".config"), nil
}

// serverKey reduces a server URL to scheme://host
func serverKey(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.Scheme + "://" + u.Host, nil
}

// Load returns a copy of the session for serverURL, or nil
func (s *FSSessionStore) Load(serverURL string) (*client.Session, error) {
	key, err := serverKey(serverURL)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	sess := s.byKey[key]
	if sess == nil {
		return nil, nil
	}
	out := *sess
	return &out, nil
}

func (s *FSSessionStore) Store(serverURL string, sess *client.Session) error {
	key, err := serverKey(serverURL)
	if err != nil {
		return err
	}
	stored := *sess

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[key] = &stored
	s.dirty = true
	return nil
}

func (s *FSSessionStore) Delete(serverURL string) error {
	key, err := serverKey(serverURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[key]; ok {
		delete(s.byKey, key)
		s.dirty = true
	}
	return nil
}

// Servers returns the stored server keys in sorted order
func (s *FSSessionStore) Servers() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Flush writes pending changes by replacing the file, so readers never see a
// partial write.
func (s *FSSessionStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(sessionFile{Servers: s.byKey}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sessions: %w", err)
	}

	// CreateTemp opens with 0600
	tmp, err := os.CreateTemp(dir, ".sessions-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write sessions: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write sessions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write sessions: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write sessions: %w", err)
	}
	s.dirty = false
	return nil
}

// Path returns the session file location
func (s *FSSessionStore) Path() string {
	return s.path
}
