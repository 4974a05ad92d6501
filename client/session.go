// Package client is a Go client for the estateauth HTTP API. It keeps one
// session per server, refreshes access tokens before they expire and follows
// refresh-token rotation.
package client

import "time"

// UserInfo is the user summary returned with every login
type UserInfo struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoUrl,omitempty"`
	Role     string `json:"role"`
}

// Session is the token pair held for one server. RefreshToken changes on
// every refresh since the server rotates it.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	IssuedAt     time.Time `json:"issued_at"`
	User         UserInfo  `json:"user"`
}

func (s *Session) Expired() bool {
	return !time.Now().Before(s.ExpiresAt)
}

// ExpiresWithin reports whether the access token expires in less than d
func (s *Session) ExpiresWithin(d time.Duration) bool {
	return time.Now().Add(d).After(s.ExpiresAt)
}

func (s *Session) CanRefresh() bool {
	return s.RefreshToken != ""
}

// SessionStore keeps sessions keyed by server URL
type SessionStore interface {
	// Load returns nil, nil when there is no session for serverURL
	Load(serverURL string) (*Session, error)

	Store(serverURL string, s *Session) error
	Delete(serverURL string) error

	// Servers lists the servers with a stored session
	Servers() ([]string, error)

	// Flush persists pending changes for stores that batch writes
	Flush() error
}
