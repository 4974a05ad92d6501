package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// RefreshThreshold is how long before expiry to proactively refresh
const RefreshThreshold = 5 * time.Minute

// ErrSessionExpired is returned when the server rejects the stored refresh
// token. The session is removed and the user must log in again.
var ErrSessionExpired = errors.New("session expired, login required")

// AuthClient is an HTTP client with automatic token management
type AuthClient struct {
	mu            sync.Mutex
	serverURL     string
	store         SessionStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
	pathPrefix    string // e.g., "/auth"
}

// TokenResponse is the body of login, register, google-login and
// refresh-token responses. User is absent on refresh.
type TokenResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresIn    int64     `json:"expiresIn"`
	User         *UserInfo `json:"user,omitempty"`
}

// ErrorResponse is the body of a failed request
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	Field            string `json:"field,omitempty"`
}

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	ErrorResponse
}

func (e *APIError) Error() string {
	if e.ErrorDescription != "" {
		return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.ErrorDescription)
	}
	if e.ErrorResponse.Error != "" {
		return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.ErrorResponse.Error)
	}
	return fmt.Sprintf("request failed: HTTP %d", e.StatusCode)
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithPathPrefix sets the path the auth routes are mounted under
func WithPathPrefix(prefix string) ClientOption {
	return func(c *AuthClient) {
		c.pathPrefix = "/" + strings.Trim(prefix, "/")
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// The transport from this client will be wrapped with auth handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
		c.httpClient.CheckRedirect = client.CheckRedirect
		c.httpClient.Jar = client.Jar
	}
}

// WithTransport sets a custom base transport (for connection pooling, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

// NewAuthClient creates a new authenticated HTTP client for a server
func NewAuthClient(serverURL string, store SessionStore, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &AuthClient{
		serverURL:     serverURL,
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
		pathPrefix:    "/auth",
	}
	for _, opt := range opts {
		opt(c)
	}

	c.httpClient.Transport = &refreshTransport{
		client: c,
		base:   c.baseTransport,
	}
	return c
}

// HTTPClient returns the underlying HTTP client with auth handling
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

// ServerURL returns the server URL this client is configured for
func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// Session returns the stored session for this server, or nil
func (c *AuthClient) Session() (*Session, error) {
	return c.store.Load(c.serverURL)
}

// GetToken returns the current access token, refreshing it first when it is
// about to expire. Returns "" when there is no usable session.
func (c *AuthClient) GetToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.store.Load(c.serverURL)
	if err != nil || sess == nil {
		return "", err
	}

	if sess.ExpiresWithin(RefreshThreshold) && sess.CanRefresh() {
		refreshed, err := c.refreshLocked(ctx, sess)
		if err != nil {
			// still usable until it actually expires
			if !errors.Is(err, ErrSessionExpired) && !sess.Expired() {
				return sess.AccessToken, nil
			}
			return "", fmt.Errorf("token expired and refresh failed: %w", err)
		}
		sess = refreshed
	}

	if sess.Expired() {
		return "", nil
	}
	return sess.AccessToken, nil
}

// Register creates an account and stores the returned session
func (c *AuthClient) Register(ctx context.Context, email, name, password string) (*Session, error) {
	return c.startSession(ctx, "/register", map[string]string{
		"email":    email,
		"name":     name,
		"password": password,
	})
}

// Login authenticates with email and password and stores the returned session
func (c *AuthClient) Login(ctx context.Context, email, password string) (*Session, error) {
	return c.startSession(ctx, "/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// LoginWithGoogle exchanges a Google authorization code for a session
func (c *AuthClient) LoginWithGoogle(ctx context.Context, code string) (*Session, error) {
	return c.startSession(ctx, "/google-login", map[string]string{"code": code})
}

func (c *AuthClient) startSession(ctx context.Context, path string, body any) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.post(ctx, path, body, "")
	if err != nil {
		return nil, err
	}
	sess := sessionFrom(resp)
	if resp.User != nil {
		sess.User = *resp.User
	}
	if err := c.persist(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Refresh rotates the stored refresh token regardless of access token expiry
func (c *AuthClient) Refresh(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.store.Load(c.serverURL)
	if err != nil {
		return nil, err
	}
	if sess == nil || !sess.CanRefresh() {
		return nil, ErrSessionExpired
	}
	return c.refreshLocked(ctx, sess)
}

// Logout invalidates the refresh token on the server and removes the local
// session. The local session is removed even if the server call fails.
func (c *AuthClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.store.Load(c.serverURL)
	if err != nil {
		return err
	}

	var serverErr error
	if sess != nil && sess.AccessToken != "" {
		_, serverErr = c.post(ctx, "/logout", nil, sess.AccessToken)
		var apiErr *APIError
		if errors.As(serverErr, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusNotFound) {
			// nothing left to revoke
			serverErr = nil
		}
	}

	if err := c.store.Delete(c.serverURL); err != nil {
		return err
	}
	if err := c.store.Flush(); err != nil {
		return err
	}
	return serverErr
}

// IsLoggedIn returns true if there is a session whose access token has not expired
func (c *AuthClient) IsLoggedIn() bool {
	sess, err := c.store.Load(c.serverURL)
	if err != nil || sess == nil {
		return false
	}
	return !sess.Expired()
}

// refreshLocked exchanges the refresh token of sess for a new pair. The server
// rotates refresh tokens so the old one is dead after this call. A rejected
// refresh token removes the session. Caller must hold c.mu.
func (c *AuthClient) refreshLocked(ctx context.Context, sess *Session) (*Session, error) {
	resp, err := c.post(ctx, "/refresh-token", map[string]string{"refreshToken": sess.RefreshToken}, "")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			c.store.Delete(c.serverURL)
			c.store.Flush()
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return nil, err
	}

	next := sessionFrom(resp)
	next.User = sess.User
	if err := c.persist(next); err != nil {
		return nil, err
	}
	return next, nil
}

// forceRefresh refreshes after the server rejected staleToken, unless another
// caller already replaced it.
func (c *AuthClient) forceRefresh(ctx context.Context, staleToken string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.store.Load(c.serverURL)
	if err != nil || sess == nil {
		return "", err
	}
	if sess.AccessToken != staleToken && !sess.Expired() {
		return sess.AccessToken, nil
	}
	if !sess.CanRefresh() {
		return "", nil
	}
	refreshed, err := c.refreshLocked(ctx, sess)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (c *AuthClient) persist(sess *Session) error {
	if err := c.store.Store(c.serverURL, sess); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	if err := c.store.Flush(); err != nil {
		return fmt.Errorf("failed to save sessions: %w", err)
	}
	return nil
}

// post sends a JSON request to an auth route using the base transport to
// avoid the refresh loop.
func (c *AuthClient) post(ctx context.Context, path string, body any, bearer string) (*TokenResponse, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+c.pathPrefix+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", c.serverURL)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	httpClient := &http.Client{Transport: c.baseTransport, Timeout: c.httpClient.Timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		json.Unmarshal(data, &apiErr.ErrorResponse)
		return nil, apiErr
	}
	if resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return &TokenResponse{}, nil
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(data, &tokenResp); err != nil {
		return nil, fmt.Errorf("invalid response from server: %w", err)
	}
	return &tokenResp, nil
}

func sessionFrom(resp *TokenResponse) *Session {
	now := time.Now()
	return &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(resp.ExpiresIn) * time.Second),
		IssuedAt:     now,
	}
}

// refreshTransport is an http.RoundTripper that adds auth and handles refresh
type refreshTransport struct {
	client *AuthClient
	base   http.RoundTripper
}

func (t *refreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.client.GetToken(req.Context())
	if err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(withBearer(req, token))
	if err != nil {
		return nil, err
	}

	// retry once with a fresh token; bodies that cannot be replayed are not retried
	if resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	newToken, err := t.client.forceRefresh(req.Context(), token)
	if err != nil || newToken == "" || newToken == token {
		return resp, nil
	}
	resp.Body.Close()

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		if retry.Body, err = req.GetBody(); err != nil {
			return nil, err
		}
	}
	return t.base.RoundTrip(withBearer(retry, newToken))
}
