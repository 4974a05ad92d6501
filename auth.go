package estateauth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// OAuthIdentity is a verified identity assertion from an external provider
type OAuthIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// OAuthExchanger turns an authorization code into a verified identity
type OAuthExchanger interface {
	Exchange(ctx context.Context, code, redirectURI string) (*OAuthIdentity, error)
}

// PhotoMirror copies a remote image into our own image host and returns its URL
type PhotoMirror interface {
	MirrorPhoto(ctx context.Context, sourceURL, folder string) (string, error)
}

// DefaultPhotoTimeout bounds photo mirroring during OAuth login
const DefaultPhotoTimeout = 10 * time.Second

// UserSummary is the public view of a principal returned to clients
type UserSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoUrl,omitempty"`
	Role     Role   `json:"role"`
}

// AuthResult is returned by every successful login flow
type AuthResult struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresIn    int64       `json:"expiresIn"`
	User         UserSummary `json:"user"`
}

// RefreshResult is returned by a successful refresh
type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Authenticator implements registration, the login flows, refresh and logout
type Authenticator struct {
	Principals PrincipalStore
	Sync       *IdentitySynchronizer
	Hasher     PasswordHasher
	Tokens     *TokenIssuer

	// OAuth is optional; without it OAuth logins fail with an upstream error
	OAuth OAuthExchanger

	// Photos is optional; provider photo URLs are kept as-is without it
	Photos       PhotoMirror
	PhotoTimeout time.Duration

	// Emails in this domain are registered as ADMIN
	AdminEmailDomain string

	Metrics *Metrics
	Logger  *slog.Logger
}

// Summarize returns the public view of p
func Summarize(p *Principal) UserSummary {
	return UserSummary{
		ID:       p.ID,
		Email:    p.Email,
		Name:     p.Name,
		PhotoURL: p.PhotoURL,
		Role:     p.Role,
	}
}

// Register creates a password principal and logs it in
func (a *Authenticator) Register(ctx context.Context, req RegisterRequest) (result *AuthResult, err error) {
	defer func() { a.Metrics.observeAuth("register", err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	email := NormalizeEmail(req.Email)

	_, err = a.Principals.GetPrincipalByEmail(ctx, email)
	if err == nil {
		return nil, ConflictError("email", "email is already registered")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, InternalError("failed to register", err)
	}

	hash, err := a.hasher().Hash(req.Password)
	if err != nil {
		return nil, InternalError("failed to register", err)
	}

	now := a.Tokens.Now()
	p := &Principal{
		ID:           NewID(),
		Email:        email,
		Name:         displayName(req.Name, email),
		PasswordHash: hash,
		Role:         a.roleFor(email),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.Principals.CreatePrincipal(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ConflictError("email", "email is already registered")
		}
		return nil, InternalError("failed to register", err)
	}
	a.logger().Info("registered principal", "principal_id", p.ID, "role", p.Role)

	return a.startSession(ctx, p)
}

// LoginWithPassword checks credentials. Unknown email, a principal without a
// password and a wrong password are indistinguishable to the caller.
func (a *Authenticator) LoginWithPassword(ctx context.Context, req LoginRequest) (result *AuthResult, err error) {
	defer func() { a.Metrics.observeAuth("password", err) }()

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, AuthenticationError("invalid credentials")
	}
	p, err := a.Principals.GetPrincipalByEmail(ctx, NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, AuthenticationError("invalid credentials")
		}
		return nil, InternalError("failed to log in", err)
	}
	if !p.HasPassword() || !a.hasher().Verify(req.Password, p.PasswordHash) {
		return nil, AuthenticationError("invalid credentials")
	}
	return a.startSession(ctx, p)
}

// LoginWithOAuthCode exchanges code with the provider, then resolves or
// creates the matching principal. Nothing is written if the exchange fails.
func (a *Authenticator) LoginWithOAuthCode(ctx context.Context, code, redirectURI string) (result *AuthResult, err error) {
	defer func() { a.Metrics.observeAuth("oauth", err) }()

	if strings.TrimSpace(code) == "" {
		return nil, ValidationError("code", "authorization code is required")
	}
	if a.OAuth == nil {
		return nil, UpstreamAuthError("oauth login is not configured", nil)
	}

	identity, err := a.OAuth.Exchange(ctx, code, redirectURI)
	if err != nil {
		var ae *AuthError
		if errors.As(err, &ae) {
			return nil, ae
		}
		return nil, UpstreamAuthError("identity provider rejected the login", err)
	}
	if identity.Subject == "" || identity.Email == "" {
		return nil, UpstreamAuthError("identity provider returned an incomplete identity", nil)
	}

	p, err := a.resolveOAuthPrincipal(ctx, identity)
	if err != nil {
		return nil, err
	}
	return a.startSession(ctx, p)
}

func (a *Authenticator) resolveOAuthPrincipal(ctx context.Context, id *OAuthIdentity) (*Principal, error) {
	email := NormalizeEmail(id.Email)

	p, err := a.Principals.GetPrincipalByGoogleID(ctx, id.Subject)
	if err == nil {
		changed := false
		if email != p.Email {
			p.Email, changed = email, true
		}
		if id.Name != "" && id.Name != p.Name {
			p.Name, changed = id.Name, true
		}
		if a.refreshPhoto(ctx, p, id.Picture) {
			changed = true
		}
		if changed {
			if err := a.updateIdentity(ctx, p); err != nil {
				return nil, err
			}
		}
		return p, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, InternalError("failed to log in", err)
	}

	// Not seen this subject before. Link to an existing account with the same
	// email only when the provider vouches for the address.
	p, err = a.Principals.GetPrincipalByEmail(ctx, email)
	if err == nil {
		if !id.EmailVerified {
			return nil, ConflictError("email", "email is already registered")
		}
		p.GoogleID = id.Subject
		a.refreshPhoto(ctx, p, id.Picture)
		if err := a.updateIdentity(ctx, p); err != nil {
			return nil, err
		}
		a.logger().Info("linked google identity", "principal_id", p.ID)
		return p, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, InternalError("failed to log in", err)
	}

	now := a.Tokens.Now()
	p = &Principal{
		ID:        NewID(),
		Email:     email,
		Name:      displayName(id.Name, email),
		GoogleID:  id.Subject,
		Role:      a.roleFor(email),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if a.Photos == nil {
		p.PhotoURL, p.PhotoSourceURL = id.Picture, id.Picture
	}
	if err := a.Principals.CreatePrincipal(ctx, p); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return nil, InternalError("failed to log in", err)
		}
		// a concurrent first login created it
		existing, gerr := a.Principals.GetPrincipalByGoogleID(ctx, id.Subject)
		if gerr != nil {
			return nil, ConflictError("email", "email is already registered")
		}
		return existing, nil
	}
	a.logger().Info("created principal from google login", "principal_id", p.ID, "role", p.Role)

	// mirror only after the create wins; a failed write is retried next login
	if a.refreshPhoto(ctx, p, id.Picture) {
		if err := a.updateIdentity(ctx, p); err != nil {
			a.logger().Warn("failed to store mirrored photo", "principal_id", p.ID, "error", err)
			p.PhotoURL, p.PhotoSourceURL = "", ""
		}
	}
	return p, nil
}

// Refresh rotates a refresh token. The old token stops working the moment the
// new one is stored; a concurrent or repeated use of it is rejected.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (result *RefreshResult, err error) {
	defer func() { a.Metrics.observeAuth("refresh", err) }()

	if refreshToken == "" {
		return nil, AuthenticationError("refresh token is required")
	}
	currentHash := HashRefreshToken(refreshToken)

	p, err := a.Principals.GetPrincipalByRefreshToken(ctx, currentHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, AuthenticationError("invalid refresh token")
		}
		return nil, InternalError("failed to refresh session", err)
	}
	if p.RefreshTokenExpired(a.Tokens.Now()) {
		return nil, AuthenticationError("refresh token has expired")
	}

	accessToken, accessExpiry, err := a.Tokens.IssueAccessToken(p, 0)
	if err != nil {
		return nil, InternalError("failed to refresh session", err)
	}
	newToken, newExpiry, err := a.Tokens.IssueRefreshToken()
	if err != nil {
		return nil, InternalError("failed to refresh session", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, InternalError("request cancelled", err)
	}

	err = a.Principals.ReplaceRefreshToken(ctx, p.ID, currentHash, HashRefreshToken(newToken), newExpiry)
	a.Metrics.observeRotation(err)
	if err != nil {
		if errors.Is(err, ErrTokenMismatch) {
			a.logger().Warn("refresh token replayed", "principal_id", p.ID)
			return nil, AuthenticationError("refresh token has already been used")
		}
		return nil, InternalError("failed to refresh session", err)
	}

	return &RefreshResult{
		AccessToken:  accessToken,
		RefreshToken: newToken,
		ExpiresIn:    a.expiresIn(accessExpiry),
	}, nil
}

// Logout clears the stored refresh token of the principal named by claims
func (a *Authenticator) Logout(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.Subject == "" {
		return AuthenticationError("missing access token")
	}
	err := a.Principals.SetRefreshToken(ctx, claims.Subject, "", time.Time{})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return NotFoundError("principal not found")
		}
		return InternalError("failed to log out", err)
	}
	a.logger().Info("logged out", "principal_id", claims.Subject)
	return nil
}

// CurrentUser returns the summary of the principal named by claims
func (a *Authenticator) CurrentUser(ctx context.Context, claims *Claims) (*UserSummary, error) {
	if claims == nil || claims.Subject == "" {
		return nil, AuthenticationError("missing access token")
	}
	p, err := a.Principals.GetPrincipalByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NotFoundError("principal not found")
		}
		return nil, InternalError("failed to load user", err)
	}
	summary := Summarize(p)
	return &summary, nil
}

// startSession syncs the profile, issues a token pair and stores the refresh token
func (a *Authenticator) startSession(ctx context.Context, p *Principal) (*AuthResult, error) {
	a.Sync.syncQuietly(ctx, p)

	accessToken, accessExpiry, err := a.Tokens.IssueAccessToken(p, 0)
	if err != nil {
		return nil, InternalError("failed to create session", err)
	}
	refreshToken, refreshExpiry, err := a.Tokens.IssueRefreshToken()
	if err != nil {
		return nil, InternalError("failed to create session", err)
	}
	if err := a.Principals.SetRefreshToken(ctx, p.ID, HashRefreshToken(refreshToken), refreshExpiry); err != nil {
		return nil, InternalError("failed to create session", err)
	}

	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    a.expiresIn(accessExpiry),
		User:         Summarize(p),
	}, nil
}

func (a *Authenticator) updateIdentity(ctx context.Context, p *Principal) error {
	p.UpdatedAt = a.Tokens.Now()
	if err := a.Principals.UpdatePrincipalIdentity(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return ConflictError("email", "email is already registered")
		}
		return InternalError("failed to log in", err)
	}
	return nil
}

// refreshPhoto points p at picture, mirroring it when picture is new or an
// earlier mirror of it failed. An empty picture keeps the current photo.
// Reports whether p changed.
func (a *Authenticator) refreshPhoto(ctx context.Context, p *Principal, picture string) bool {
	if picture == "" {
		return false
	}
	mirrored := p.PhotoURL != "" && p.PhotoURL != p.PhotoSourceURL
	if picture == p.PhotoSourceURL && (mirrored || a.Photos == nil) {
		return false
	}
	url := a.mirrorPhoto(ctx, picture)
	changed := url != p.PhotoURL || picture != p.PhotoSourceURL
	p.PhotoURL, p.PhotoSourceURL = url, picture
	return changed
}

// mirrorPhoto returns the mirrored URL, or source when mirroring is off or fails
func (a *Authenticator) mirrorPhoto(ctx context.Context, source string) string {
	if a.Photos == nil {
		return source
	}
	timeout := a.PhotoTimeout
	if timeout <= 0 {
		timeout = DefaultPhotoTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url, err := a.Photos.MirrorPhoto(ctx, source, "profiles")
	if err != nil {
		a.logger().Warn("photo mirroring failed", "error", err)
		return source
	}
	return url
}

func (a *Authenticator) roleFor(email string) Role {
	domain := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(a.AdminEmailDomain), "@"))
	if domain != "" && strings.HasSuffix(email, "@"+domain) {
		return RoleAdmin
	}
	return RoleOwner
}

func (a *Authenticator) expiresIn(expiresAt time.Time) int64 {
	return int64(expiresAt.Sub(a.Tokens.Now()).Round(time.Second).Seconds())
}

func (a *Authenticator) hasher() PasswordHasher {
	if a.Hasher == nil {
		return BcryptHasher{}
	}
	return a.Hasher
}

func (a *Authenticator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// displayName falls back to the email's local part
func displayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}
