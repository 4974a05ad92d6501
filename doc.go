// Package estateauth is the identity and session core of the real-estate
// catalog backend.
//
// It registers principals, logs them in with a password or a Google
// authorization code, issues short-lived HS256 access tokens with long-lived
// opaque refresh tokens, rotates refresh tokens, and keeps a single owner
// Profile in step with every principal.
//
// # Architecture
//
// Principal: an account that can authenticate. It has a bcrypt password hash,
// a Google subject, or both, plus a role (OWNER or ADMIN) and at most one
// active refresh token. Only the SHA-256 of the refresh token is stored.
//
// Profile: the catalog's owner record for a principal. Name and photo follow
// the principal on every login; address, phone and birthday are owned by the
// catalog and never touched here.
//
// Authenticator: the register / login / refresh / logout flows, built from a
// PrincipalStore, an IdentitySynchronizer, a PasswordHasher, a TokenIssuer and
// an optional OAuthExchanger and PhotoMirror.
//
// # Basic Usage
//
//	import (
//	    "github.com/panyam/estateauth"
//	    "github.com/panyam/estateauth/stores/fs"
//	)
//
//	tokens, err := estateauth.NewTokenIssuer(secret, "estateauth")
//	principals := fs.NewFSPrincipalStore(storagePath)
//	profiles := fs.NewFSProfileStore(storagePath)
//
//	auth := &estateauth.Authenticator{
//	    Principals: principals,
//	    Sync:       estateauth.NewIdentitySynchronizer(profiles),
//	    Hasher:     estateauth.BcryptHasher{},
//	    Tokens:     tokens,
//	}
//	api := &estateauth.API{Auth: auth, LoginRateLimit: 20}
//	http.Handle("/", api.Handler())
//
// # Endpoints
//
//	POST /auth/register       {email, name, password}  201 | 400
//	POST /auth/login          {email, password}        200 | 401
//	POST /auth/google-login   {code}                   200 | 400 | 401
//	POST /auth/refresh-token  {refreshToken}           200 | 401
//	POST /auth/logout         bearer                   204 | 401
//	GET  /auth/me             bearer                   200 | 401
//
// # Store Implementations
//
// File based stores live in stores/fs and are meant for development and
// tests. stores/gae (Cloud Datastore), stores/mongo and stores/gorm are the
// production backends. All of them run the suite in stores/storetest.
//
// # Security
//
// Passwords must be at least 8 characters with a lowercase letter, an
// uppercase letter, a digit and one of @$!%*?&. Refresh tokens are 64 random
// bytes, base64 encoded, valid for 7 days, and single use: rotation is a
// conditional update so a replayed token is rejected.
package estateauth
