package estateauth

import (
	"errors"
	"fmt"
	"net/http"
)

// Store sentinel errors. Store implementations wrap driver errors but always
// surface these for the conditions below so callers can use errors.Is.
var (
	// ErrNotFound is returned when a principal or profile does not exist
	ErrNotFound = errors.New("estateauth: not found")

	// ErrDuplicate is returned when a unique field (email, google id,
	// profile principal id) is already taken
	ErrDuplicate = errors.New("estateauth: duplicate")

	// ErrTokenMismatch is returned by a conditional refresh token replacement
	// when the stored token is no longer the expected one
	ErrTokenMismatch = errors.New("estateauth: refresh token mismatch")
)

// ErrorKind classifies failures for callers and for the HTTP layer
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindConflict       ErrorKind = "conflict"
	KindAuthentication ErrorKind = "authentication"
	KindUpstream       ErrorKind = "upstream"
	KindNotFound       ErrorKind = "not_found"
	KindInternal       ErrorKind = "internal"
)

// AuthError is the error type returned by every Authenticator operation.
// Message is stable and safe to show to clients; Err carries the cause and
// is never written to a response.
type AuthError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Field   string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Status maps the error kind onto an HTTP status code
func (e *AuthError) Status() int {
	return e.Kind.HTTPStatus()
}

// HTTPStatus returns the response status for an error kind
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindAuthentication, KindUpstream:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError reports bad input on a specific field
func ValidationError(field, message string) *AuthError {
	return &AuthError{Kind: KindValidation, Code: "invalid_request", Field: field, Message: message}
}

func ConflictError(field, message string) *AuthError {
	return &AuthError{Kind: KindConflict, Code: "conflict", Field: field, Message: message}
}

func AuthenticationError(message string) *AuthError {
	return &AuthError{Kind: KindAuthentication, Code: "invalid_grant", Message: message}
}

// UpstreamAuthError wraps failures talking to an identity provider
func UpstreamAuthError(message string, cause error) *AuthError {
	return &AuthError{Kind: KindUpstream, Code: "upstream_auth_failed", Message: message, Err: cause}
}

func NotFoundError(message string) *AuthError {
	return &AuthError{Kind: KindNotFound, Code: "not_found", Message: message}
}

// InternalError hides cause behind a generic message
func InternalError(message string, cause error) *AuthError {
	return &AuthError{Kind: KindInternal, Code: "server_error", Message: message, Err: cause}
}

// KindOf returns the kind of err, or KindInternal when err is not an AuthError
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// asAuthError converts any error into an AuthError, treating unknown errors as internal
func asAuthError(err error) *AuthError {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return InternalError("internal error", err)
}
