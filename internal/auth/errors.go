package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spec-kit/event-auth/internal/domain"
)

// Kind classifies every way authentication or authorization can fail.
type Kind int

const (
	KindMissingCredential Kind = iota + 1
	KindMalformedCredential
	KindMalformedToken
	KindInvalidSignature
	KindExpired
	KindUnauthenticated
	KindForbidden
	KindConfiguration
)

var kindNames = map[Kind]string{
	KindMissingCredential:   "missing_credential",
	KindMalformedCredential: "malformed_credential",
	KindMalformedToken:      "malformed_token",
	KindInvalidSignature:    "invalid_signature",
	KindExpired:             "expired",
	KindUnauthenticated:     "unauthenticated",
	KindForbidden:           "forbidden",
	KindConfiguration:       "configuration_error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is matching against a failure kind.
var (
	ErrMissingCredential   = &Error{Kind: KindMissingCredential}
	ErrMalformedCredential = &Error{Kind: KindMalformedCredential}
	ErrMalformedToken      = &Error{Kind: KindMalformedToken}
	ErrInvalidSignature    = &Error{Kind: KindInvalidSignature}
	ErrExpired             = &Error{Kind: KindExpired}
	ErrUnauthenticated     = &Error{Kind: KindUnauthenticated}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrConfiguration       = &Error{Kind: KindConfiguration}
)

// Error is the single error type returned by the token manager and guard.
// Err holds the internal cause and is never shown to clients.
type Error struct {
	Kind         Kind
	AllowedRoles []domain.Role
	Err          error
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
	}
	return "auth: " + e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// HTTPStatus returns the status code the failure should be rendered with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindForbidden:
		return http.StatusForbidden
	case KindConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusUnauthorized
	}
}

// ErrorCode returns the machine readable code for API responses.
func (e *Error) ErrorCode() string {
	switch e.Kind {
	case KindForbidden:
		return "FORBIDDEN"
	case KindConfiguration:
		return "AUTH_UNAVAILABLE"
	case KindExpired:
		return "TOKEN_EXPIRED"
	default:
		return "UNAUTHORIZED"
	}
}

// PublicMessage is the fixed client facing text for the failure.
func (e *Error) PublicMessage() string {
	switch e.Kind {
	case KindMissingCredential:
		return "No token provided. Authorization denied."
	case KindMalformedCredential:
		return "Invalid token format. Authorization denied."
	case KindMalformedToken, KindInvalidSignature:
		return "Invalid token. Authorization denied."
	case KindExpired:
		return "Token expired. Please login again."
	case KindUnauthenticated:
		return "Authentication required."
	case KindForbidden:
		return "Access denied. Required role: " + joinRoles(e.AllowedRoles, " or ") + "."
	default:
		return "Authentication failed. Please try again."
	}
}

// KindOf extracts the failure kind from err, or 0 when err is not an auth error.
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return 0
}

func joinRoles(roles []domain.Role, sep string) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, sep)
}
