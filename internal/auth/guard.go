package auth

import (
	"errors"
	"strings"
)

const bearerScheme = "Bearer"

// Verifier is the token check the guard delegates to.
type Verifier interface {
	Verify(raw string) (Identity, error)
}

// Guard turns an Authorization header into an Identity and checks role
// membership. It keeps no state between calls.
type Guard struct {
	verifier Verifier
}

// NewGuard constructs a guard backed by verifier.
func NewGuard(verifier Verifier) *Guard {
	return &Guard{verifier: verifier}
}

// Authenticate parses a "Bearer <token>" header value and verifies the token.
// Verification failures are returned with their kind unchanged.
func (g *Guard) Authenticate(header string) (Identity, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Identity{}, newError(KindMissingCredential, nil)
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return Identity{}, newError(KindMalformedCredential, errors.New("authorization scheme is not bearer"))
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return Identity{}, newError(KindMalformedCredential, errors.New("bearer token is empty or contains whitespace"))
	}

	if g == nil || g.verifier == nil {
		return Identity{}, newError(KindConfiguration, errors.New("guard has no token verifier"))
	}
	return g.verifier.Verify(token)
}

// Authorize succeeds iff identity is present and its role is in allowed.
// A nil identity means authentication was skipped upstream.
func (g *Guard) Authorize(identity *Identity, allowed RoleAllowList) error {
	if identity == nil {
		return newError(KindUnauthenticated, nil)
	}
	if allowed.Empty() {
		return newError(KindConfiguration, errors.New("allow-list has no roles"))
	}
	if !allowed.Contains(identity.Role()) {
		return &Error{Kind: KindForbidden, AllowedRoles: allowed.Roles()}
	}
	return nil
}
