package auth

import (
	"context"

	"github.com/spec-kit/event-auth/internal/domain"
)

// Identity is the authenticated principal of one request. It can only be
// obtained from TokenManager.Verify, so holding one means a signature was
// checked.
type Identity struct {
	subjectID string
	role      domain.Role
}

// SubjectID returns the stable identifier of the user.
func (i Identity) SubjectID() string { return i.subjectID }

// Role returns the role embedded in the verified token.
func (i Identity) Role() domain.Role { return i.role }

type contextKey struct{}

// WithIdentity returns a child context carrying the identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext retrieves the identity attached by WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
