package auth

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RejectionRecorder counts rejected requests by failure kind.
type RejectionRecorder interface {
	RecordAuthRejection(kind string)
}

// Middleware adapts the Guard to fiber handlers.
type Middleware struct {
	guard   *Guard
	logger  *zap.Logger
	metrics RejectionRecorder
}

// NewMiddleware constructs middleware. metrics may be nil.
func NewMiddleware(guard *Guard, logger *zap.Logger, metrics RejectionRecorder) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{guard: guard, logger: logger, metrics: metrics}
}

// Authenticate verifies the bearer token and attaches the identity to the
// request's user context.
func (m *Middleware) Authenticate(c *fiber.Ctx) error {
	identity, err := m.guard.Authenticate(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return m.reject(c, err)
	}

	c.SetUserContext(WithIdentity(c.UserContext(), identity))
	return c.Next()
}

// RequireRoles allows the request through only for the listed roles. The
// allow-list is validated here, at route registration.
func (m *Middleware) RequireRoles(allowed RoleAllowList) fiber.Handler {
	if allowed.Empty() {
		panic("auth: RequireRoles needs a non-empty allow-list")
	}

	return func(c *fiber.Ctx) error {
		var identity *Identity
		if id, ok := IdentityFromContext(c.UserContext()); ok {
			identity = &id
		}
		if err := m.guard.Authorize(identity, allowed); err != nil {
			return m.reject(c, err)
		}
		return c.Next()
	}
}

func (m *Middleware) reject(c *fiber.Ctx, err error) error {
	kind := KindOf(err)
	if m.metrics != nil {
		m.metrics.RecordAuthRejection(kind.String())
	}

	fields := []zap.Field{
		zap.String("kind", kind.String()),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
	}
	switch kind {
	case KindConfiguration, KindUnauthenticated:
		m.logger.Error("auth rejected request", append(fields, zap.Error(err))...)
	default:
		m.logger.Info("auth rejected request", fields...)
	}
	return err
}

// IdentityFromCtx retrieves the identity attached by Authenticate.
func IdentityFromCtx(c *fiber.Ctx) (Identity, bool) {
	return IdentityFromContext(c.UserContext())
}
