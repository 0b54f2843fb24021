package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/event-auth/internal/api/dto"
	"github.com/spec-kit/event-auth/internal/auth"
	"github.com/spec-kit/event-auth/internal/service"
	apperrors "github.com/spec-kit/event-auth/pkg/util/errorutil"
)

// AdminHandler exposes account administration.
type AdminHandler struct {
	auth *service.AuthService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(authService *service.AuthService) *AdminHandler {
	return &AdminHandler{auth: authService}
}

// ChangeRole handles PATCH /api/admin/users/:id/role.
func (h *AdminHandler) ChangeRole(c *fiber.Ctx) error {
	actor, ok := auth.IdentityFromCtx(c)
	if !ok {
		return auth.ErrUnauthenticated
	}

	var req dto.ChangeRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, err := h.auth.ChangeRole(c.UserContext(), actor, c.Params("id"), req.Role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"user": toUserResponse(user)}})
}
