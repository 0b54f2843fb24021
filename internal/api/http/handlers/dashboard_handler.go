package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/event-auth/internal/auth"
	"github.com/spec-kit/event-auth/internal/domain"
	"github.com/spec-kit/event-auth/internal/service"
)

// DashboardHandler serves the signed-in landing data.
type DashboardHandler struct {
	auth *service.AuthService
}

// NewDashboardHandler constructs handler.
func NewDashboardHandler(authService *service.AuthService) *DashboardHandler {
	return &DashboardHandler{auth: authService}
}

// Overview handles GET /api/dashboard and GET /api/organizer/dashboard.
// The role shown is the one in the token, which may lag a recent change.
func (h *DashboardHandler) Overview(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromCtx(c)
	if !ok {
		return auth.ErrUnauthenticated
	}

	user, err := h.auth.CurrentUser(c.UserContext(), identity)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user":        toUserResponse(user),
			"role":        identity.Role(),
			"permissions": permissionsFor(identity.Role()),
		},
	})
}

func permissionsFor(role domain.Role) []string {
	perms := []string{"events:view", "tickets:own"}
	switch role {
	case domain.RoleOrganizer:
		perms = append(perms, "events:create", "events:manage")
	case domain.RoleAdmin:
		perms = append(perms, "events:create", "events:manage", "users:manage")
	}
	return perms
}
