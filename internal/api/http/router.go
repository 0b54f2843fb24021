package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/event-auth/internal/api/http/handlers"
	"github.com/spec-kit/event-auth/internal/auth"
	"github.com/spec-kit/event-auth/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Admin          *handlers.AdminHandler
	Dashboard      *handlers.DashboardHandler
	AuthMiddleware *auth.Middleware
	Metrics        http.Handler
}

// Allow-lists are built once here; an empty or unknown role panics at startup.
var (
	anyMember      = auth.MustAllowList(domain.Roles()...)
	organizerRoles = auth.MustAllowList(domain.RoleOrganizer, domain.RoleAdmin)
	adminRoles     = auth.MustAllowList(domain.RoleAdmin)
)

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	api := app.Group("/api")
	mw := cfg.AuthMiddleware

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Get("/me", mw.Authenticate, cfg.Users.Me)

	api.Get("/dashboard", mw.Authenticate, mw.RequireRoles(anyMember), cfg.Dashboard.Overview)
	api.Get("/organizer/dashboard", mw.Authenticate, mw.RequireRoles(organizerRoles), cfg.Dashboard.Overview)

	admin := api.Group("/admin", mw.Authenticate, mw.RequireRoles(adminRoles))
	admin.Patch("/users/:id/role", cfg.Admin.ChangeRole)
}
