package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/client-roster/internal/api/http/handlers"
	"github.com/spec-kit/client-roster/internal/auth"
	"github.com/spec-kit/client-roster/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Clients        *handlers.ClientsHandler
	Users          *handlers.UsersHandler
	Reports        *handlers.ReportsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authenticated := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAnyRole()}

	clients := app.Group("/clients", authenticated...)
	clients.Get("/", cfg.Clients.List)
	clients.Post("/", cfg.Clients.Create)
	clients.Post("/batch", cfg.Clients.CreateBatch)
	clients.Patch("/:id", cfg.Clients.Update)
	clients.Delete("/:id", cfg.Clients.Delete)

	users := app.Group("/users", authenticated...)
	users.Get("/", cfg.Users.List)
	users.Put("/:id/manager", auth.RequireRole(domain.HasUserManagement), cfg.Users.AssignManager)
	users.Put("/:id/role", auth.RequireRole(domain.CanPromote), cfg.Users.ChangeRole)

	reports := app.Group("/reports", append(authenticated, auth.RequireRole(domain.HasReportsAccess))...)
	reports.Get("/status-summary", cfg.Reports.StatusSummary)
}
