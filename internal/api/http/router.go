package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/bridgedesk/escalation-service/internal/api/http/handlers"
	"github.com/bridgedesk/escalation-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Attachments    *handlers.AttachmentsHandler
	Managers       *handlers.ManagersHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Users.Me)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:number", cfg.Tickets.GetTicket)
	tickets.Patch("/:number", cfg.Tickets.UpdateTicket)
	tickets.Delete("/:number", auth.RequireAdmin(), cfg.Tickets.DeleteTicket)
	tickets.Post("/:number/resolve", cfg.Tickets.ResolveTicket)
	tickets.Post("/:number/reopen", cfg.Tickets.ReopenTicket)
	tickets.Post("/:number/close", cfg.Tickets.CloseTicket)
	tickets.Post("/:number/force-status", auth.RequireAdmin(), cfg.Tickets.ForceStatus)
	tickets.Post("/:number/assign", auth.RequireManager(), cfg.Tickets.AssignTicket)
	tickets.Get("/:number/activities", cfg.Tickets.ListActivities)
	tickets.Post("/:number/attachments", cfg.Attachments.Upload)
	tickets.Get("/:number/attachments", cfg.Attachments.List)

	attachments := app.Group("/attachments", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	attachments.Get("/:id/content", cfg.Attachments.Download)
	attachments.Post("/:id/request-deletion", cfg.Attachments.RequestDeletion)
	attachments.Delete("/:id", cfg.Attachments.Redeem)

	deletions := app.Group("/deletion-requests", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	deletions.Get("/pending", cfg.Attachments.PendingRequests)
	deletions.Get("/mine", cfg.Attachments.MyRequests)
	deletions.Post("/:id/approve", cfg.Attachments.Approve)
	deletions.Post("/:id/reject", cfg.Attachments.Reject)

	managers := app.Group("/managers", cfg.AuthMiddleware.Handle, auth.RequireManager())
	managers.Get("/team-members", cfg.Managers.TeamMembers)
	managers.Get("/incoming", cfg.Managers.Incoming)
	managers.Get("/outgoing", cfg.Managers.Outgoing)
	managers.Get("/unassigned", cfg.Managers.Unassigned)
	managers.Get("/metrics", cfg.Managers.Metrics)
	managers.Post("/auto-assign", cfg.Managers.ToggleAutoAssign)
	managers.Post("/users/:id/toggle-active", cfg.Managers.ToggleUserActive)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Post("/users/:id/manager", cfg.Admin.SetManagerFlag)
	admin.Delete("/attachments/:id", cfg.Admin.DeleteAttachment)
}
