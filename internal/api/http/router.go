package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Queues         *handlers.QueuesHandler
	Tickets        *handlers.TicketsHandler
	Sessions       *handlers.SessionsHandler
	Catalog        *handlers.CatalogHandler
	AuthMiddleware *auth.AuthMiddleware
	Gatherer       prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	anyone := auth.RequireRole()
	staff := auth.RequireRole(domain.RoleAgent, domain.RoleSupervisor, domain.RoleAdmin)
	managers := auth.RequireRole(domain.RoleSupervisor, domain.RoleAdmin)

	v1 := app.Group("/v1", cfg.AuthMiddleware.Handle)

	v1.Post("/units", managers, cfg.Catalog.CreateUnit)
	v1.Get("/units/:id", anyone, cfg.Catalog.GetUnit)
	v1.Get("/units/:id/queues", anyone, cfg.Queues.ListQueues)
	v1.Get("/units/:id/services", anyone, cfg.Catalog.ListServices)
	v1.Get("/units/:id/resources", staff, cfg.Catalog.ListResources)
	v1.Get("/units/:id/agents", staff, cfg.Catalog.ListAgents)

	v1.Post("/services", managers, cfg.Catalog.CreateService)
	v1.Delete("/services/:id", managers, cfg.Catalog.DeleteService)

	v1.Post("/resources", managers, cfg.Catalog.CreateResource)
	v1.Post("/resources/:id/status", managers, cfg.Catalog.SetResourceStatus)

	v1.Post("/agents", managers, cfg.Catalog.CreateAgent)
	v1.Post("/agents/:id/status", staff, cfg.Catalog.SetAgentStatus)
	v1.Get("/agents/:id/session", staff, cfg.Sessions.ActiveForAgent)

	v1.Post("/queues", managers, cfg.Queues.CreateQueue)
	v1.Get("/queues/:id", anyone, cfg.Queues.GetQueue)
	v1.Patch("/queues/:id", managers, cfg.Queues.UpdateQueue)
	v1.Delete("/queues/:id", managers, cfg.Queues.DeleteQueue)
	v1.Post("/queues/:id/status", managers, cfg.Queues.ChangeStatus)
	v1.Post("/queues/:id/pause", managers, cfg.Queues.Pause)
	v1.Post("/queues/:id/resume", managers, cfg.Queues.Resume)
	v1.Post("/queues/:id/close", managers, cfg.Queues.Close)
	v1.Post("/queues/:id/open", managers, cfg.Queues.Open)
	v1.Get("/queues/:id/next", staff, cfg.Queues.NextCandidate)
	v1.Post("/queues/:id/call-next", staff, cfg.Queues.CallNext)
	v1.Get("/queues/:id/tickets", staff, cfg.Queues.Waiting)

	v1.Post("/tickets", anyone, cfg.Tickets.Enqueue)
	v1.Get("/tickets/:id", anyone, cfg.Tickets.GetTicket)
	v1.Get("/tickets/:id/position", anyone, cfg.Tickets.Position)
	v1.Get("/tickets/:id/estimate", anyone, cfg.Tickets.Estimate)
	v1.Get("/tickets/:id/history", staff, cfg.Tickets.History)
	v1.Post("/tickets/:id/call", staff, cfg.Tickets.Call)
	v1.Post("/tickets/:id/start", staff, cfg.Tickets.Start)
	v1.Post("/tickets/:id/complete", staff, cfg.Tickets.Complete)
	v1.Post("/tickets/:id/cancel", staff, cfg.Tickets.Cancel)
	v1.Post("/tickets/:id/no-show", staff, cfg.Tickets.NoShow)

	v1.Get("/sessions/:id", staff, cfg.Sessions.GetSession)
	v1.Post("/sessions/:id/pause", staff, cfg.Sessions.Pause)
	v1.Post("/sessions/:id/resume", staff, cfg.Sessions.Resume)
	v1.Post("/sessions/:id/complete", staff, cfg.Sessions.Complete)
	v1.Post("/sessions/:id/cancel", staff, cfg.Sessions.Cancel)
}
