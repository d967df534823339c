package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-importer/internal/api/http/handlers"
	"github.com/spec-kit/ticket-importer/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Imports        *handlers.ImportsHandler
	Metrics        *handlers.MetricsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	app.Get("/metrics", cfg.AuthMiddleware.Handle, cfg.Metrics.Snapshot)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)
	imports := api.Group("/imports")
	imports.Post("", cfg.Imports.Submit)
	imports.Get("", cfg.Imports.List)
	imports.Get("/:id", cfg.Imports.Status)
	imports.Get("/:id/result", cfg.Imports.Result)
	imports.Get("/:id/artifact", cfg.Imports.Download)
}

// WorkerRouteConfig bundles the worker's status endpoints.
type WorkerRouteConfig struct {
	Health         *handlers.HealthHandler
	Metrics        *handlers.MetricsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterWorkerRoutes wires the health and metrics endpoints served next
// to the import worker.
func RegisterWorkerRoutes(app *fiber.App, cfg WorkerRouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.AuthMiddleware.Handle, cfg.Metrics.Snapshot)
}
