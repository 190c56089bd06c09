package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-ledger/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Records *handlers.RecordsHandler
	Review  *handlers.ReviewHandler
	Metrics *handlers.MetricsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Metrics.Get)

	app.Post("/tickets", cfg.Records.CreateTicket)
	app.Post("/summaries", cfg.Records.CreateSummary)
	app.Post("/proposals", cfg.Records.CreateProposal)
	app.Post("/feedback", cfg.Records.CreateFeedback)
	app.Post("/validate/:kind", cfg.Records.Validate)

	tickets := app.Group("/tickets/:id")
	tickets.Get("/state", cfg.Records.GetState)
	tickets.Get("/history", cfg.Records.GetHistory)
	tickets.Get("/export", cfg.Review.Export)
	tickets.Get("/proposals/latest", cfg.Review.LatestProposal)
	tickets.Get("/summaries/latest", cfg.Review.LatestSummary)

	review := app.Group("/review")
	review.Get("/pending", cfg.Review.PendingReview)
	review.Get("/rejected", cfg.Review.AwaitingReproposal)

	stats := app.Group("/stats")
	stats.Get("/rejection-rate", cfg.Review.RejectionRate)
	stats.Get("/states", cfg.Review.StateCounts)
}
