package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-ledger/internal/observability"
)

// ServerDependencies configures NewApp.
type ServerDependencies struct {
	ServiceName    string
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	RequestTimeout time.Duration
	BodyLimit      int
	Routes         RouteConfig
}

// NewApp builds the fiber application with middlewares and routes attached.
func NewApp(deps ServerDependencies) *fiber.App {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		AppName:               deps.ServiceName,
		DisableStartupMessage: true,
		BodyLimit:             deps.BodyLimit,
	})
	RegisterMiddlewares(app, logger, deps.Metrics, deps.RequestTimeout)
	RegisterRoutes(app, deps.Routes)
	return app
}
