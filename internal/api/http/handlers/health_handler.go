package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-ledger/internal/lifecycle"
)

// Dependency is an optional backing service probed for readiness.
// *persistence.Postgres and *persistence.Redis satisfy it.
type Dependency interface {
	Enabled() bool
	Ping(ctx context.Context) error
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	ledger      *lifecycle.Coordinator
	deps        map[string]Dependency
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string, ledger *lifecycle.Coordinator, deps map[string]Dependency) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, ledger: ledger, deps: deps}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies. Unconfigured
// dependencies are reported as disabled and do not fail the probe.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	for name, dep := range h.deps {
		switch {
		case dep == nil || !dep.Enabled():
			depStatus[name] = "disabled"
		default:
			if err := dep.Ping(ctx); err != nil {
				depStatus[name] = err.Error()
				ready = false
			} else {
				depStatus[name] = "ok"
			}
		}
	}

	if ready {
		snap := h.ledger.Snapshot()
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
			"ledger": fiber.Map{
				"tickets":  len(snap.Tickets),
				"last_seq": snap.LastSeq,
			},
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}
