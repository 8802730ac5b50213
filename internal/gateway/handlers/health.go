package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
)

const probeTimeout = 2 * time.Second

// ============================================================
// Health Check Handlers
// ============================================================

// LivenessProbe reports that the gateway process is up.
func LivenessProbe(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "alive",
	})
}

// StartupProbe reports that routes are mounted.
func StartupProbe(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "started",
	})
}

// Readiness checks the liveness endpoint of every upstream service.
type Readiness struct {
	upstreams map[string]string // name -> base URL
	client    *http.Client
}

func NewReadiness(upstreams map[string]string) *Readiness {
	return &Readiness{
		upstreams: upstreams,
		client:    &http.Client{Timeout: probeTimeout},
	}
}

func (r *Readiness) Probe(c fiber.Ctx) error {
	services := fiber.Map{}
	ready := true
	for name, baseURL := range r.upstreams {
		if err := r.check(c.Context(), baseURL); err != nil {
			services[name] = err.Error()
			ready = false
			continue
		}
		services[name] = "ok"
	}

	if !ready {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"status":   "not ready",
			"services": services,
		})
	}
	return c.JSON(fiber.Map{
		"status":   "ready",
		"services": services,
	})
}

func (r *Readiness) check(ctx context.Context, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health/live", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fiber.NewError(resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return nil
}
