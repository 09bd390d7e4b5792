package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aeodev/aiscrape/internal/cache"
	"github.com/aeodev/aiscrape/internal/llmclient"
	"github.com/aeodev/aiscrape/internal/orchestrator"
	"github.com/aeodev/aiscrape/pkg/models"
	"github.com/aeodev/aiscrape/pkg/utils"
)

var startTime = time.Now()

// Dependencies bundles the components health/readiness checks report on.
// All fields are optional; a nil component is reported as "disabled"
// rather than failing the check.
type Dependencies struct {
	Orchestrator *orchestrator.Orchestrator
	Cache        *cache.Manager
	LLM          *llmclient.Client
}

func (d Dependencies) checks(ctx echo.Context) map[string]string {
	out := map[string]string{"api": "ok"}

	if d.Cache != nil {
		if d.Cache.HealthCheck(ctx.Request().Context()) {
			out["cache"] = "ok"
		} else {
			out["cache"] = "degraded" // falls back to in-memory tier
		}
	} else {
		out["cache"] = "disabled"
	}

	if d.LLM != nil {
		if d.LLM.IsAvailable() {
			out["llm"] = "ok"
		} else {
			out["llm"] = "unavailable"
		}
	} else {
		out["llm"] = "disabled"
	}

	if d.Orchestrator != nil {
		out["workers"] = "ok"
	} else {
		out["workers"] = "disabled"
	}

	return out
}

// HealthHandler reports basic process liveness.
func (d Dependencies) HealthHandler(c echo.Context) error {
	requestID := utils.GenerateRequestID()
	utils.LogWithRequestID(requestID).Debug("health check requested")

	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   "1.0.0",
		Uptime:    time.Since(startTime),
		Checks:    map[string]string{"api": "ok"},
	})
}

// ReadinessHandler reports whether every configured dependency is usable.
func (d Dependencies) ReadinessHandler(c echo.Context) error {
	requestID := utils.GenerateRequestID()
	utils.LogWithRequestID(requestID).Debug("readiness check requested")

	checks := d.checks(c)
	status := "ready"
	for _, v := range checks {
		if v == "unavailable" {
			status = "degraded"
		}
	}

	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   "1.0.0",
		Uptime:    time.Since(startTime),
		Checks:    checks,
	})
}

// LivenessHandler is the bare process-alive probe; it never depends on
// downstream components so a degraded dependency doesn't get the pod killed.
func (d Dependencies) LivenessHandler(c echo.Context) error {
	requestID := utils.GenerateRequestID()
	utils.LogWithRequestID(requestID).Debug("liveness check requested")

	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   "1.0.0",
		Uptime:    time.Since(startTime),
	})
}

// StatusHandler provides detailed service status across all components.
func (d Dependencies) StatusHandler(c echo.Context) error {
	requestID := utils.GenerateRequestID()
	utils.LogWithRequestID(requestID).Debug("status check requested")

	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "operational",
		Timestamp: time.Now(),
		Version:   "1.0.0",
		Uptime:    time.Since(startTime),
		Checks:    d.checks(c),
	})
}
