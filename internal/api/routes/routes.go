package routes

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/aeodev/aiscrape/internal/api/handlers"
	"github.com/aeodev/aiscrape/internal/api/middleware"
	"github.com/aeodev/aiscrape/internal/config"
	"github.com/aeodev/aiscrape/internal/orchestrator"
	"github.com/aeodev/aiscrape/internal/ratelimit"
	"github.com/aeodev/aiscrape/pkg/models"
)

// SetupRoutes configures all API routes. deps carries the components the
// health/readiness handlers report on; limiter is optional (nil disables
// rate limiting entirely).
func SetupRoutes(e *echo.Echo, cfg *config.Config, o *orchestrator.Orchestrator, deps handlers.Dependencies, limiter *ratelimit.Limiter) {
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(middleware.CORSConfig())
	e.Use(middleware.RequestValidation())
	e.Use(middleware.SelectiveTimeoutConfig(cfg.Server.ReadTimeout, 2*cfg.Scraper.AIAgentTimeout))

	health := e.Group("/health")
	{
		health.GET("", deps.HealthHandler)
		health.GET("/ready", deps.ReadinessHandler)
		health.GET("/live", deps.LivenessHandler)
	}
	e.GET("/status", deps.StatusHandler)

	v1 := e.Group("/api/v1")
	if limiter != nil {
		rlCfg := models.RateLimitConfig{
			Enabled:     cfg.RateLimit.Enabled,
			WindowMS:    cfg.RateLimit.WindowMS,
			MaxRequests: cfg.RateLimit.MaxRequests,
		}
		v1.Use(rateLimitMiddleware(limiter, rlCfg))
	}
	{
		v1.POST("/jobs", handlers.CreateJobHandler(o))
		v1.GET("/jobs", handlers.ListJobsHandler(o))
		v1.GET("/jobs/:id", handlers.GetJobHandler(o))
		v1.DELETE("/jobs/:id", handlers.DeleteJobHandler(o))
		v1.POST("/jobs/:id/cancel", handlers.CancelJobHandler(o))
		v1.POST("/jobs/:id/chat", handlers.ChatWithJobHandler(o))
		v1.POST("/scrape-and-answer", handlers.ScrapeAndAnswerHandler(o))
	}

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "aiscrape",
			"version": "1.0.0",
			"status":  "running",
		})
	})
}

// rateLimitMiddleware checks every /api/v1 request against the per-remote-IP
// sliding window, failing open (allow) if the limiter itself errors.
func rateLimitMiddleware(limiter *ratelimit.Limiter, cfg models.RateLimitConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := ratelimit.DefaultKey(c.Request())
			result := limiter.CheckLimit(key, cfg)

			for k, v := range ratelimit.Headers(result, cfg.MaxRequests) {
				c.Response().Header()[k] = v
			}
			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
					Error:     "rate_limited",
					Message:   "too many requests",
					RequestID: c.Response().Header().Get("X-Request-ID"),
					Timestamp: time.Now(),
				})
			}
			return next(c)
		}
	}
}
