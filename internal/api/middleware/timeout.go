package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// TimeoutConfig returns timeout middleware configuration
func TimeoutConfig(timeout time.Duration) echo.MiddlewareFunc {
	return middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: timeout,
	})
}

// SelectiveTimeoutConfig returns selective timeout middleware that applies
// a longer timeout to the scrape-and-answer and chat endpoints, which can
// legitimately run a synchronous fetch or an LLM chat round trip well past
// the default request timeout.
func SelectiveTimeoutConfig(defaultTimeout time.Duration, longTimeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path

			if strings.Contains(path, "/scrape-and-answer") || strings.Contains(path, "/chat") {
				timeoutMiddleware := middleware.TimeoutWithConfig(middleware.TimeoutConfig{
					Timeout: longTimeout,
				})
				return timeoutMiddleware(next)(c)
			}

			timeoutMiddleware := middleware.TimeoutWithConfig(middleware.TimeoutConfig{
				Timeout: defaultTimeout,
			})
			return timeoutMiddleware(next)(c)
		}
	}
}
