package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SelectiveTimeout applies the timeout everywhere except the given
// paths. The chat completion endpoint is skipped because SSE responses
// outlive any fixed deadline and carry their own per-step timeouts.
func SelectiveTimeout(timeout time.Duration, skipPaths ...string) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: timeout,
		Skipper: func(c echo.Context) bool {
			return skip[c.Path()]
		},
	})
}
