package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"aistudioproxy/internal/config"
	"aistudioproxy/pkg/models"
)

// APIKeyAuth validates the Authorization header against the configured
// key list. An empty key list disables authentication.
func APIKeyAuth(cfg *config.Config) echo.MiddlewareFunc {
	keys := make(map[string]struct{}, len(cfg.API.Keys))
	for _, key := range cfg.API.Keys {
		keys[key] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(keys) == 0 {
				return next(c)
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return authError(c, "API key is missing")
			}

			parts := strings.Fields(header)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return authError(c, "Invalid authorization header format")
			}

			if _, ok := keys[parts[1]]; !ok {
				return authError(c, "Invalid API key")
			}

			return next(c)
		}
	}
}

func authError(c echo.Context, message string) error {
	requestID, _ := c.Get("request_id").(string)
	return c.JSON(http.StatusForbidden, models.ErrorResponse{
		Error: models.ErrorDetail{
			Message: message,
			Type:    "authentication_failed",
		},
		RequestID: requestID,
		Timestamp: time.Now(),
	})
}
