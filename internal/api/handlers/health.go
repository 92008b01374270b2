package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"aistudioproxy/internal/browser"
	"aistudioproxy/internal/logging"
	"aistudioproxy/internal/proxy"
	"aistudioproxy/pkg/models"
	"aistudioproxy/pkg/utils"
)

var startTime = time.Now()

const version = "1.0.0"

// HealthHandler reports overall service health. The response is always
// 200; a dead browser degrades the status rather than failing the
// endpoint so load balancers can tell "down" from "struggling".
func HealthHandler(mgr *browser.Manager, handler *proxy.RequestHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := utils.GenerateRequestID()
		logger := logging.GetGlobalLogger()

		logger.Debug("Health check requested", map[string]interface{}{"request_id": requestID})

		status := "healthy"
		checks := map[string]string{
			"api": "ok",
		}

		if mgr != nil && mgr.IsRunning() {
			checks["browser"] = "ok"
		} else {
			checks["browser"] = "not_running"
			status = "degraded"
		}

		if handler != nil {
			checks["active_requests"] = fmt.Sprintf("%d", handler.GetActiveRequestsCount())
		}

		response := models.HealthResponse{
			Status:    status,
			Timestamp: time.Now(),
			Version:   version,
			Uptime:    time.Since(startTime),
			Checks:    checks,
		}

		return c.JSON(http.StatusOK, response)
	}
}

// ReadinessHandler reports whether the service can take traffic. Unlike
// the health endpoint this one fails with 503 when a dependency is down,
// since requests would only error.
func ReadinessHandler(handler *proxy.RequestHandler, redisClient *utils.RedisClient) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := utils.GenerateRequestID()
		logger := logging.GetGlobalLogger()

		logger.Debug("Readiness check requested", map[string]interface{}{"request_id": requestID})

		response := models.HealthResponse{
			Status:    "ready",
			Timestamp: time.Now(),
			Version:   version,
			Uptime:    time.Since(startTime),
			Checks: map[string]string{
				"api":     "ok",
				"browser": "ok",
			},
		}

		ready := handler != nil && handler.HealthCheck(c.Request().Context())
		if !ready {
			response.Checks["browser"] = "unavailable"
		}

		if redisClient != nil {
			if err := redisClient.Ping(c.Request().Context()); err != nil {
				response.Checks["redis"] = "unavailable"
				ready = false
			} else {
				response.Checks["redis"] = "ok"
			}
		}

		if !ready {
			response.Status = "not_ready"
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		return c.JSON(http.StatusOK, response)
	}
}

// LivenessHandler handles liveness probe requests
func LivenessHandler(c echo.Context) error {
	response := models.HealthResponse{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   version,
		Uptime:    time.Since(startTime),
	}

	return c.JSON(http.StatusOK, response)
}

// StatusHandler provides detailed service status including the
// in-flight request table summary.
func StatusHandler(mgr *browser.Manager, handler *proxy.RequestHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats := models.RequestStats{}
		if handler != nil {
			stats = handler.GetRequestStats()
		}

		checks := map[string]string{
			"api":              "operational",
			"active_requests":  fmt.Sprintf("%d", stats.ActiveRequests),
			"tracked_requests": fmt.Sprintf("%d", stats.TotalTracked),
			"avg_duration":     fmt.Sprintf("%.2fs", stats.AverageDuration),
		}
		if mgr != nil {
			if mgr.IsRunning() {
				checks["browser"] = "operational"
			} else {
				checks["browser"] = "not_running"
			}
			checks["pooled_pages"] = fmt.Sprintf("%d", mgr.PooledPages())
		}

		response := models.HealthResponse{
			Status:    "operational",
			Timestamp: time.Now(),
			Version:   version,
			Uptime:    time.Since(startTime),
			Checks:    checks,
		}

		return c.JSON(http.StatusOK, response)
	}
}

// RequestRecordHandler looks up an archived request record by ID. Records
// live in Redis until their TTL expires, so a miss is a 404 not an error.
func RequestRecordHandler(redisClient *utils.RedisClient) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Param("id")

		if redisClient == nil {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error: models.ErrorDetail{
					Message: "request archive is not enabled",
					Type:    "service_unavailable",
				},
			})
		}

		record, err := redisClient.GetRequestRecord(c.Request().Context(), requestID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error: models.ErrorDetail{
					Message: "failed to look up request record",
					Type:    "upstream_error",
				},
			})
		}
		if record == nil {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error: models.ErrorDetail{
					Message: fmt.Sprintf("no record for request %s", requestID),
					Type:    "not_found",
				},
			})
		}

		return c.JSON(http.StatusOK, record)
	}
}
