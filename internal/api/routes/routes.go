package routes

import (
	"aistudioproxy/internal/api/handlers"
	"aistudioproxy/internal/api/middleware"
	"aistudioproxy/internal/browser"
	"aistudioproxy/internal/config"
	"aistudioproxy/internal/proxy"
	"aistudioproxy/pkg/utils"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
)

// SetupRoutes configures all API routes
func SetupRoutes(e *echo.Echo, cfg *config.Config, mgr *browser.Manager, handler *proxy.RequestHandler, redisClient *utils.RedisClient) {
	// Global middleware
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.Secure())
	e.Use(middleware.CORSConfig())
	e.Use(middleware.RequestValidation())
	e.Use(middleware.RateLimit(cfg))
	// Completions stream over SSE and manage their own timeouts
	e.Use(middleware.SelectiveTimeout(cfg.Server.ReadTimeout, "/v1/chat/completions"))

	// Health check routes
	health := e.Group("/health")
	{
		health.GET("", handlers.HealthHandler(mgr, handler))
		health.GET("/ready", handlers.ReadinessHandler(handler, redisClient))
		health.GET("/live", handlers.LivenessHandler)
	}

	// Status routes
	e.GET("/status", handlers.StatusHandler(mgr, handler))
	e.GET("/status/requests/:id", handlers.RequestRecordHandler(redisClient))

	// OpenAI-compatible API routes, gated by API key when configured
	v1 := e.Group("/v1", middleware.APIKeyAuth(cfg))
	{
		v1.POST("/chat/completions", handlers.ChatCompletionsHandler(cfg, handler))
		v1.GET("/models", handlers.ModelsHandler(cfg))
	}
}
