package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aistudioproxy/internal/api/routes"
	"aistudioproxy/internal/auth"
	"aistudioproxy/internal/browser"
	"aistudioproxy/internal/config"
	"aistudioproxy/internal/logging"
	"aistudioproxy/internal/proxy"
	"aistudioproxy/internal/services"
	"aistudioproxy/pkg/utils"

	"github.com/labstack/echo/v4"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logging
	if err := logging.InitializeLogging(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseLogging()

	logger := logging.GetGlobalLogger()
	logger.Info("Starting AI Studio proxy")

	ctx := context.Background()

	// Start the browser and page pool
	browserMgr := browser.NewManager(cfg)
	if err := browserMgr.Start(ctx); err != nil {
		logger.Fatal("Failed to start browser manager", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Optional Redis archive for finished request records
	var redisClient *utils.RedisClient
	if cfg.Redis.Enabled {
		redisClient = utils.NewRedisClient(cfg)
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.Timeout)
		if err := redisClient.Ping(pingCtx); err != nil {
			logger.Warn("Redis unreachable, request archiving disabled", map[string]interface{}{
				"error": err.Error(),
			})
			redisClient = nil
		}
		cancel()
	}

	handler := proxy.NewRequestHandler(cfg, browserMgr, redisClient)

	// Keep-alive loop shares the browser's main page
	authManager := auth.NewManager(cfg)
	keepAlive := services.NewKeepAliveService(cfg, authManager, browserMgr)
	if cfg.KeepAlive.Enabled {
		keepAlive.Start()
	}

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Setup routes
	routes.SetupRoutes(e, cfg, browserMgr, handler, redisClient)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Info("Stopping keep-alive service...")
		keepAlive.Stop()

		logger.Info("Stopping HTTP server...")
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down server", map[string]interface{}{
				"error": err.Error(),
			})
		}

		logger.Info("Stopping browser manager...")
		if err := browserMgr.Stop(); err != nil {
			logger.Error("Error stopping browser manager", map[string]interface{}{
				"error": err.Error(),
			})
		}

		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Error("Error closing Redis client", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}

		logger.Info("Server shutdown complete")
	}()

	// Start server
	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("Server starting", map[string]interface{}{
		"address": address,
	})

	if err := e.Start(address); err != nil {
		logger.Info("Server stopped", map[string]interface{}{
			"reason": err.Error(),
		})
	}
}
