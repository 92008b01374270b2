package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"aistudioproxy/internal/config"
	"aistudioproxy/pkg/models"
)

// RateLimit limits requests per client IP using a token bucket. Buckets
// for idle clients are evicted after an hour.
func RateLimit(cfg *config.Config) echo.MiddlewareFunc {
	type bucket struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		mu      sync.Mutex
		buckets = make(map[string]*bucket)
	)

	limit := rate.Limit(float64(cfg.RateLimit.RequestsPerMinute) / 60.0)
	burst := cfg.RateLimit.Burst

	// Periodic eviction keeps the bucket map from growing unbounded.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			for ip, b := range buckets {
				if time.Since(b.lastSeen) > time.Hour {
					delete(buckets, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.RateLimit.Enabled {
				return next(c)
			}

			ip := c.RealIP()
			mu.Lock()
			b, ok := buckets[ip]
			if !ok {
				b = &bucket{limiter: rate.NewLimiter(limit, burst)}
				buckets[ip] = b
			}
			b.lastSeen = time.Now()
			mu.Unlock()

			if !b.limiter.Allow() {
				requestID, _ := c.Get("request_id").(string)
				return c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
					Error: models.ErrorDetail{
						Message: "Rate limit exceeded",
						Type:    "rate_limit_exceeded",
					},
					RequestID: requestID,
					Timestamp: time.Now(),
				})
			}

			return next(c)
		}
	}
}
