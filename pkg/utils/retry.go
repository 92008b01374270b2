package utils

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig controls the exponential backoff applied between attempts.
type RetryConfig struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	Jitter       float64
}

// DefaultRetryConfig mirrors the defaults used for flaky page operations.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Factor:       2.0,
		Jitter:       0.1,
	}
}

// WithAttempts returns a copy of the config with a different attempt count.
func (c RetryConfig) WithAttempts(attempts int) RetryConfig {
	c.Attempts = attempts
	return c
}

// Retry runs op up to cfg.Attempts times, sleeping with exponential backoff
// and symmetric jitter between attempts. On exhaustion the last error is
// returned unchanged so callers can still distinguish failure kinds.
func Retry(ctx context.Context, cfg RetryConfig, op func() error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		sleep := JitteredDelay(delay, cfg.Jitter)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return lastErr
		}

		delay = time.Duration(float64(delay) * cfg.Factor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return lastErr
}

// JitteredDelay applies symmetric random jitter (±jitter fraction) to d.
func JitteredDelay(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || d <= 0 {
		return d
	}
	offset := (rand.Float64()*2 - 1) * jitter * float64(d)
	jittered := time.Duration(float64(d) + offset)
	if jittered < 0 {
		return 0
	}
	return jittered
}
