package services

import (
	"context"
	"sync"
	"time"

	"aistudioproxy/internal/auth"
	"aistudioproxy/internal/browser"
	"aistudioproxy/internal/config"
	"aistudioproxy/internal/logging"
)

// SessionChecker is the slice of the auth manager the service uses.
type SessionChecker interface {
	CheckSessionStatus(ctx context.Context, mgr *browser.Manager) bool
	Login(ctx context.Context, mgr *browser.Manager) error
}

// KeepAliveService periodically verifies the browser session is still
// signed in and attempts a re-login when it is not. Failures are logged
// and retried on the next tick; nothing propagates to callers.
type KeepAliveService struct {
	config      *config.Config
	authManager SessionChecker
	browserMgr  *browser.Manager
	logger      logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewKeepAliveService(cfg *config.Config, authManager *auth.Manager, browserMgr *browser.Manager) *KeepAliveService {
	return &KeepAliveService{
		config:      cfg,
		authManager: authManager,
		browserMgr:  browserMgr,
		logger:      logging.GetGlobalLogger(),
	}
}

// Start launches the background check loop. A second Start while the
// loop is running logs a warning and does nothing.
func (s *KeepAliveService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.logger.Warn("Keep-alive service is already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
	s.logger.Info("Keep-alive service started", map[string]interface{}{
		"check_interval": s.config.KeepAlive.CheckInterval.String(),
	})
}

// Stop cancels the loop and waits for it to exit. Safe to call when
// not running.
func (s *KeepAliveService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("Keep-alive service stopped")
}

func (s *KeepAliveService) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.KeepAlive.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.logger.Debug("Running scheduled session check")
		if s.authManager.CheckSessionStatus(ctx, s.browserMgr) {
			s.logger.Debug("Session is active")
			continue
		}

		s.logger.Warn("Session is not active, attempting re-login")
		if err := s.authManager.Login(ctx, s.browserMgr); err != nil {
			s.logger.Error("Failed to re-login during keep-alive check", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}
