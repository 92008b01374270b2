package browser

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"aistudioproxy/internal/config"
	"aistudioproxy/internal/logging"
	"aistudioproxy/pkg/utils"
)

// Manager owns the browser process, a main page used by background
// services, and a bounded pool of pre-warmed pages for request
// handling. The pool is a latency optimization, not a concurrency
// limiter; the request handler's semaphore enforces the hard limit.
type Manager struct {
	config   *config.Config
	logger   logging.Logger
	launcher *launcher.Launcher
	browser  *rod.Browser
	mainCtrl *PageController
	pool     *pagePool
	mu       sync.Mutex
}

// NewManager creates a manager configured but not yet started.
func NewManager(cfg *config.Config) *Manager {
	logger := logging.GetGlobalLogger()

	// Setup launcher with stealth mode and critical Docker flags
	l := launcher.New().
		Headless(cfg.Browser.HeadlessMode).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("disable-gpu").          // Essential: prevents GPU context failures in Docker
		Set("disable-dev-shm-usage") // Essential: overcomes Docker shared memory limitations

	if cfg.Browser.DebuggingPort > 0 {
		l = l.Set("remote-debugging-port", fmt.Sprintf("%d", cfg.Browser.DebuggingPort))
	}

	// Use system-installed Chrome/Chromium instead of downloading
	if chromePath := getSystemChromePath(); chromePath != "" {
		l = l.Bin(chromePath)
		logger.Info("Using system Chrome browser", map[string]interface{}{
			"chrome_path": chromePath,
		})
	} else {
		logger.Warn("System Chrome not found, Rod will download browser", map[string]interface{}{})
	}

	if cfg.Browser.UserAgent != "" {
		l = l.Set("user-agent", cfg.Browser.UserAgent)
	}

	return &Manager{
		config:   cfg,
		logger:   logger,
		launcher: l,
		pool:     newPagePool(cfg.Browser.MaxPoolSize),
	}
}

// retryConfig builds the retry policy for page controllers.
func (m *Manager) retryConfig() utils.RetryConfig {
	return utils.RetryConfig{
		Attempts:     m.config.Retry.Attempts,
		InitialDelay: m.config.Retry.InitialDelay,
		MaxDelay:     m.config.Retry.MaxDelay,
		Factor:       m.config.Retry.Factor,
		Jitter:       m.config.Retry.Jitter,
	}
}

// Start launches the browser, opens the main page, and pre-warms the
// page pool. A second Start before Stop logs a warning and returns nil.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		m.logger.Warn("Browser manager already started")
		return nil
	}

	url, err := m.launcher.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	m.browser = browser

	mainPage, err := m.newPage(browser)
	if err != nil {
		m.teardownLocked()
		return fmt.Errorf("failed to create main page: %w", err)
	}
	m.mainCtrl = NewPageController(mainPage, m.config.Browser.AIStudioURL, m.config.Browser.OperationTimeout, m.retryConfig())

	if err := m.mainCtrl.Navigate(ctx); err != nil {
		m.logger.Warn("Main page navigation failed on startup", map[string]interface{}{
			"error": err.Error(),
		})
	}

	for i := 0; i < m.config.Browser.InitialPoolSize; i++ {
		page, err := m.newPage(browser)
		if err != nil {
			m.logger.Warn("Failed to pre-warm pool page", map[string]interface{}{
				"error": err.Error(),
				"index": i,
			})
			continue
		}
		if !m.pool.put(page) {
			page.Close()
			break
		}
	}

	m.logger.Info("Browser manager started", map[string]interface{}{
		"pooled_pages": m.pool.len(),
		"headless":     m.config.Browser.HeadlessMode,
	})
	return nil
}

// Stop closes the main page, every pooled page, and the browser
// process. Each step runs independently so one failure does not block
// the rest. Safe to call when already stopped.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	m.logger.Info("Browser manager stopped")
	return nil
}

func (m *Manager) teardownLocked() {
	if m.mainCtrl != nil {
		if err := m.mainCtrl.Close(); err != nil {
			m.logger.Warn("Failed to close main page", map[string]interface{}{
				"error": err.Error(),
			})
		}
		m.mainCtrl = nil
	}

	m.pool.drain()

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Warn("Failed to close browser", map[string]interface{}{
				"error": err.Error(),
			})
		}
		m.browser = nil
	}

	m.launcher.Cleanup()
}

// Restart stops then starts the browser.
func (m *Manager) Restart(ctx context.Context) error {
	if err := m.Stop(); err != nil {
		return err
	}
	return m.Start(ctx)
}

// currentBrowser returns the connected browser handle, or nil.
func (m *Manager) currentBrowser() *rod.Browser {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser
}

// IsRunning reports whether the browser process is up and connected.
func (m *Manager) IsRunning() bool {
	browser := m.currentBrowser()
	if browser == nil {
		return false
	}
	err := rod.Try(func() {
		browser.MustVersion()
	})
	return err == nil
}

// HealthCheck opens and closes a throwaway page as a liveness probe.
// It never panics and never returns an error, only false.
func (m *Manager) HealthCheck(ctx context.Context) bool {
	if !m.IsRunning() {
		return false
	}

	page, err := m.newPage(m.currentBrowser())
	if err != nil {
		m.logger.Warn("Health check failed to open probe page", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}
	if err := page.Close(); err != nil {
		m.logger.Warn("Health check failed to close probe page", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}
	return true
}

// MainController returns the controller for the main page, used by the
// keep-alive service. Nil when the manager is not started.
func (m *Manager) MainController() *PageController {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mainCtrl
}

// GetPage hands out a pooled page, or opens a fresh one when the pool
// is empty. Fails with a NotRunning error when the browser is down.
func (m *Manager) GetPage(ctx context.Context) (Page, error) {
	if !m.IsRunning() {
		return nil, utils.NewNotRunningError("browser is not running")
	}

	if page := m.pool.get(); page != nil {
		if !page.IsClosed() {
			return page, nil
		}
		m.logger.Warn("Discarding closed page from pool")
	}

	m.logger.Warn("Page pool empty, opening page on demand")
	page, err := m.newPage(m.currentBrowser())
	if err != nil {
		return nil, utils.NewNotRunningError(fmt.Sprintf("could not open page: %v", err))
	}
	return page, nil
}

// ReleasePage returns a page to the pool. Closed pages are dropped, and
// pages that do not fit in a full pool are closed.
func (m *Manager) ReleasePage(page Page) {
	if page == nil {
		return
	}
	if page.IsClosed() {
		m.logger.Debug("Dropping closed page on release")
		return
	}
	if !m.pool.put(page) {
		m.logger.Debug("Page pool full, closing released page")
		if err := page.Close(); err != nil {
			m.logger.Warn("Failed to close surplus page", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// PooledPages reports the current pool occupancy.
func (m *Manager) PooledPages() int {
	return m.pool.len()
}

// NewController wraps a page in a controller using the manager's
// configured base URL, timeout, and retry policy.
func (m *Manager) NewController(page Page) *PageController {
	return NewPageController(page, m.config.Browser.AIStudioURL, m.config.Browser.OperationTimeout, m.retryConfig())
}

// newPage opens a stealth page on the given browser handle.
func (m *Manager) newPage(browser *rod.Browser) (Page, error) {
	if browser == nil {
		return nil, fmt.Errorf("browser not connected")
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, fmt.Errorf("failed to create stealth page: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		m.logger.Warn("Failed to set viewport", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if m.config.Browser.UserAgent != "" {
		err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent: m.config.Browser.UserAgent,
		})
		if err != nil {
			m.logger.Warn("Failed to set user agent", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return newRodPage(page), nil
}

// getSystemChromePath finds the system-installed Chrome/Chromium browser
func getSystemChromePath() string {
	if chromeBin := os.Getenv("CHROME_BIN"); chromeBin != "" {
		if _, err := os.Stat(chromeBin); err == nil {
			return chromeBin
		}
	}

	if chromePath := os.Getenv("CHROME_PATH"); chromePath != "" {
		if _, err := os.Stat(chromePath); err == nil {
			return chromePath
		}
	}

	commonPaths := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/opt/google/chrome/chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"C:\\Program Files\\Google\\Chrome\\Application\\chrome.exe",
		"C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe",
	}

	for _, path := range commonPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
