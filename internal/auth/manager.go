package auth

import (
	"context"
	"time"

	"aistudioproxy/internal/browser"
	"aistudioproxy/internal/config"
	"aistudioproxy/internal/logging"
	"aistudioproxy/pkg/utils"
)

// Manager checks and repairs the signed-in state of the main AI Studio
// page. Sign-in itself happens in the browser (a Google account
// session); this manager only detects expiry and re-navigates so an
// existing browser profile can re-establish the session.
type Manager struct {
	config *config.Config
	logger logging.Logger
}

// loginWaitTimeout bounds how long a re-login waits for the signed-in
// indicator after navigation.
const loginWaitTimeout = 2 * time.Minute

func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		config: cfg,
		logger: logging.GetGlobalLogger(),
	}
}

// CheckSessionStatus reports whether the main page still shows a
// signed-in session. It never returns an error; any probe failure
// counts as not signed in.
func (m *Manager) CheckSessionStatus(ctx context.Context, mgr *browser.Manager) bool {
	ctrl := mgr.MainController()
	if ctrl == nil {
		m.logger.Warn("No main page available for session check")
		return false
	}
	return ctrl.IsLoggedIn(ctx, m.config.Browser.LoginCheckTimeout)
}

// Login re-navigates the main page and waits for the signed-in
// indicator to come back. With a persistent browser profile the Google
// session usually resumes without interaction; otherwise an operator
// has to sign in within the wait window.
func (m *Manager) Login(ctx context.Context, mgr *browser.Manager) error {
	ctrl := mgr.MainController()
	if ctrl == nil {
		return utils.NewNotRunningError("no main page available for login")
	}

	if err := ctrl.Navigate(ctx); err != nil {
		return err
	}

	if !ctrl.IsLoggedIn(ctx, loginWaitTimeout) {
		return utils.NewServiceUnavailableError("session could not be re-established")
	}

	m.logger.Info("Session re-established")
	return nil
}
