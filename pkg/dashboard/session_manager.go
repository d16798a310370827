package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/usms-bridge/usms-scraper/pkg/config"
)

// State is the session lifecycle state.
type State int

const (
	// StateUnbound means no session exists
	StateUnbound State = iota
	// StateUnauthenticated means a session exists but is not logged in
	StateUnauthenticated
	// StateAuthenticated means the last observation found the session logged in
	StateAuthenticated
	// StateInvalid means the backend dropped the session; it is being closed
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SessionManager owns the single dashboard session. It is not safe for
// concurrent use; the poll loop is its only caller.
type SessionManager struct {
	backend Backend
	cfg     config.DashboardConfig
	logger  zerolog.Logger

	attempts   int
	retryDelay time.Duration
	sleep      SleepFunc

	page  Page
	state State

	// unverifiedLogins counts logins not yet followed by an authenticated check
	unverifiedLogins int
}

// NewSessionManager creates a session manager that opens sessions through backend.
func NewSessionManager(backend Backend, cfg config.Config, logger zerolog.Logger) *SessionManager {
	return &SessionManager{
		backend:    backend,
		cfg:        cfg.Dashboard,
		logger:     logger,
		attempts:   cfg.Browser.Attempts,
		retryDelay: cfg.Browser.RetryDelay,
		sleep:      SleepContext,
		state:      StateUnbound,
	}
}

// SetSleep replaces the function used for the retry and settle delays.
func (m *SessionManager) SetSleep(sleep SleepFunc) {
	m.sleep = sleep
}

// State returns the current lifecycle state.
func (m *SessionManager) State() State {
	return m.state
}

// Page returns the bound page, or nil when unbound.
func (m *SessionManager) Page() Page {
	return m.page
}

// Acquire opens a new session, retrying with a fixed delay to ride out a
// backend that is still starting. After the last failed attempt it returns
// an error wrapping ErrBackendUnavailable.
func (m *SessionManager) Acquire(ctx context.Context) error {
	if m.page != nil {
		m.Invalidate(errors.New("replaced by new session"))
	}

	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		page, err := m.backend.Connect()
		if err == nil {
			m.page = page
			m.state = StateUnauthenticated
			m.logger.Info().Int("attempt", attempt).Msg("browser session acquired")
			return nil
		}

		lastErr = err
		m.logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", m.attempts).
			Msg("failed to acquire browser session")

		if attempt == m.attempts {
			break
		}
		// The backend container often starts after this process
		if err := m.sleep(ctx, m.retryDelay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrBackendUnavailable, m.attempts, lastErr)
}

// CheckAuthenticated loads the home page and probes for the logged-in marker.
// The result is observed on every call, never cached, since the server can
// expire the login at any time. A failure other than a missing marker leaves
// the authentication state unknown, so the session is closed and the error
// returned.
func (m *SessionManager) CheckAuthenticated(ctx context.Context) (bool, error) {
	if m.page == nil {
		return false, fmt.Errorf("no session bound")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if err := m.page.Navigate(m.cfg.HomeURL); err != nil {
		return false, m.uncertain("load home page", err)
	}

	err := m.page.WaitFor(m.cfg.Locators.LoggedIn, m.cfg.ProbeTimeout)
	switch {
	case err == nil:
		m.state = StateAuthenticated
		m.unverifiedLogins = 0
		return true, nil
	case errors.Is(err, ErrSessionInvalid):
		return false, err
	default:
		// Marker absent or probe timed out: treat as logged out
		m.state = StateUnauthenticated
		if m.unverifiedLogins > 0 {
			m.logger.Warn().Int("logins", m.unverifiedLogins).Msg("still not authenticated after login")
		}
		return false, nil
	}
}

// Login submits the configured credentials on the login page, then waits
// for the post-login redirect to settle. It does not verify the outcome;
// the next CheckAuthenticated does.
func (m *SessionManager) Login(ctx context.Context) error {
	if m.page == nil {
		return fmt.Errorf("no session bound")
	}

	m.logger.Info().Str("url", m.cfg.LoginURL).Msg("logging in")

	if err := m.page.Navigate(m.cfg.LoginURL); err != nil {
		return fmt.Errorf("failed to load login page: %w", err)
	}
	if err := m.page.Fill(m.cfg.Locators.UsernameInput, m.cfg.Username); err != nil {
		return fmt.Errorf("failed to fill username: %w", err)
	}
	if err := m.page.Fill(m.cfg.Locators.PasswordInput, m.cfg.Password); err != nil {
		return fmt.Errorf("failed to fill password: %w", err)
	}
	if err := m.page.Click(m.cfg.Locators.SubmitButton); err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}

	m.unverifiedLogins++

	// The dashboard redirects after a successful login; interacting before
	// the redirect completes lands on the login page again.
	if err := m.sleep(ctx, m.cfg.SettleDelay); err != nil {
		return err
	}

	// Stays unauthenticated until a probe observes the marker
	m.state = StateUnauthenticated
	return nil
}

// Invalidate closes the current session and returns to unbound. Close
// failures are logged and otherwise ignored: the session is dead either way.
func (m *SessionManager) Invalidate(cause error) {
	if m.page == nil {
		m.state = StateUnbound
		return
	}

	m.state = StateInvalid
	m.logger.Warn().Err(cause).Msg("discarding browser session")

	if err := m.page.Close(); err != nil {
		m.logger.Debug().Err(err).Msg("error closing discarded session")
	}

	m.page = nil
	m.state = StateUnbound
}

// Ensure returns a page that is bound and, as far as can be observed,
// logged in: it acquires a session when unbound, replaces a dead one, and
// logs in when the authentication probe fails.
func (m *SessionManager) Ensure(ctx context.Context) (Page, error) {
	if m.page != nil && !m.page.Alive() {
		m.Invalidate(ErrSessionInvalid)
	}

	if m.page == nil {
		if err := m.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	authenticated, err := m.CheckAuthenticated(ctx)
	if err != nil {
		return nil, err
	}

	if !authenticated {
		if err := m.Login(ctx); err != nil {
			if errors.Is(err, ErrSessionInvalid) {
				return nil, err
			}
			// Proceed anyway; extraction degrades to absent fields
			m.logger.Error().Err(err).Msg("login failed")
		}
	}

	return m.page, nil
}

// Close releases the current session at shutdown.
func (m *SessionManager) Close() error {
	if m.page == nil {
		return nil
	}
	err := m.page.Close()
	m.page = nil
	m.state = StateUnbound
	return err
}

// uncertain handles a failed authentication check. Session loss is passed
// through for the caller to recover; anything else closes the session.
func (m *SessionManager) uncertain(op string, err error) error {
	if errors.Is(err, ErrSessionInvalid) {
		return err
	}
	wrapped := fmt.Errorf("authentication state unknown: %s: %w", op, err)
	m.Invalidate(wrapped)
	return wrapped
}

// SleepContext sleeps for d, but returns early if ctx is cancelled.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
