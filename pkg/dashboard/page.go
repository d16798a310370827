package dashboard

import (
	"errors"
	"time"

	"github.com/usms-bridge/usms-scraper/pkg/browser"
)

// Page is the subset of a browser session the dashboard needs.
// *browser.Session implements it.
type Page interface {
	Navigate(url string) error
	WaitFor(selector string, timeout time.Duration) error
	Text(selector string, timeout time.Duration) (string, error)
	Fill(selector, value string) error
	Click(selector string) error
	Alive() bool
	Close() error
}

// Backend opens new sessions. Each call makes exactly one attempt.
type Backend interface {
	Connect() (Page, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func() (Page, error)

// Connect calls f.
func (f BackendFunc) Connect() (Page, error) {
	return f()
}

// ConnectorBackend adapts a browser.Connector to the Backend interface.
func ConnectorBackend(c *browser.Connector) Backend {
	return BackendFunc(func() (Page, error) {
		session, err := c.Connect()
		if err != nil {
			return nil, err
		}
		return session, nil
	})
}

var (
	// ErrBackendUnavailable means every acquisition attempt failed.
	ErrBackendUnavailable = errors.New("browser backend unavailable")

	// ErrSessionInvalid means the session is gone and must be replaced.
	ErrSessionInvalid = browser.ErrSessionInvalid
)
