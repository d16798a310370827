package browser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"
)

var (
	// ErrSessionInvalid means the remote session no longer exists. The
	// session must be closed and replaced; no further call on it can succeed.
	ErrSessionInvalid = errors.New("browser session is no longer valid")

	// ErrElementNotFound means a locator matched nothing within its timeout.
	ErrElementNotFound = errors.New("element not found")

	// ErrNavigationTimeout means a page did not finish loading in time.
	ErrNavigationTimeout = errors.New("page load timed out")
)

// sessionGoneSignatures are error texts remote backends use when the session
// has been dropped without surfacing playwright.ErrTargetClosed, for example
// when the websocket to a grid node is torn down.
var sessionGoneSignatures = []string{
	"session missing",
	"no such session",
	"invalid session id",
	"target page, context or browser has been closed",
	"browser has been closed",
	"browser has disconnected",
	"websocket closed",
}

// classify wraps err with ErrSessionInvalid or ErrElementNotFound when it
// belongs to one of those classes. alive is the session's liveness observed
// right after the failure.
func classify(op string, err error, alive bool) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrSessionInvalid) || errors.Is(err, ErrElementNotFound) {
		return err
	}

	if sessionGone(err, alive) {
		return fmt.Errorf("%s: %w: %w", op, ErrSessionInvalid, err)
	}

	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%s: %w: %w", op, ErrElementNotFound, err)
	}

	return fmt.Errorf("%s failed: %w", op, err)
}

// classifyNavigation is classify for page loads, where a timeout means a
// slow page rather than a missing element.
func classifyNavigation(op string, err error, alive bool) error {
	if err == nil || errors.Is(err, ErrSessionInvalid) {
		return err
	}

	if sessionGone(err, alive) {
		return fmt.Errorf("%s: %w: %w", op, ErrSessionInvalid, err)
	}

	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%s: %w: %w", op, ErrNavigationTimeout, err)
	}

	return fmt.Errorf("%s failed: %w", op, err)
}

func sessionGone(err error, alive bool) bool {
	return !alive || errors.Is(err, playwright.ErrTargetClosed) || matchesSessionGone(err)
}

func matchesSessionGone(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, sig := range sessionGoneSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
