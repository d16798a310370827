package browser

import (
	"time"

	"github.com/playwright-community/playwright-go"
)

// Session represents a connected remote browser with its context and page.
type Session struct {
	// ID uniquely identifies this session in logs
	ID string

	// Browser is the remote Playwright browser connection
	Browser playwright.Browser

	// Context is the browser context (isolated cookie jar)
	Context playwright.BrowserContext

	// Page is the single page all operations run against
	Page playwright.Page

	// CreatedAt is the timestamp when the session was created
	CreatedAt time.Time

	// LastUsedAt is the timestamp of the last operation on this session
	LastUsedAt time.Time

	// CurrentURL is the URL of the current page
	CurrentURL string

	// operationTimeout bounds navigation and element operations (milliseconds)
	operationTimeout float64
}

// Protocol selects how the remote browser is reached.
type Protocol string

const (
	// ProtocolPlaywright connects to a `playwright run-server` websocket endpoint
	ProtocolPlaywright Protocol = "playwright"

	// ProtocolCDP connects to a Chrome DevTools Protocol endpoint
	ProtocolCDP Protocol = "cdp"
)

// Options configures the connector and every session it opens.
type Options struct {
	// Endpoint is the backend URL (ws://host:port/ or http://host:port)
	Endpoint string

	// Protocol selects Connect or ConnectOverCDP
	Protocol Protocol

	// Headless is forwarded to the server-side browser launch
	Headless bool

	// LaunchArgs are extra browser flags forwarded to the server-side launch
	LaunchArgs []string

	// Viewport sets the page viewport size
	Viewport *Viewport

	// ConnectTimeout bounds a single connection attempt
	ConnectTimeout time.Duration

	// OperationTimeout is the default timeout for page operations
	OperationTimeout time.Duration
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// launchOptions is the JSON document `playwright run-server` reads from the
// x-playwright-launch-options header.
type launchOptions struct {
	Headless bool     `json:"headless"`
	Args     []string `json:"args,omitempty"`
}

// Default values for various operations
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720

	launchOptionsHeader = "x-playwright-launch-options"
)
