package browser

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
)

// Connector opens sessions against a remote browser backend. It owns the
// local Playwright driver process; the browsers themselves live remotely.
type Connector struct {
	mu          sync.Mutex
	playwright  *playwright.Playwright
	opts        Options
	initialized bool
}

// NewConnector creates a new connector.
func NewConnector(opts Options) *Connector {
	if opts.Protocol == "" {
		opts.Protocol = ProtocolPlaywright
	}
	if opts.Viewport == nil {
		opts.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultTimeout
	}
	if opts.OperationTimeout == 0 {
		opts.OperationTimeout = DefaultTimeout
	}

	return &Connector{
		opts: opts,
	}
}

// Initialize installs and starts the Playwright driver.
// This must be called before connecting any sessions.
func (c *Connector) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	// Browsers run on the remote backend; only the driver is needed locally
	opts := &playwright.RunOptions{
		SkipInstallBrowsers: true,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright driver: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	c.playwright = pw
	c.initialized = true
	return nil
}

// Connect opens one new session on the remote backend. It makes a single
// attempt; retrying is the caller's policy.
func (c *Connector) Connect() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil, fmt.Errorf("connector not initialized")
	}

	browser, err := c.connectBrowser()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.opts.Endpoint, err)
	}

	// Create context
	contextOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  c.opts.Viewport.Width,
			Height: c.opts.Viewport.Height,
		},
	}
	context, err := browser.NewContext(contextOpts)
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	// Create page
	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	timeout := milliseconds(c.opts.OperationTimeout)
	page.SetDefaultTimeout(timeout)
	page.SetDefaultNavigationTimeout(timeout)

	now := time.Now()
	return &Session{
		ID:               uuid.New().String(),
		Browser:          browser,
		Context:          context,
		Page:             page,
		CreatedAt:        now,
		LastUsedAt:       now,
		CurrentURL:       "about:blank",
		operationTimeout: timeout,
	}, nil
}

func (c *Connector) connectBrowser() (playwright.Browser, error) {
	timeout := milliseconds(c.opts.ConnectTimeout)

	switch c.opts.Protocol {
	case ProtocolCDP:
		return c.playwright.Chromium.ConnectOverCDP(c.opts.Endpoint, playwright.BrowserTypeConnectOverCDPOptions{
			Timeout: &timeout,
		})
	case ProtocolPlaywright:
		header, err := launchOptionsJSON(c.opts.Headless, c.opts.LaunchArgs)
		if err != nil {
			return nil, err
		}
		return c.playwright.Chromium.Connect(c.opts.Endpoint, playwright.BrowserTypeConnectOptions{
			Timeout: &timeout,
			Headers: map[string]string{launchOptionsHeader: header},
		})
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", c.opts.Protocol)
	}
}

// Shutdown stops the Playwright driver. Sessions must be closed by their owners first.
func (c *Connector) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized && c.playwright != nil {
		if err := c.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		c.initialized = false
	}

	return nil
}

// launchOptionsJSON encodes the server-side launch options for run-server.
func launchOptionsJSON(headless bool, args []string) (string, error) {
	data, err := json.Marshal(launchOptions{
		Headless: headless,
		Args:     args,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode launch options: %w", err)
	}
	return string(data), nil
}

func milliseconds(d time.Duration) float64 {
	return float64(d / time.Millisecond)
}
