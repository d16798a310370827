package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config represents the full configuration of the scraper process.
// It is built once at startup and handed to each component by value.
type Config struct {
	// Dashboard account and page layout
	Dashboard DashboardConfig `yaml:"dashboard" json:"dashboard"`

	// Remote browser backend
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Polling schedule
	Poll PollConfig `yaml:"poll" json:"poll"`

	// MQTT publishing
	MQTT MQTTConfig `yaml:"mqtt" json:"mqtt"`
}

// DashboardConfig describes the utility dashboard and how to log in to it.
type DashboardConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`

	HomeURL  string `yaml:"home_url" json:"home_url"`
	LoginURL string `yaml:"login_url" json:"login_url"`
	// ReadingsURL is the page holding the meter values. Defaults to HomeURL.
	ReadingsURL string `yaml:"readings_url" json:"readings_url"`

	Locators Locators `yaml:"locators" json:"locators"`

	// SettleDelay is how long to wait after submitting the login form
	SettleDelay time.Duration `yaml:"settle_delay" json:"settle_delay"`
	// ProbeTimeout bounds the wait for the logged-in marker element
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
	// FieldTimeout bounds the wait for each extracted field
	FieldTimeout time.Duration `yaml:"field_timeout" json:"field_timeout"`
}

// Locators are the fixed selectors into the dashboard layout. Anything
// starting with "/" or "(/" is treated as XPath; other selectors may name a
// Playwright engine explicitly, e.g. "xpath=" or "css=".
type Locators struct {
	// LoggedIn is only present on pages served to an authenticated user
	LoggedIn string `yaml:"logged_in" json:"logged_in"`

	UsernameInput string `yaml:"username_input" json:"username_input"`
	PasswordInput string `yaml:"password_input" json:"password_input"`
	SubmitButton  string `yaml:"submit_button" json:"submit_button"`

	RemainingUnit    string `yaml:"remaining_unit" json:"remaining_unit"`
	RemainingBalance string `yaml:"remaining_balance" json:"remaining_balance"`
	MeterLastPolled  string `yaml:"meter_last_polled" json:"meter_last_polled"`
}

// BrowserProtocol selects how the remote browser is reached.
type BrowserProtocol string

const (
	// ProtocolPlaywright connects to a `playwright run-server` websocket
	ProtocolPlaywright BrowserProtocol = "playwright"
	// ProtocolCDP connects to a Chrome DevTools Protocol endpoint
	ProtocolCDP BrowserProtocol = "cdp"
)

// BrowserConfig describes the remote browser-automation backend.
type BrowserConfig struct {
	Host     string          `yaml:"host" json:"host"`
	Port     int             `yaml:"port" json:"port"`
	Protocol BrowserProtocol `yaml:"protocol" json:"protocol"`
	// Endpoint overrides the URL derived from Host, Port and Protocol
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	Headless   bool     `yaml:"headless" json:"headless"`
	LaunchArgs []string `yaml:"launch_args" json:"launch_args"`

	// Acquisition retry policy
	Attempts   int           `yaml:"attempts" json:"attempts"`
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`

	ConnectTimeout   time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	OperationTimeout time.Duration `yaml:"operation_timeout" json:"operation_timeout"`
}

// PollConfig controls the polling schedule.
type PollConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// MQTTConfig describes the broker readings are published to.
type MQTTConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`

	TopicPrefix string `yaml:"topic_prefix" json:"topic_prefix"`
	ClientID    string `yaml:"client_id" json:"client_id"`
	QoS         byte   `yaml:"qos" json:"qos"`
	Retain      bool   `yaml:"retain" json:"retain"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout" json:"publish_timeout"`
}

// Default values
const (
	DefaultBrowserHost    = "localhost"
	DefaultBrowserPort    = 4444
	DefaultAttempts       = 5
	DefaultRetryDelay     = 3 * time.Second
	DefaultSettleDelay    = 3 * time.Second
	DefaultPollInterval   = 1800 * time.Second
	DefaultMQTTPort       = 1883
	DefaultTopicPrefix    = "usms"
	DefaultHomeURL        = "https://www.usms.com.bn/SmartMeter/Home"
	DefaultLoginURL       = "https://www.usms.com.bn/SmartMeter/ResLogin"
	DefaultConnectTimeout = 30 * time.Second
)

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Dashboard: DashboardConfig{
			HomeURL:  DefaultHomeURL,
			LoginURL: DefaultLoginURL,
			Locators: Locators{
				LoggedIn:         "//a[contains(@href, 'Logout')]",
				UsernameInput:    "input[name='ASPxRoundPanel1$txtUsername']",
				PasswordInput:    "input[name='ASPxRoundPanel1$txtPassword']",
				SubmitButton:     "#ASPxRoundPanel1_btnLogin",
				RemainingUnit:    "//*[@id='ASPxFormLayout1']/tbody/tr[4]/td/table/tbody/tr/td[2]",
				RemainingBalance: "//*[@id='ASPxFormLayout1']/tbody/tr[5]/td/table/tbody/tr/td[2]",
				MeterLastPolled:  "//*[@id='ASPxFormLayout1']/tbody/tr[6]/td/table/tbody/tr/td[2]",
			},
			SettleDelay:  DefaultSettleDelay,
			ProbeTimeout: 10 * time.Second,
			FieldTimeout: 5 * time.Second,
		},
		Browser: BrowserConfig{
			Host:             DefaultBrowserHost,
			Port:             DefaultBrowserPort,
			Protocol:         ProtocolPlaywright,
			Headless:         true,
			LaunchArgs:       []string{"--no-sandbox", "--disable-dev-shm-usage"},
			Attempts:         DefaultAttempts,
			RetryDelay:       DefaultRetryDelay,
			ConnectTimeout:   DefaultConnectTimeout,
			OperationTimeout: DefaultConnectTimeout,
		},
		Poll: PollConfig{
			Interval: DefaultPollInterval,
		},
		MQTT: MQTTConfig{
			Port:           DefaultMQTTPort,
			TopicPrefix:    DefaultTopicPrefix,
			ConnectTimeout: 10 * time.Second,
			PublishTimeout: 10 * time.Second,
		},
	}
}

// Validate checks the configuration for values no component can work with.
// Missing MQTT settings are not an error: publishing disables itself.
func (c *Config) Validate() error {
	if c.Dashboard.Username == "" || c.Dashboard.Password == "" {
		return fmt.Errorf("dashboard username and password are required")
	}

	if c.Dashboard.HomeURL == "" || c.Dashboard.LoginURL == "" {
		return fmt.Errorf("dashboard home_url and login_url are required")
	}

	l := c.Dashboard.Locators
	if l.LoggedIn == "" || l.UsernameInput == "" || l.PasswordInput == "" || l.SubmitButton == "" {
		return fmt.Errorf("login locators (logged_in, username_input, password_input, submit_button) are required")
	}

	if c.Browser.Protocol != ProtocolPlaywright && c.Browser.Protocol != ProtocolCDP {
		return fmt.Errorf("invalid browser protocol: %s (must be 'playwright' or 'cdp')", c.Browser.Protocol)
	}

	if c.Browser.Endpoint == "" && (c.Browser.Host == "" || c.Browser.Port <= 0) {
		return fmt.Errorf("browser host and port are required when no endpoint is set")
	}

	if c.Browser.Attempts < 1 {
		return fmt.Errorf("browser.attempts must be at least 1")
	}

	if c.Browser.RetryDelay < 0 || c.Dashboard.SettleDelay < 0 {
		return fmt.Errorf("delays cannot be negative")
	}

	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if c.PublishingEnabled() && (c.MQTT.Port <= 0 || c.MQTT.Port > 65535) {
		return fmt.Errorf("invalid mqtt port: %d", c.MQTT.Port)
	}

	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos: %d (must be 0, 1 or 2)", c.MQTT.QoS)
	}

	if c.MQTT.TopicPrefix == "" {
		return fmt.Errorf("mqtt topic_prefix cannot be empty")
	}

	return nil
}

// BrowserEndpoint returns the URL the browser backend is reached at.
func (c *Config) BrowserEndpoint() string {
	if c.Browser.Endpoint != "" {
		return c.Browser.Endpoint
	}

	hostPort := net.JoinHostPort(c.Browser.Host, strconv.Itoa(c.Browser.Port))
	if c.Browser.Protocol == ProtocolCDP {
		return "http://" + hostPort
	}
	return "ws://" + hostPort + "/"
}

// ReadingsPage returns the page the meter values are read from.
func (c *Config) ReadingsPage() string {
	if c.Dashboard.ReadingsURL != "" {
		return c.Dashboard.ReadingsURL
	}
	return c.Dashboard.HomeURL
}

// PublishingEnabled reports whether enough broker settings are present to publish.
func (c *Config) PublishingEnabled() bool {
	return c.MQTT.Host != "" && c.MQTT.Username != "" && c.MQTT.Password != ""
}

// BrokerURL returns the paho broker address.
func (c *Config) BrokerURL() string {
	return "tcp://" + net.JoinHostPort(c.MQTT.Host, strconv.Itoa(c.MQTT.Port))
}
