package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Environment variable names
const (
	EnvUsername        = "USMS_USERNAME"
	EnvPassword        = "USMS_PASSWORD"
	EnvHomeURL         = "USMS_HOME_URL"
	EnvLoginURL        = "USMS_LOGIN_URL"
	EnvReadingsURL     = "USMS_READINGS_URL"
	EnvBrowserHost     = "BROWSER_HOST"
	EnvBrowserPort     = "BROWSER_PORT"
	EnvBrowserProtocol = "BROWSER_PROTOCOL"
	EnvBrowserEndpoint = "BROWSER_ENDPOINT"
	EnvScrapeInterval  = "SCRAPE_INTERVAL"
	EnvMQTTBroker      = "MQTT_BROKER"
	EnvMQTTPort        = "MQTT_PORT"
	EnvMQTTUsername    = "MQTT_USERNAME"
	EnvMQTTPassword    = "MQTT_PASSWORD"
	EnvMQTTTopic       = "MQTT_TOPIC"
	EnvMQTTRetain      = "MQTT_RETAIN"
)

// Load builds the process configuration: defaults, then the YAML file at
// path (skipped when path is empty), then environment overrides. The result
// is validated before it is returned.
func Load(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: expected an integer, got %q", key, v)
		}
		*dst = n
		return nil
	}

	str(EnvUsername, &c.Dashboard.Username)
	str(EnvPassword, &c.Dashboard.Password)
	str(EnvHomeURL, &c.Dashboard.HomeURL)
	str(EnvLoginURL, &c.Dashboard.LoginURL)
	str(EnvReadingsURL, &c.Dashboard.ReadingsURL)

	str(EnvBrowserHost, &c.Browser.Host)
	if err := num(EnvBrowserPort, &c.Browser.Port); err != nil {
		return err
	}
	if v, ok := lookup(EnvBrowserProtocol); ok && v != "" {
		c.Browser.Protocol = BrowserProtocol(strings.ToLower(strings.TrimSpace(v)))
	}
	str(EnvBrowserEndpoint, &c.Browser.Endpoint)

	if v, ok := lookup(EnvScrapeInterval); ok && strings.TrimSpace(v) != "" {
		seconds, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: expected an integer, got %q", EnvScrapeInterval, v)
		}
		if seconds <= 0 {
			return fmt.Errorf("%s: must be a positive number of seconds, got %d", EnvScrapeInterval, seconds)
		}
		c.Poll.Interval = time.Duration(seconds) * time.Second
	}

	str(EnvMQTTBroker, &c.MQTT.Host)
	if err := num(EnvMQTTPort, &c.MQTT.Port); err != nil {
		return err
	}
	str(EnvMQTTUsername, &c.MQTT.Username)
	str(EnvMQTTPassword, &c.MQTT.Password)
	str(EnvMQTTTopic, &c.MQTT.TopicPrefix)
	c.MQTT.TopicPrefix = strings.TrimRight(c.MQTT.TopicPrefix, "/")

	if v, ok := lookup(EnvMQTTRetain); ok && v != "" {
		retain, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: expected a boolean, got %q", EnvMQTTRetain, v)
		}
		c.MQTT.Retain = retain
	}

	return nil
}
