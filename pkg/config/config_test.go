package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// envMap returns a LookupFunc backed by a map.
func envMap(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func credentials() map[string]string {
	return map[string]string{
		EnvUsername: "account",
		EnvPassword: "secret",
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", envMap(credentials()))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Browser.Host)
	assert.Equal(t, 4444, cfg.Browser.Port)
	assert.Equal(t, ProtocolPlaywright, cfg.Browser.Protocol)
	assert.Equal(t, 1800*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, 5, cfg.Browser.Attempts)
	assert.Equal(t, 3*time.Second, cfg.Browser.RetryDelay)
	assert.Equal(t, 3*time.Second, cfg.Dashboard.SettleDelay)
	assert.Equal(t, "ws://localhost:4444/", cfg.BrowserEndpoint())
	assert.False(t, cfg.PublishingEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	env := credentials()
	env[EnvBrowserHost] = "selenium"
	env[EnvBrowserPort] = "3000"
	env[EnvBrowserProtocol] = "CDP"
	env[EnvScrapeInterval] = "600"
	env[EnvMQTTBroker] = "broker.lan"
	env[EnvMQTTPort] = "8883"
	env[EnvMQTTUsername] = "ha"
	env[EnvMQTTPassword] = "pw"
	env[EnvMQTTTopic] = "home/usms/"
	env[EnvMQTTRetain] = "true"

	cfg, err := Load("", envMap(env))
	require.NoError(t, err)

	assert.Equal(t, "http://selenium:3000", cfg.BrowserEndpoint())
	assert.Equal(t, 600*time.Second, cfg.Poll.Interval)
	assert.Equal(t, "tcp://broker.lan:8883", cfg.BrokerURL())
	assert.Equal(t, "home/usms", cfg.MQTT.TopicPrefix)
	assert.True(t, cfg.MQTT.Retain)
	assert.True(t, cfg.PublishingEnabled())
}

func TestLoad_InvalidNumber(t *testing.T) {
	env := credentials()
	env[EnvScrapeInterval] = "soon"

	_, err := Load("", envMap(env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvScrapeInterval)
}

func TestLoad_NonPositiveInterval(t *testing.T) {
	for _, v := range []string{"0", "-60"} {
		t.Run(v, func(t *testing.T) {
			env := credentials()
			env[EnvScrapeInterval] = v

			_, err := Load("", envMap(env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), EnvScrapeInterval)
		})
	}
}

func TestLoad_MissingCredentials(t *testing.T) {
	_, err := Load("", envMap(map[string]string{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username and password")
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usms.yaml")
	content := `
dashboard:
  username: from-file
  password: file-secret
  settle_delay: 5s
  locators:
    remaining_unit: "//td[@id='unit']"
browser:
  attempts: 2
  retry_delay: 500ms
poll:
  interval: 10m
mqtt:
  host: mqtt.local
  topic_prefix: meters
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	// Environment wins over the file
	cfg, err := Load(path, envMap(map[string]string{EnvUsername: "from-env"}))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Dashboard.Username)
	assert.Equal(t, "file-secret", cfg.Dashboard.Password)
	assert.Equal(t, 5*time.Second, cfg.Dashboard.SettleDelay)
	assert.Equal(t, "//td[@id='unit']", cfg.Dashboard.Locators.RemainingUnit)
	// Locators the file does not mention keep their defaults
	assert.Equal(t, Default().Dashboard.Locators.LoggedIn, cfg.Dashboard.Locators.LoggedIn)
	assert.Equal(t, 2, cfg.Browser.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Browser.RetryDelay)
	assert.Equal(t, 10*time.Minute, cfg.Poll.Interval)
	assert.Equal(t, "meters", cfg.MQTT.TopicPrefix)
	// No credentials for the broker, so publishing stays off
	assert.False(t, cfg.PublishingEnabled())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), envMap(credentials()))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.Dashboard.Username = "u"
		cfg.Dashboard.Password = "p"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown protocol",
			mutate:  func(c *Config) { c.Browser.Protocol = "webdriver" },
			wantErr: "invalid browser protocol",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Browser.Attempts = 0 },
			wantErr: "attempts",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Poll.Interval = 0 },
			wantErr: "interval",
		},
		{
			name:    "bad qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "qos",
		},
		{
			name: "bad mqtt port ignored while publishing is disabled",
			mutate: func(c *Config) {
				c.MQTT.Port = 0
			},
		},
		{
			name: "bad mqtt port with publishing enabled",
			mutate: func(c *Config) {
				c.MQTT.Host = "broker"
				c.MQTT.Username = "u"
				c.MQTT.Password = "p"
				c.MQTT.Port = 70000
			},
			wantErr: "invalid mqtt port",
		},
		{
			name:    "missing login locator",
			mutate:  func(c *Config) { c.Dashboard.Locators.SubmitButton = "" },
			wantErr: "login locators",
		},
		{
			name: "endpoint replaces host and port",
			mutate: func(c *Config) {
				c.Browser.Host = ""
				c.Browser.Endpoint = "ws://grid:3000/playwright"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPublishingEnabled(t *testing.T) {
	tests := []struct {
		name string
		mqtt MQTTConfig
		want bool
	}{
		{"all set", MQTTConfig{Host: "h", Username: "u", Password: "p"}, true},
		{"no host", MQTTConfig{Username: "u", Password: "p"}, false},
		{"no username", MQTTConfig{Host: "h", Password: "p"}, false},
		{"no password", MQTTConfig{Host: "h", Username: "u"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{MQTT: tt.mqtt}
			assert.Equal(t, tt.want, cfg.PublishingEnabled())
		})
	}
}

func TestReadingsPage(t *testing.T) {
	cfg := Default()
	assert.Equal(t, cfg.Dashboard.HomeURL, cfg.ReadingsPage())

	cfg.Dashboard.ReadingsURL = "https://example.test/readings"
	assert.Equal(t, "https://example.test/readings", cfg.ReadingsPage())
}
