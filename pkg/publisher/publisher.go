package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/usms-bridge/usms-scraper/pkg/config"
	"github.com/usms-bridge/usms-scraper/pkg/dashboard"
)

// Client is the subset of mqtt.Client the publisher uses.
type Client interface {
	Connect() mqtt.Token
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// ClientFactory builds a client from options. mqtt.NewClient is the default.
type ClientFactory func(opts *mqtt.ClientOptions) Client

// disconnectQuiesceMillis is how long Close waits for in-flight messages
const disconnectQuiesceMillis = 250

// ErrTimeout means the broker did not complete an operation in time.
var ErrTimeout = errors.New("mqtt operation timed out")

// Publisher sends readings to the broker over one persistent connection.
type Publisher struct {
	cfg       config.MQTTConfig
	brokerURL string
	enabled   bool
	logger    zerolog.Logger
	factory   ClientFactory

	// mu guards client
	mu     sync.Mutex
	client Client
}

// New creates a publisher. Publishing is disabled unless broker host,
// username and password are all configured.
func New(cfg config.Config, logger zerolog.Logger) *Publisher {
	return &Publisher{
		cfg:       cfg.MQTT,
		brokerURL: cfg.BrokerURL(),
		enabled:   cfg.PublishingEnabled(),
		logger:    logger,
		factory: func(opts *mqtt.ClientOptions) Client {
			return mqtt.NewClient(opts)
		},
	}
}

// SetClientFactory replaces the function used to build MQTT clients.
func (p *Publisher) SetClientFactory(f ClientFactory) {
	p.factory = f
}

// Enabled reports whether readings are published.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// Topic returns the topic a named value is published to.
func (p *Publisher) Topic(name string) string {
	return p.cfg.TopicPrefix + "/" + name
}

// Publish sends every value of the reading to its own topic. Absent values
// are sent as an empty payload. Failures are logged and never returned:
// the poll cycle carries on, and the next call reconnects.
func (p *Publisher) Publish(ctx context.Context, reading dashboard.Reading) {
	if !p.enabled {
		p.logger.Info().Msg("mqtt publishing disabled, broker host or credentials not configured")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	client, err := p.connectLocked()
	if err != nil {
		p.logger.Error().Err(err).Str("broker", p.brokerURL).Msg("failed to connect to mqtt broker")
		return
	}

	failed := 0
	for _, v := range reading.Values() {
		if ctx.Err() != nil {
			return
		}
		topic := p.Topic(v.Name)
		if err := p.publishLocked(client, topic, v.Value.Text); err != nil {
			failed++
			p.logger.Error().Err(err).Str("topic", topic).Msg("failed to publish value")
			continue
		}
		p.logger.Debug().Str("topic", topic).Str("payload", v.Value.String()).Msg("published")
	}

	if failed > 0 && !client.IsConnectionOpen() {
		p.dropLocked()
	}
}

func (p *Publisher) connectLocked() (Client, error) {
	if p.client != nil && p.client.IsConnectionOpen() {
		return p.client, nil
	}
	p.dropLocked()

	client := p.factory(p.clientOptions())
	token := client.Connect()
	if !token.WaitTimeout(p.cfg.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect to %s: %w", p.brokerURL, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect to %s: %w", p.brokerURL, err)
	}

	p.client = client
	return client, nil
}

func (p *Publisher) publishLocked(client Client, topic, payload string) error {
	token := client.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
	if !token.WaitTimeout(p.cfg.PublishTimeout) {
		return ErrTimeout
	}
	return token.Error()
}

func (p *Publisher) dropLocked() {
	if p.client == nil {
		return
	}
	p.client.Disconnect(0)
	p.client = nil
}

func (p *Publisher) clientOptions() *mqtt.ClientOptions {
	clientID := p.cfg.ClientID
	if clientID == "" {
		clientID = "usms-scraper-" + uuid.New().String()[:8]
	}

	return mqtt.NewClientOptions().
		AddBroker(p.brokerURL).
		SetClientID(clientID).
		SetUsername(p.cfg.Username).
		SetPassword(p.cfg.Password).
		SetConnectTimeout(p.cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetOnConnectHandler(func(mqtt.Client) {
			p.logger.Info().Str("broker", p.brokerURL).Msg("mqtt connected")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			p.logger.Warn().Err(err).Str("broker", p.brokerURL).Msg("mqtt connection lost")
		})
}

// Close disconnects from the broker, letting in-flight work finish briefly.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return
	}
	p.client.Disconnect(disconnectQuiesceMillis)
	p.client = nil
}
