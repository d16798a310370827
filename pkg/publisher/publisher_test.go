package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usms-bridge/usms-scraper/pkg/config"
	"github.com/usms-bridge/usms-scraper/pkg/dashboard"
)

// fakeToken is an mqtt.Token that is already complete, or never completes.
type fakeToken struct {
	err     error
	pending bool
}

func (t *fakeToken) Wait() bool { return !t.pending }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.pending }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.pending {
		close(ch)
	}
	return ch
}

func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload string
}

// fakeClient records publishes.
type fakeClient struct {
	mu          sync.Mutex
	opts        *mqtt.ClientOptions
	connectErr  error
	connectHang bool
	publishErr  error
	dropOnSend  bool
	open        bool
	messages    []published
	disconnects int
}

func (c *fakeClient) Connect() mqtt.Token {
	if c.connectErr == nil && !c.connectHang {
		c.open = true
	}
	return &fakeToken{err: c.connectErr, pending: c.connectHang}
}

func (c *fakeClient) IsConnectionOpen() bool { return c.open }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, retain: retained, payload: payload.(string)})
	if c.dropOnSend {
		c.open = false
	}
	return &fakeToken{err: c.publishErr}
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnects++
	c.open = false
}

// factory hands out the given clients in order and records how many were built.
type factory struct {
	clients []*fakeClient
	built   int
}

func (f *factory) build(opts *mqtt.ClientOptions) Client {
	c := f.clients[f.built]
	c.opts = opts
	f.built++
	return c
}

func enabledConfig() config.Config {
	cfg := config.Default()
	cfg.MQTT.Host = "broker.test"
	cfg.MQTT.Username = "ha"
	cfg.MQTT.Password = "pw"
	return cfg
}

func sampleReading() dashboard.Reading {
	return dashboard.Reading{
		RemainingUnit:    dashboard.Some("123.45"),
		RemainingBalance: dashboard.Some("12.30"),
		MeterLastPolled:  dashboard.Some("17/10/2026 08:00:00"),
		CapturedAt:       time.Date(2026, 10, 17, 20, 0, 0, 0, dashboard.Zone),
	}
}

func newTestPublisher(cfg config.Config, clients ...*fakeClient) (*Publisher, *factory) {
	f := &factory{clients: clients}
	p := New(cfg, zerolog.Nop())
	p.SetClientFactory(f.build)
	return p, f
}

func TestPublish_AllValues(t *testing.T) {
	client := &fakeClient{}
	p, _ := newTestPublisher(enabledConfig(), client)

	p.Publish(context.Background(), sampleReading())

	assert.Equal(t, []published{
		{topic: "usms/remaining_unit", payload: "123.45"},
		{topic: "usms/remaining_balance", payload: "12.30"},
		{topic: "usms/meter_last_polled", payload: "17/10/2026 08:00:00"},
		{topic: "usms/last_run", payload: "2026-10-17T20:00:00+08:00"},
	}, client.messages)

	require.NotNil(t, client.opts)
	assert.Equal(t, "ha", client.opts.Username)
	assert.Equal(t, "tcp://broker.test:1883", client.opts.Servers[0].String())
}

func TestPublish_AbsentIsEmptyPayload(t *testing.T) {
	client := &fakeClient{}
	p, _ := newTestPublisher(enabledConfig(), client)

	reading := sampleReading()
	reading.RemainingBalance = dashboard.Absent()
	p.Publish(context.Background(), reading)

	require.Len(t, client.messages, 4)
	assert.Equal(t, "usms/remaining_balance", client.messages[1].topic)
	assert.Equal(t, "", client.messages[1].payload)
}

func TestPublish_RetainAndQoS(t *testing.T) {
	cfg := enabledConfig()
	cfg.MQTT.Retain = true
	cfg.MQTT.QoS = 1
	cfg.MQTT.TopicPrefix = "home/meter"
	client := &fakeClient{}
	p, _ := newTestPublisher(cfg, client)

	p.Publish(context.Background(), sampleReading())

	for _, m := range client.messages {
		assert.True(t, m.retain)
		assert.Equal(t, byte(1), m.qos)
	}
	assert.Equal(t, "home/meter/remaining_unit", client.messages[0].topic)
}

func TestPublish_ReusesConnection(t *testing.T) {
	client := &fakeClient{}
	p, f := newTestPublisher(enabledConfig(), client)

	p.Publish(context.Background(), sampleReading())
	p.Publish(context.Background(), sampleReading())

	assert.Equal(t, 1, f.built)
	assert.Len(t, client.messages, 8)
}

func TestPublish_Disabled(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"no host", func(c *config.Config) { c.MQTT.Host = "" }},
		{"no username", func(c *config.Config) { c.MQTT.Username = "" }},
		{"no password", func(c *config.Config) { c.MQTT.Password = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := enabledConfig()
			tt.mutate(&cfg)
			p, f := newTestPublisher(cfg)

			assert.False(t, p.Enabled())
			p.Publish(context.Background(), sampleReading())
			assert.Zero(t, f.built)
		})
	}
}

func TestPublish_ConnectTimeoutThenRecovers(t *testing.T) {
	hanging := &fakeClient{connectHang: true}
	healthy := &fakeClient{}
	p, f := newTestPublisher(enabledConfig(), hanging, healthy)

	p.Publish(context.Background(), sampleReading())
	assert.Empty(t, hanging.messages)
	assert.Equal(t, 1, hanging.disconnects)

	// A transient failure does not disable publishing
	p.Publish(context.Background(), sampleReading())
	assert.Equal(t, 2, f.built)
	assert.Len(t, healthy.messages, 4)
}

func TestPublish_ConnectRefused(t *testing.T) {
	refused := &fakeClient{connectErr: errors.New("not authorized")}
	p, _ := newTestPublisher(enabledConfig(), refused)

	assert.NotPanics(t, func() {
		p.Publish(context.Background(), sampleReading())
	})
	assert.Empty(t, refused.messages)
	assert.Nil(t, p.client)
}

func TestPublish_FailuresKeepOpenConnection(t *testing.T) {
	flaky := &fakeClient{publishErr: errors.New("not acknowledged")}
	p, _ := newTestPublisher(enabledConfig(), flaky)

	p.Publish(context.Background(), sampleReading())
	assert.Len(t, flaky.messages, 4)
	assert.NotNil(t, p.client)
}

func TestPublish_FailuresDropLostConnection(t *testing.T) {
	flaky := &fakeClient{publishErr: errors.New("connection lost"), dropOnSend: true}
	healthy := &fakeClient{}
	p, f := newTestPublisher(enabledConfig(), flaky, healthy)

	// The broker drops us after connect; every value is still attempted
	p.Publish(context.Background(), sampleReading())
	assert.Len(t, flaky.messages, 4)
	assert.Nil(t, p.client)

	p.Publish(context.Background(), sampleReading())
	assert.Equal(t, 2, f.built)
	assert.Len(t, healthy.messages, 4)
}

func TestClose(t *testing.T) {
	client := &fakeClient{}
	p, _ := newTestPublisher(enabledConfig(), client)

	p.Close()
	assert.Zero(t, client.disconnects)

	p.Publish(context.Background(), sampleReading())
	p.Close()
	assert.Equal(t, 1, client.disconnects)
	assert.Nil(t, p.client)
}
