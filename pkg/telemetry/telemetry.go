// Package telemetry publishes samples to an MQTT broker as JSON.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/itohio/goads/pkg/config"
	"github.com/itohio/goads/pkg/sample"
)

const (
	defaultTimeout = 5 * time.Second
	quiesce        = 250 // ms
)

var errTimeout = errors.New("mqtt: timeout")

// Client is the part of mqtt.Client the publisher needs.
type Client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

var _ Client = mqtt.Client(nil)

// Publisher sends samples to one topic.
type Publisher struct {
	client  Client
	cfg     config.TelemetryConfig
	timeout time.Duration
}

// New creates a publisher backed by a paho client. It does not connect.
func New(cfg config.TelemetryConfig) *Publisher {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(defaultTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		})
	return NewWithClient(mqtt.NewClient(opts), cfg)
}

// NewWithClient creates a publisher on top of an existing client.
func NewWithClient(c Client, cfg config.TelemetryConfig) *Publisher {
	return &Publisher{client: c, cfg: cfg, timeout: defaultTimeout}
}

func (p *Publisher) wait(op string, tok mqtt.Token) error {
	if !tok.WaitTimeout(p.timeout) {
		return fmt.Errorf("failed to %s: %w", op, errTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return nil
}

// Connect connects to the broker.
func (p *Publisher) Connect() error {
	return p.wait("connect to "+p.cfg.Broker, p.client.Connect())
}

// Publish sends one sample.
func (p *Publisher) Publish(s sample.Sample) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}
	return p.wait("publish", p.client.Publish(p.cfg.Topic, p.cfg.QoS, p.cfg.Retain, payload))
}

// Run publishes samples until in is closed or ctx is cancelled. Failures are
// logged and the sample is skipped.
func (p *Publisher) Run(ctx context.Context, in <-chan sample.Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in:
			if !ok {
				return
			}
			if err := p.Publish(s); err != nil {
				log.Printf("Failed to publish sample: %v", err)
			}
		}
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.client.Disconnect(quiesce)
	return nil
}
