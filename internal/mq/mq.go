package mq

import (
	"context"
	"fmt"
	"strings"

	"github.com/userhub/apiserver/config"
)

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// AttrContentType is the attribute key carrying the payload media type.
const AttrContentType = "content_type"

// AttrOrderingKey groups messages that must be delivered in publish order.
// Backends without per-key ordering treat it as a plain attribute.
const AttrOrderingKey = "ordering_key"

// MQ wraps a backend with a stable API.
type MQ struct {
	backend Backend
}

// New constructs an MQ wrapper for the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Open builds the backend selected by cfg.Events.Backend. It returns
// (nil, nil) when events are disabled.
func Open(ctx context.Context, cfg config.Config) (*MQ, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Events.Backend)) {
	case "", config.EventsBackendNone:
		return nil, nil
	case config.EventsBackendRabbitMQ:
		client, err := NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("mq.Open: rabbitmq: %w", err)
		}
		return New(client), nil
	case config.EventsBackendPubSub:
		client, err := NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("mq.Open: pubsub: %w", err)
		}
		return New(client), nil
	default:
		return nil, fmt.Errorf("mq.Open: unsupported events backend %q", cfg.Events.Backend)
	}
}

// Publish sends a message to the named channel.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe consumes messages from the named channel.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
