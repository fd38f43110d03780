// Package events publishes and consumes user lifecycle notifications.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/userhub/apiserver/internal/mq"
	"github.com/userhub/apiserver/types"
)

type Type string

const (
	UserCreated Type = "user.created"
	UserUpdated Type = "user.updated"
	UserDeleted Type = "user.deleted"
)

// Attribute keys attached to every published message.
const (
	AttrEventType = "event_type"
	AttrUserID    = "user_id"
)

// Event describes one committed change to a user record. User is nil for
// deletions.
type Event struct {
	ID         uuid.UUID   `json:"id"`
	Type       Type        `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
	UserID     uuid.UUID   `json:"user_id"`
	User       *types.User `json:"user,omitempty"`
}

// NewEvent builds an event for user. The snapshot is dropped for deletions.
func NewEvent(t Type, user types.User, at time.Time) Event {
	evt := Event{
		ID:         uuid.New(),
		Type:       t,
		OccurredAt: at.UTC(),
		UserID:     user.ID,
	}
	if t != UserDeleted {
		snapshot := user
		evt.User = &snapshot
	}
	return evt
}

// Publisher serializes events onto a broker channel.
type Publisher struct {
	mq      *mq.MQ
	channel string
}

func NewPublisher(m *mq.MQ, channel string) *Publisher {
	return &Publisher{mq: m, channel: channel}
}

// Publish sends evt and returns the broker message id.
func (p *Publisher) Publish(ctx context.Context, evt Event) (string, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	attrs := map[string]string{
		mq.AttrContentType: "application/json",
		AttrEventType:      string(evt.Type),
		AttrUserID:         evt.UserID.String(),
		mq.AttrOrderingKey: evt.UserID.String(),
	}
	id, err := p.mq.Publish(ctx, p.channel, data, attrs)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return id, nil
}

// ErrMalformedEvent is returned for payloads that do not decode to an Event.
var ErrMalformedEvent = errors.New("malformed event")

// Decode parses a broker message into an Event.
func Decode(msg mq.Message) (Event, error) {
	var evt Event
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.Type == "" || evt.UserID == uuid.Nil {
		return Event{}, fmt.Errorf("%w: missing type or user id", ErrMalformedEvent)
	}
	return evt, nil
}

// Consume subscribes to channel and hands every decoded event to fn.
// Malformed payloads are acknowledged and skipped so they are not
// redelivered forever; onMalformed, when set, is told about each one.
func Consume(ctx context.Context, m *mq.MQ, channel string, fn func(context.Context, Event) error, onMalformed func(mq.Message, error)) error {
	return m.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
		evt, err := Decode(msg)
		if err != nil {
			if onMalformed != nil {
				onMalformed(msg, err)
			}
			return nil
		}
		return fn(ctx, evt)
	})
}
