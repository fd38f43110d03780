package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/userhub/apiserver/internal/mq"
	"github.com/userhub/apiserver/types"
)

type published struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type fakeBackend struct {
	sent    []published
	inbox   []mq.Message
	handled []error
	fail    error
}

func (f *fakeBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.sent = append(f.sent, published{channel: channel, data: data, attrs: attrs})
	return "msg-1", nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, _ string, handler mq.Handler) error {
	for _, msg := range f.inbox {
		f.handled = append(f.handled, handler(ctx, msg))
	}
	return nil
}

func (f *fakeBackend) Close() error { return nil }

func testUser() types.User {
	now := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	return types.User{
		ID:        uuid.New(),
		Username:  "jdoe",
		Email:     "jdoe@example.com",
		FirstName: "John",
		LastName:  "Doe",
		Role:      types.RoleAdmin,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestNewEvent(t *testing.T) {
	user := testUser()
	at := time.Date(2026, 5, 6, 9, 0, 0, 0, time.FixedZone("X", 3600))

	created := NewEvent(UserCreated, user, at)
	assert.Equal(t, UserCreated, created.Type)
	assert.Equal(t, user.ID, created.UserID)
	assert.Equal(t, time.UTC, created.OccurredAt.Location())
	require.NotNil(t, created.User)
	assert.Equal(t, user, *created.User)

	deleted := NewEvent(UserDeleted, user, at)
	assert.Nil(t, deleted.User)
	assert.Equal(t, user.ID, deleted.UserID)
}

func TestPublisherPublish(t *testing.T) {
	backend := &fakeBackend{}
	p := NewPublisher(mq.New(backend), "user-events")
	evt := NewEvent(UserUpdated, testUser(), time.Now())

	id, err := p.Publish(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	require.Len(t, backend.sent, 1)
	sent := backend.sent[0]
	assert.Equal(t, "user-events", sent.channel)
	assert.Equal(t, "application/json", sent.attrs[mq.AttrContentType])
	assert.Equal(t, "user.updated", sent.attrs[AttrEventType])
	assert.Equal(t, evt.UserID.String(), sent.attrs[AttrUserID])
	assert.Equal(t, evt.UserID.String(), sent.attrs[mq.AttrOrderingKey], "events for one user share an ordering key")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(sent.data, &decoded))
	assert.Equal(t, "user.updated", decoded["type"])
	assert.Contains(t, decoded, "user")
}

func TestPublisherPublishError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewPublisher(mq.New(&fakeBackend{fail: boom}), "user-events")

	_, err := p.Publish(context.Background(), NewEvent(UserDeleted, testUser(), time.Now()))
	require.ErrorIs(t, err, boom)
}

func TestDecode(t *testing.T) {
	evt := NewEvent(UserCreated, testUser(), time.Now())
	data, err := json.Marshal(evt)
	require.NoError(t, err)

	got, err := Decode(mq.Message{Data: data})
	require.NoError(t, err)
	assert.Equal(t, evt.ID, got.ID)
	assert.Equal(t, evt.UserID, got.UserID)

	_, err = Decode(mq.Message{Data: []byte("not json")})
	require.ErrorIs(t, err, ErrMalformedEvent)

	_, err = Decode(mq.Message{Data: []byte(`{"type":"user.created"}`)})
	require.ErrorIs(t, err, ErrMalformedEvent)
}

func TestConsume(t *testing.T) {
	evt := NewEvent(UserDeleted, testUser(), time.Now())
	data, err := json.Marshal(evt)
	require.NoError(t, err)

	backend := &fakeBackend{inbox: []mq.Message{
		{ID: "bad", Data: []byte("{")},
		{ID: "good", Data: data},
	}}

	var got []Event
	var malformed []string
	err = Consume(context.Background(), mq.New(backend), "user-events",
		func(_ context.Context, e Event) error {
			got = append(got, e)
			return nil
		},
		func(msg mq.Message, _ error) {
			malformed = append(malformed, msg.ID)
		},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"bad"}, malformed)
	require.Len(t, got, 1)
	assert.Equal(t, UserDeleted, got[0].Type)
	assert.Equal(t, []error{nil, nil}, backend.handled)
}
