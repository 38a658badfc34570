package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/blinddate/internal/config"
	"github.com/oggyb/blinddate/internal/logger"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)

	err := p.Publish(context.Background(), Event{Type: TypeMatchCreated, MatchID: "m1", UserIDs: []string{"a", "b"}})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "m1", string(msg.Key))
	assert.Equal(t, TypeMatchCreated, string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, []string{"a", "b"}, got.UserIDs)
	assert.False(t, got.OccurredAt.IsZero())

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WrapsError(t *testing.T) {
	p := NewKafkaPublisher(&fakeWriter{err: errors.New("broker down")})

	err := p.Publish(context.Background(), Event{Type: TypeMatchUnlocked, MatchID: "m1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish match.unlocked")
	assert.Contains(t, err.Error(), "broker down")
}

func TestNewPublisher_NopWithoutBrokers(t *testing.T) {
	p := NewPublisher(&config.Config{}, logger.Discard())
	_, ok := p.(Nop)
	assert.True(t, ok)
	assert.NoError(t, p.Publish(context.Background(), Event{}))
}

func TestMemory(t *testing.T) {
	m := &Memory{}
	require.NoError(t, m.Publish(context.Background(), Event{Type: TypeMatchCreated}))
	assert.Len(t, m.Events(), 1)
}
