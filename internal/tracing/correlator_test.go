package tracing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	topics []string
	keys   []string
	values [][]byte
	err    error
}

func (p *capturePublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	return nil
}

func TestNewTraceID_PrefixedAndUnique(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	assert.True(t, strings.HasPrefix(a, "trc_"))
	assert.NotEqual(t, a, b)
}

func TestNewSubtraceID_PrefixedAndUnique(t *testing.T) {
	a := NewSubtraceID()
	b := NewSubtraceID()
	assert.True(t, strings.HasPrefix(a, "sub_"))
	assert.NotEqual(t, a, b)
}

func TestCorrelator_EmitPublishesKeyedByTrace(t *testing.T) {
	pub := &capturePublisher{}
	c := NewCorrelator("courier-test", pub, zerolog.Nop())

	c.Emit(context.Background(), Event{
		Level:      "info",
		Message:    "Message routed to queue",
		TraceID:    "trc_abc",
		SubtraceID: "sub_def",
		MessageID:  "msg_123",
		Channel:    "email",
	})

	require.Len(t, pub.values, 1)
	assert.Equal(t, LogTopic, pub.topics[0])
	assert.Equal(t, "trc_abc", pub.keys[0])

	var ev Event
	require.NoError(t, json.Unmarshal(pub.values[0], &ev))
	assert.Equal(t, "courier-test", ev.Service)
	assert.Equal(t, "Message routed to queue", ev.Message)
	assert.Equal(t, "trc_abc", ev.TraceID)
	assert.Equal(t, "sub_def", ev.SubtraceID)
	assert.False(t, ev.Timestamp.IsZero(), "correlator must stamp the event")
}

func TestCorrelator_EmitRetryCountZeroIsSerialized(t *testing.T) {
	pub := &capturePublisher{}
	c := NewCorrelator("courier-test", pub, zerolog.Nop())

	c.Emit(context.Background(), Event{
		Level:      "error",
		Message:    "Delivery attempt failed",
		TraceID:    "trc_abc",
		RetryCount: IntPtr(0),
	})

	require.Len(t, pub.values, 1)
	assert.Contains(t, string(pub.values[0]), `"retry_count":0`)
}

func TestCorrelator_PublishFailureDoesNotPropagate(t *testing.T) {
	pub := &capturePublisher{err: errors.New("stream unavailable")}
	c := NewCorrelator("courier-test", pub, zerolog.Nop())

	assert.NotPanics(t, func() {
		c.Emit(context.Background(), Event{
			Level:   "info",
			Message: "Message delivered",
			TraceID: "trc_abc",
		})
	})
}
