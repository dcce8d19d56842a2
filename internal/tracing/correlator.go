package tracing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// LogTopic is the event-log topic every courier service publishes to.
const LogTopic = "communication-logs"

// EventPublisher is the append-only event-log capability the correlator
// needs. Consumption, indexing and search live elsewhere.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Correlator stamps and publishes trace events. Publish failures are
// reported locally and never surfaced to the business operation that
// triggered the event.
type Correlator struct {
	service string
	pub     EventPublisher
	log     zerolog.Logger
}

func NewCorrelator(service string, pub EventPublisher, log zerolog.Logger) *Correlator {
	return &Correlator{
		service: service,
		pub:     pub,
		log:     log,
	}
}

// Emit fills in the producer name and timestamp, mirrors the event to the
// local structured log, and publishes it keyed by trace id.
func (c *Correlator) Emit(ctx context.Context, ev Event) {
	ev.Service = c.service
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	c.logLocal(ev)

	payload, err := json.Marshal(ev)
	if err != nil {
		c.log.Error().Err(err).Str("trace_id", ev.TraceID).Msg("failed to encode trace event")
		return
	}

	if err := c.pub.Publish(ctx, LogTopic, ev.TraceID, payload); err != nil {
		c.log.Error().Err(err).Str("trace_id", ev.TraceID).Msg("failed to publish trace event")
	}
}

func (c *Correlator) logLocal(ev Event) {
	var e *zerolog.Event
	switch ev.Level {
	case "error":
		e = c.log.Error()
	case "warn":
		e = c.log.Warn()
	default:
		e = c.log.Info()
	}

	e = e.Str("trace_id", ev.TraceID)
	if ev.SubtraceID != "" {
		e = e.Str("subtrace_id", ev.SubtraceID)
	}
	if ev.MessageID != "" {
		e = e.Str("message_id", ev.MessageID)
	}
	if ev.Channel != "" {
		e = e.Str("channel", ev.Channel)
	}
	if ev.RetryCount != nil {
		e = e.Int("retry_count", *ev.RetryCount)
	}
	if ev.DurationMs > 0 {
		e = e.Int64("duration_ms", ev.DurationMs)
	}
	if ev.Error != "" {
		e = e.Str("error", ev.Error)
	}
	e.Msg(ev.Message)
}
