package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shorelinehq/courier/internal/dedup"
	"github.com/shorelinehq/courier/internal/models"
	"github.com/shorelinehq/courier/internal/queue"
	"github.com/shorelinehq/courier/internal/storage"
	"github.com/shorelinehq/courier/internal/tracing"
)

// Input is the normalized inbound request the router accepts.
type Input struct {
	Channel   string            `json:"channel"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject,omitempty"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Outcome is the synchronous routing result. A duplicate is a defined
// success-path outcome, not an error: it carries the fresh trace id but no
// message id and nothing was enqueued.
type Outcome struct {
	MessageID string
	TraceID   string
	Duplicate bool
}

// Router validates inbound requests, reserves their fingerprint against
// the dedup gate, and submits accepted messages to the channel queue.
type Router struct {
	gate       *dedup.Gate
	broker     queue.Broker
	store      storage.Store
	tracer     *tracing.Correlator
	maxRetries int
	log        zerolog.Logger
}

func New(gate *dedup.Gate, broker queue.Broker, store storage.Store, tracer *tracing.Correlator, maxRetries int, log zerolog.Logger) *Router {
	return &Router{
		gate:       gate,
		broker:     broker,
		store:      store,
		tracer:     tracer,
		maxRetries: maxRetries,
		log:        log,
	}
}

// Route performs one synchronous routing attempt. Failures are either a
// *ValidationError (bad input, no side effects) or a *RoutingError (broker
// submission failed, nothing enqueued).
func (r *Router) Route(ctx context.Context, in Input) (*Outcome, error) {
	channel, err := validate(in)
	if err != nil {
		return nil, err
	}

	traceID := tracing.NewTraceID()

	fingerprint := dedup.Fingerprint(channel, in.Recipient, in.Body)
	alreadyReserved, err := r.gate.Reserve(ctx, fingerprint)
	if err != nil {
		return nil, &RoutingError{Err: err}
	}
	if alreadyReserved {
		r.tracer.Emit(ctx, tracing.Event{
			Level:   "info",
			Message: "Duplicate message detected",
			TraceID: traceID,
			Channel: string(channel),
		})
		return &Outcome{TraceID: traceID, Duplicate: true}, nil
	}

	now := time.Now().UTC()
	msg := &models.Message{
		MessageID:  models.NewID("msg"),
		TraceID:    traceID,
		SubtraceID: tracing.NewSubtraceID(),
		Channel:    channel,
		Recipient:  in.Recipient,
		Subject:    in.Subject,
		Body:       in.Body,
		Metadata:   in.Metadata,
		RetryCount: 0,
		MaxRetries: r.maxRetries,
		Status:     models.StatusQueued,
		Timestamp:  now,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, &RoutingError{Err: fmt.Errorf("serialize message: %w", err)}
	}

	queueName, ok := queue.ForChannel(channel)
	if !ok {
		return nil, &RoutingError{Err: fmt.Errorf("no queue mapped for channel %q", channel)}
	}

	headers := queue.Headers{
		MessageID:  msg.MessageID,
		TraceID:    msg.TraceID,
		SubtraceID: msg.SubtraceID,
		RetryCount: msg.RetryCount,
	}
	if err := r.broker.Publish(ctx, queueName, headers, body); err != nil {
		r.tracer.Emit(ctx, tracing.Event{
			Level:      "error",
			Message:    "Failed to route message to queue",
			TraceID:    msg.TraceID,
			SubtraceID: msg.SubtraceID,
			MessageID:  msg.MessageID,
			Channel:    string(channel),
			Error:      err.Error(),
		})
		return nil, &RoutingError{Err: err}
	}

	// The message is already enqueued; a record write failure must not
	// fail the routing call. The executor upserts again on every attempt.
	if err := r.store.UpsertDeliveryRecord(ctx, models.RecordFromMessage(msg, now)); err != nil {
		r.log.Error().Err(err).Str("message_id", msg.MessageID).Msg("failed to persist queued record")
	}

	r.tracer.Emit(ctx, tracing.Event{
		Level:      "info",
		Message:    "Message routed to queue",
		TraceID:    msg.TraceID,
		SubtraceID: msg.SubtraceID,
		MessageID:  msg.MessageID,
		Channel:    string(channel),
	})

	return &Outcome{MessageID: msg.MessageID, TraceID: msg.TraceID}, nil
}
