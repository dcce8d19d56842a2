package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/shorelinehq/courier/internal/models"
	"github.com/shorelinehq/courier/internal/queue"
	"github.com/shorelinehq/courier/internal/storage"
	"github.com/shorelinehq/courier/internal/tracing"
)

// Worker executes delivery attempts for one leased queue message at a
// time. Retries happen in-process with a backoff wait between attempts;
// the broker is only involved again at final settlement (ack, or reject
// without requeue into the dead-letter queue).
type Worker struct {
	broker   queue.Broker
	store    storage.Store
	senders  Registry
	tracer   *tracing.Correlator
	schedule []time.Duration
	log      zerolog.Logger
}

func NewWorker(broker queue.Broker, store storage.Store, senders Registry, tracer *tracing.Correlator, schedule []time.Duration, log zerolog.Logger) *Worker {
	if len(schedule) == 0 {
		schedule = DefaultBackoffSchedule
	}
	return &Worker{
		broker:   broker,
		store:    store,
		senders:  senders,
		tracer:   tracer,
		schedule: schedule,
		log:      log,
	}
}

// Process settles one leased delivery. It always acks or rejects before
// returning, except when the context is cancelled mid-backoff, in which
// case the message is requeued for redelivery.
func (w *Worker) Process(ctx context.Context, d *queue.Delivery) {
	var msg models.Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		w.rejectPermanent(ctx, d, "malformed payload: "+err.Error())
		return
	}

	sender, ok := w.senders[msg.Channel]
	if !ok {
		w.rejectPermanent(ctx, d, "no delivery action for channel "+string(msg.Channel))
		return
	}

	msg.Status = models.StatusProcessing
	w.upsert(ctx, &msg, "", nil, nil)

	for {
		msg.SubtraceID = tracing.NewSubtraceID()

		start := time.Now()
		res, err := sender.Deliver(ctx, &msg)
		if err == nil {
			w.settleDelivered(ctx, d, &msg, res, time.Since(start))
			return
		}

		w.tracer.Emit(ctx, tracing.Event{
			Level:      "error",
			Message:    "Delivery attempt failed",
			TraceID:    msg.TraceID,
			SubtraceID: msg.SubtraceID,
			MessageID:  msg.MessageID,
			Channel:    string(msg.Channel),
			RetryCount: tracing.IntPtr(msg.RetryCount),
			Error:      err.Error(),
		})

		if msg.RetryCount >= msg.MaxRetries {
			w.settleDeadLettered(ctx, d, &msg, err)
			return
		}

		wait := BackoffDelay(msg.RetryCount, w.schedule)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			// Hard cancellation: hand the message back for redelivery
			// rather than losing the lease to expiry. Settled on a fresh
			// context because the worker's own one is already dead.
			if err := w.broker.Reject(context.Background(), d.ID, true); err != nil {
				w.log.Error().Err(err).Str("message_id", msg.MessageID).Msg("failed to requeue on shutdown")
			}
			return
		}
		msg.RetryCount++
	}
}

func (w *Worker) settleDelivered(ctx context.Context, d *queue.Delivery, msg *models.Message, res *Result, took time.Duration) {
	if err := w.broker.Ack(ctx, d.ID); err != nil {
		w.log.Error().Err(err).Str("message_id", msg.MessageID).Msg("failed to ack delivered message")
	}

	msg.Status = models.StatusDelivered
	deliveredAt := res.DeliveredAt
	w.upsert(ctx, msg, "", &deliveredAt, nil)

	w.tracer.Emit(ctx, tracing.Event{
		Level:      "info",
		Message:    "Message delivered",
		TraceID:    msg.TraceID,
		SubtraceID: msg.SubtraceID,
		MessageID:  msg.MessageID,
		Channel:    string(msg.Channel),
		RetryCount: tracing.IntPtr(msg.RetryCount),
		DurationMs: took.Milliseconds(),
	})
}

func (w *Worker) settleDeadLettered(ctx context.Context, d *queue.Delivery, msg *models.Message, lastErr error) {
	msg.Status = models.StatusFailed
	failedAt := time.Now().UTC()
	w.upsert(ctx, msg, lastErr.Error(), nil, &failedAt)

	w.tracer.Emit(ctx, tracing.Event{
		Level:      "warn",
		Message:    "Message moved to dead-letter queue",
		TraceID:    msg.TraceID,
		SubtraceID: msg.SubtraceID,
		MessageID:  msg.MessageID,
		Channel:    string(msg.Channel),
		RetryCount: tracing.IntPtr(msg.RetryCount),
		Error:      lastErr.Error(),
	})

	if err := w.broker.Reject(ctx, d.ID, false); err != nil {
		w.log.Error().Err(err).Str("message_id", msg.MessageID).Msg("failed to dead-letter message")
	}
}

// rejectPermanent handles payloads no delivery action can ever retry:
// unparseable bodies and unknown channels go straight to the dead-letter
// queue.
func (w *Worker) rejectPermanent(ctx context.Context, d *queue.Delivery, reason string) {
	w.tracer.Emit(ctx, tracing.Event{
		Level:     "error",
		Message:   "Message rejected as undeliverable",
		TraceID:   d.Headers.TraceID,
		MessageID: d.Headers.MessageID,
		Error:     reason,
	})

	if d.Headers.MessageID != "" {
		failedAt := time.Now().UTC()
		now := failedAt
		rec := &models.DeliveryRecord{
			MessageID:    d.Headers.MessageID,
			TraceID:      d.Headers.TraceID,
			Status:       models.StatusFailed,
			RetryCount:   d.Headers.RetryCount,
			ErrorMessage: reason,
			FailedAt:     &failedAt,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := w.store.UpsertDeliveryRecord(ctx, rec); err != nil {
			w.log.Error().Err(err).Str("message_id", d.Headers.MessageID).Msg("failed to persist undeliverable record")
		}
	}

	if err := w.broker.Reject(ctx, d.ID, false); err != nil {
		w.log.Error().Err(err).Int64("delivery_id", d.ID).Msg("failed to dead-letter undeliverable message")
	}
}

func (w *Worker) upsert(ctx context.Context, msg *models.Message, errMsg string, deliveredAt, failedAt *time.Time) {
	now := time.Now().UTC()
	rec := models.RecordFromMessage(msg, now)
	rec.ErrorMessage = errMsg
	rec.DeliveredAt = deliveredAt
	rec.FailedAt = failedAt
	if err := w.store.UpsertDeliveryRecord(ctx, rec); err != nil {
		w.log.Error().Err(err).Str("message_id", msg.MessageID).Msg("failed to upsert delivery record")
	}
}
