package queue

import (
	"context"
	"time"

	"github.com/shorelinehq/courier/internal/models"
)

// Queue names are part of the wire contract.
const (
	EmailQueue      = "email_queue"
	SMSQueue        = "sms_queue"
	WhatsAppQueue   = "whatsapp_queue"
	DeadLetterQueue = "dead_letter_queue"
)

var channelQueues = map[models.Channel]string{
	models.ChannelEmail:    EmailQueue,
	models.ChannelSMS:      SMSQueue,
	models.ChannelWhatsApp: WhatsAppQueue,
}

// ForChannel returns the work queue for a channel. The mapping is static;
// adding a channel means one entry here plus one delivery action.
func ForChannel(c models.Channel) (string, bool) {
	q, ok := channelQueues[c]
	return q, ok
}

// Headers ride alongside the serialized body so operators can inspect
// retry counts and correlate traces without deserializing payloads.
type Headers struct {
	MessageID  string
	TraceID    string
	SubtraceID string
	RetryCount int
}

// Delivery is one leased queue message. The lease holder must settle it
// with Ack or Reject; an expired lease returns it to the queue.
type Delivery struct {
	ID            int64
	Queue         string
	Headers       Headers
	Body          []byte
	DeliveryCount int
	EnqueuedAt    time.Time
}

// Broker is the durable work-queue contract: at-least-once delivery,
// manual acknowledgment, redelivery on lease expiry, and a dead-letter
// route for messages rejected without requeue.
type Broker interface {
	Publish(ctx context.Context, queue string, h Headers, body []byte) error
	// Consume leases at most one ready message from the queue. It returns
	// (nil, nil) when the queue is empty, enforcing prefetch=1 per caller.
	Consume(ctx context.Context, queue string) (*Delivery, error)
	Ack(ctx context.Context, id int64) error
	Reject(ctx context.Context, id int64, requeue bool) error
	Depth(ctx context.Context, queue string) (int64, error)
	Migrate(ctx context.Context) error
	Close() error
}
