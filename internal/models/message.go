package models

import "time"

// Channel identifies the delivery medium for a message. It is fixed at
// routing time and determines both the work queue and the delivery action.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return true
	}
	return false
}

// Channels lists every supported channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp}
}

type MessageStatus string

const (
	StatusQueued     MessageStatus = "queued"
	StatusProcessing MessageStatus = "processing"
	StatusDelivered  MessageStatus = "delivered"
	StatusFailed     MessageStatus = "failed"
)

// Message is the unit of work that travels through the pipeline. The
// serialized form is the queue envelope: everything a consumer needs for
// the next hop rides inside the body, nothing is shared in memory across
// hops.
type Message struct {
	MessageID  string            `json:"message_id"`
	TraceID    string            `json:"trace_id"`
	SubtraceID string            `json:"subtrace_id"`
	Channel    Channel           `json:"channel"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject,omitempty"`
	Body       string            `json:"body"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	RetryCount int               `json:"retry_count"`
	MaxRetries int               `json:"max_retries"`
	Status     MessageStatus     `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
}
