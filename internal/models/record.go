package models

import "time"

// DeliveryRecord is the durable projection of a message's lifecycle,
// upserted by message id so replays converge to one row.
type DeliveryRecord struct {
	MessageID    string        `json:"message_id"`
	TraceID      string        `json:"trace_id"`
	Channel      Channel       `json:"channel"`
	Recipient    string        `json:"recipient"`
	Subject      string        `json:"subject,omitempty"`
	Body         string        `json:"body"`
	Status       MessageStatus `json:"status"`
	RetryCount   int           `json:"retry_count"`
	ErrorMessage string        `json:"error_message,omitempty"`
	DeliveredAt  *time.Time    `json:"delivered_at,omitempty"`
	FailedAt     *time.Time    `json:"failed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// RecordFromMessage projects the current state of a message into its
// delivery record.
func RecordFromMessage(m *Message, now time.Time) *DeliveryRecord {
	return &DeliveryRecord{
		MessageID:  m.MessageID,
		TraceID:    m.TraceID,
		Channel:    m.Channel,
		Recipient:  m.Recipient,
		Subject:    m.Subject,
		Body:       m.Body,
		Status:     m.Status,
		RetryCount: m.RetryCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
