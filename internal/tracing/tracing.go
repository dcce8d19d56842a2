package tracing

import (
	"time"

	"github.com/shorelinehq/courier/internal/models"
)

// NewTraceID returns the identifier assigned once per inbound request and
// threaded unchanged through every hop, including delivery retries.
func NewTraceID() string {
	return models.NewID("trc")
}

// NewSubtraceID returns the identifier assigned fresh at each processing
// hop: the router enqueue and every individual delivery attempt.
func NewSubtraceID() string {
	return models.NewID("sub")
}

// Event is the structured record emitted for every state transition.
// Correlating by TraceID and sorting by Timestamp reconstructs the ordered
// timeline of one logical request.
type Event struct {
	Service    string    `json:"service"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	TraceID    string    `json:"trace_id"`
	SubtraceID string    `json:"subtrace_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	RetryCount *int      `json:"retry_count,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// IntPtr is a small helper for the optional RetryCount field; zero is a
// meaningful retry count, so the field cannot rely on omitempty alone.
func IntPtr(n int) *int {
	return &n
}
