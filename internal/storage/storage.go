package storage

import (
	"context"

	"github.com/shorelinehq/courier/internal/models"
)

// RecordFilter narrows ListDeliveryRecords. Zero values match everything.
type RecordFilter struct {
	TraceID string
	Channel models.Channel
	Status  models.MessageStatus
	Limit   int
}

type Stats struct {
	Total      int64            `json:"total"`
	Queued     int64            `json:"queued"`
	Processing int64            `json:"processing"`
	Delivered  int64            `json:"delivered"`
	Failed     int64            `json:"failed"`
	ByChannel  map[string]int64 `json:"by_channel"`
}

// Store persists message lifecycle records, keyed uniquely by message id.
type Store interface {
	UpsertDeliveryRecord(ctx context.Context, rec *models.DeliveryRecord) error
	GetDeliveryRecord(ctx context.Context, messageID string) (*models.DeliveryRecord, error)
	ListDeliveryRecords(ctx context.Context, f RecordFilter) ([]models.DeliveryRecord, error)
	GetStats(ctx context.Context) (*Stats, error)
	Migrate(ctx context.Context) error
	Close() error
}
