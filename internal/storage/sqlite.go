package storage

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shorelinehq/courier/internal/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS delivery_records (
			message_id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			recipient TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			delivered_at DATETIME,
			failed_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_trace ON delivery_records(trace_id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_channel ON delivery_records(channel)`,
		`CREATE INDEX IF NOT EXISTS idx_records_status ON delivery_records(status)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertDeliveryRecord converges repeated writes for one message id onto a
// single row, so broker-level redelivery never duplicates records.
func (s *SQLiteStore) UpsertDeliveryRecord(ctx context.Context, rec *models.DeliveryRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_records
			(message_id, trace_id, channel, recipient, subject, body, status, retry_count, error_message, delivered_at, failed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(message_id) DO UPDATE SET
			status = excluded.status,
			retry_count = excluded.retry_count,
			error_message = excluded.error_message,
			delivered_at = excluded.delivered_at,
			failed_at = excluded.failed_at,
			updated_at = excluded.updated_at`,
		rec.MessageID, rec.TraceID, rec.Channel, rec.Recipient, rec.Subject, rec.Body,
		rec.Status, rec.RetryCount, rec.ErrorMessage, rec.DeliveredAt, rec.FailedAt,
		rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

const recordColumns = `message_id, trace_id, channel, recipient, subject, body, status, retry_count, error_message, delivered_at, failed_at, created_at, updated_at`

func scanRecord(row interface{ Scan(...interface{}) error }) (*models.DeliveryRecord, error) {
	var rec models.DeliveryRecord
	err := row.Scan(&rec.MessageID, &rec.TraceID, &rec.Channel, &rec.Recipient, &rec.Subject,
		&rec.Body, &rec.Status, &rec.RetryCount, &rec.ErrorMessage, &rec.DeliveredAt,
		&rec.FailedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) GetDeliveryRecord(ctx context.Context, messageID string) (*models.DeliveryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM delivery_records WHERE message_id = ?`, messageID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) ListDeliveryRecords(ctx context.Context, f RecordFilter) ([]models.DeliveryRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM delivery_records WHERE 1=1`
	var args []interface{}
	if f.TraceID != "" {
		query += ` AND trace_id = ?`
		args = append(args, f.TraceID)
	}
	if f.Channel != "" {
		query += ` AND channel = ?`
		args = append(args, f.Channel)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC`
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.DeliveryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByChannel: map[string]int64{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM delivery_records GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.Total += n
		switch models.MessageStatus(status) {
		case models.StatusQueued:
			stats.Queued = n
		case models.StatusProcessing:
			stats.Processing = n
		case models.StatusDelivered:
			stats.Delivered = n
		case models.StatusFailed:
			stats.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chRows, err := s.db.QueryContext(ctx,
		`SELECT channel, COUNT(*) FROM delivery_records GROUP BY channel`)
	if err != nil {
		return nil, err
	}
	defer chRows.Close()
	for chRows.Next() {
		var channel string
		var n int64
		if err := chRows.Scan(&channel, &n); err != nil {
			return nil, err
		}
		stats.ByChannel[channel] = n
	}
	return stats, chRows.Err()
}
