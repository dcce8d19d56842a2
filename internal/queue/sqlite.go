package queue

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBroker persists queues in a dedicated SQLite database. Messages
// survive restarts, consumption is lease-based, and rejecting without
// requeue moves the row to the dead-letter queue.
type SQLiteBroker struct {
	db       *sql.DB
	leaseTTL time.Duration
}

func NewSQLiteBroker(path string, leaseTTL time.Duration) (*SQLiteBroker, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if leaseTTL <= 0 {
		leaseTTL = 2 * time.Minute
	}
	return &SQLiteBroker{db: db, leaseTTL: leaseTTL}, nil
}

func (b *SQLiteBroker) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS queue_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			queue TEXT NOT NULL,
			message_id TEXT NOT NULL,
			trace_id TEXT NOT NULL DEFAULT '',
			subtrace_id TEXT NOT NULL DEFAULT '',
			retry_count INTEGER NOT NULL DEFAULT 0,
			body TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'ready',
			delivery_count INTEGER NOT NULL DEFAULT 0,
			enqueued_at DATETIME NOT NULL,
			lease_expires_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_ready ON queue_messages(queue, state, id)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_leased ON queue_messages(state, lease_expires_at) WHERE state = 'leased'`,
	}
	for _, q := range queries {
		if _, err := b.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (b *SQLiteBroker) Close() error {
	return b.db.Close()
}

func (b *SQLiteBroker) Publish(ctx context.Context, queue string, h Headers, body []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO queue_messages (queue, message_id, trace_id, subtrace_id, retry_count, body, state, enqueued_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'ready', ?)`,
		queue, h.MessageID, h.TraceID, h.SubtraceID, h.RetryCount, string(body), time.Now().UTC(),
	)
	return err
}

func (b *SQLiteBroker) Consume(ctx context.Context, queue string) (*Delivery, error) {
	now := time.Now().UTC()

	// Expired leases go back to ready before anything is handed out, which
	// is what gives consumers at-least-once redelivery after a crash.
	if _, err := b.db.ExecContext(ctx,
		`UPDATE queue_messages SET state = 'ready', lease_expires_at = NULL
		 WHERE state = 'leased' AND lease_expires_at <= ?`, now); err != nil {
		return nil, err
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var d Delivery
	var body string
	err = tx.QueryRowContext(ctx,
		`SELECT id, queue, message_id, trace_id, subtrace_id, retry_count, body, delivery_count, enqueued_at
		 FROM queue_messages WHERE queue = ? AND state = 'ready' ORDER BY id ASC LIMIT 1`, queue,
	).Scan(&d.ID, &d.Queue, &d.Headers.MessageID, &d.Headers.TraceID, &d.Headers.SubtraceID,
		&d.Headers.RetryCount, &body, &d.DeliveryCount, &d.EnqueuedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	d.Body = []byte(body)
	d.DeliveryCount++

	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_messages SET state = 'leased', delivery_count = ?, lease_expires_at = ? WHERE id = ?`,
		d.DeliveryCount, now.Add(b.leaseTTL), d.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (b *SQLiteBroker) Ack(ctx context.Context, id int64) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM queue_messages WHERE id = ?`, id)
	return err
}

func (b *SQLiteBroker) Reject(ctx context.Context, id int64, requeue bool) error {
	if requeue {
		_, err := b.db.ExecContext(ctx,
			`UPDATE queue_messages SET state = 'ready', lease_expires_at = NULL WHERE id = ?`, id)
		return err
	}
	_, err := b.db.ExecContext(ctx,
		`UPDATE queue_messages SET queue = ?, state = 'ready', lease_expires_at = NULL WHERE id = ?`,
		DeadLetterQueue, id)
	return err
}

func (b *SQLiteBroker) Depth(ctx context.Context, queue string) (int64, error) {
	var n int64
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_messages WHERE queue = ?`, queue).Scan(&n)
	return n, err
}
