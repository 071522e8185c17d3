// Package audit implements the optional durable publish audit log: every
// accept/noop/error outcome of a PUT lands in a Postgres table so an
// operator can reconstruct the publish history of any key.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkarrdns/pkarrdns/internal/zkey"
)

const schema = `CREATE TABLE IF NOT EXISTS pkarr_publish_events (
	id UUID PRIMARY KEY,
	public_key TEXT NOT NULL,
	timestamp_micros BIGINT NOT NULL,
	outcome TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Sink writes publish events to Postgres.
type Sink struct {
	db *sql.DB
}

// Open connects to the Postgres at dsn and ensures the events table exists.
func Open(ctx context.Context, dsn string) (*Sink, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return &Sink{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(db *sql.DB) *Sink { return &Sink{db: db} }

// RecordPublish inserts one publish event.
func (s *Sink) RecordPublish(ctx context.Context, key zkey.PublicKey, timestampMicros uint64, outcome string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pkarr_publish_events (id, public_key, timestamp_micros, outcome) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), key.String(), int64(timestampMicros), outcome)
	if err != nil {
		return fmt.Errorf("audit: record publish: %w", err)
	}
	return nil
}

// HistoryEntry is one row of a key's publish history.
type HistoryEntry struct {
	TimestampMicros uint64
	Outcome         string
	CreatedAt       time.Time
}

// History returns the most recent publish events for key, newest first.
func (s *Sink) History(ctx context.Context, key zkey.PublicKey, limit int) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp_micros, outcome, created_at FROM pkarr_publish_events
		 WHERE public_key = $1 ORDER BY created_at DESC LIMIT $2`,
		key.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("audit: history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var ts int64
		if err := rows.Scan(&ts, &e.Outcome, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.TimestampMicros = uint64(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (s *Sink) Close() error { return s.db.Close() }
