// Package journal records every mount round trip in PostgreSQL so operators can
// reconstruct what was sent to the device and what it answered.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Entry is one recorded round trip.
type Entry struct {
	ID         int64         `json:"id"`
	Mount      string        `json:"mount"`
	Command    string        `json:"command"`
	RequestURL string        `json:"request_url"`
	Payload    string        `json:"payload,omitempty"`
	Code       string        `json:"code"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Recorder stores entries. The coordinator works against this interface so it
// can run without a database.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS starbook_journal (
	id          BIGSERIAL PRIMARY KEY,
	mount       TEXT        NOT NULL,
	command     TEXT        NOT NULL,
	request_url TEXT        NOT NULL,
	payload     TEXT        NOT NULL DEFAULT '',
	code        TEXT        NOT NULL,
	error       TEXT        NOT NULL DEFAULT '',
	duration_us BIGINT      NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS starbook_journal_created_at_idx ON starbook_journal (created_at DESC);
`

// Journal is the PostgreSQL Recorder.
type Journal struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Open connects to databaseURL and returns a journal. Call EnsureSchema before
// the first Record.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(pool, logger), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{
		pool:   pool,
		logger: logger.With(zap.String("component", "journal")),
	}
}

// EnsureSchema creates the journal table if it does not exist.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	j.logger.Info("Journal schema ready")
	return nil
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.pool.Ping(ctx)
}

// Close releases the pool.
func (j *Journal) Close() {
	j.pool.Close()
}

// Record inserts entry. CreatedAt defaults to now.
func (j *Journal) Record(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO starbook_journal (mount, command, request_url, payload, code, error, duration_us, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := j.pool.Exec(ctx, query,
		entry.Mount,
		entry.Command,
		entry.RequestURL,
		entry.Payload,
		entry.Code,
		entry.Error,
		entry.Duration.Microseconds(),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, mount, command, request_url, payload, code, error, duration_us, created_at
		FROM starbook_journal
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	rows, err := j.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}

	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal rows: %w", err)
	}
	return entries, nil
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var e Entry
	var durationUS int64
	err := row.Scan(
		&e.ID,
		&e.Mount,
		&e.Command,
		&e.RequestURL,
		&e.Payload,
		&e.Code,
		&e.Error,
		&durationUS,
		&e.CreatedAt,
	)
	e.Duration = time.Duration(durationUS) * time.Microsecond
	return e, err
}
