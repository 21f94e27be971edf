package persist

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// PostgresLog persists observations to a Postgres table, for deployments
// that want a durable message log across manager restarts (opt-in: the
// caller builds it with NewPostgresLog and passes it to manager.New; no
// environment variable is read; spec.md §1 leaves notebook-level
// persistence out of scope, but an audit log of wire traffic is a
// different concern).
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog connects to dsn and ensures the backing table exists.
func NewPostgresLog(ctx context.Context, dsn string) (*PostgresLog, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.WithMessage(err, "persist: connecting to postgres")
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, errors.WithMessage(err, "persist: creating message_log table")
	}
	return &PostgresLog{pool: pool}, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS message_log (
	id BIGSERIAL PRIMARY KEY,
	runtime_id TEXT NOT NULL,
	channel TEXT NOT NULL,
	direction TEXT NOT NULL,
	msg_type TEXT NOT NULL,
	header JSONB NOT NULL,
	content JSONB,
	observed_at TIMESTAMPTZ NOT NULL
)`

const insertSQL = `
INSERT INTO message_log (runtime_id, channel, direction, msg_type, header, content, observed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Append inserts one row for rec.
func (l *PostgresLog) Append(ctx context.Context, rec Record) error {
	headerJSON, err := json.Marshal(rec.Message.Header)
	if err != nil {
		return errors.WithMessage(err, "persist: marshaling header")
	}
	contentJSON, err := json.Marshal(rec.Message.Content)
	if err != nil {
		return errors.WithMessage(err, "persist: marshaling content")
	}
	_, err = l.pool.Exec(ctx, insertSQL,
		rec.RuntimeID, rec.Channel, string(rec.Direction), rec.Message.Header.MsgType,
		headerJSON, contentJSON, rec.At)
	if err != nil {
		return errors.WithMessage(err, "persist: inserting message_log row")
	}
	return nil
}

// Close releases the underlying connection pool.
func (l *PostgresLog) Close() { l.pool.Close() }
