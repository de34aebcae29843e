// Package ciqueuestore is a Postgres-backed durable mirror of pending task
// names: a supplement to the required flat-file persistence shim (spec
// §4.8/§6), consulted only as a fallback when queue.txt is absent.
package ciqueuestore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMirror mirrors the pending-queue task-name list into a Postgres
// table, grounded on store/postgres.go's pool wiring and upsert shape, but
// narrowed to the 3 methods the persistence shim needs (spec's "narrow
// interface per concern" pattern).
type PostgresMirror struct {
	pool *pgxpool.Pool
}

// NewPostgresMirror connects to Postgres and ensures the backing table
// exists.
func NewPostgresMirror(ctx context.Context, connString string) (*PostgresMirror, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	m := &PostgresMirror{pool: pool}
	if err := m.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return m, nil
}

func (m *PostgresMirror) ensureSchema(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS pending_queue_items (
			task_name TEXT PRIMARY KEY,
			enqueued_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// Close releases the connection pool.
func (m *PostgresMirror) Close() {
	m.pool.Close()
}

// Upsert records that taskName is currently queued.
func (m *PostgresMirror) Upsert(ctx context.Context, taskName string) error {
	_, err := m.pool.Exec(ctx, `
		INSERT INTO pending_queue_items (task_name, enqueued_at)
		VALUES ($1, NOW())
		ON CONFLICT (task_name) DO NOTHING
	`, taskName)
	return err
}

// Remove drops taskName once it has been dispatched or cancelled.
func (m *PostgresMirror) Remove(ctx context.Context, taskName string) error {
	_, err := m.pool.Exec(ctx, `DELETE FROM pending_queue_items WHERE task_name = $1`, taskName)
	return err
}

// ListNames returns every mirrored task name, used as the fallback source
// when the flat-file shim finds no queue.txt.
func (m *PostgresMirror) ListNames(ctx context.Context) ([]string, error) {
	rows, err := m.pool.Query(ctx, `SELECT task_name FROM pending_queue_items`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
