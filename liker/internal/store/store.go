// Package store is the SQLite key-value store holding settings and daily
// stats. Values are JSON documents keyed by the same names the engine
// messages use.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/feedpilot/dbopen"
)

// Schema creates the kv table. updated_at is unix nanoseconds and feeds the
// change watcher.
const Schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_kv_updated ON kv(updated_at);
`

// KV is the engine-facing store contract.
type KV interface {
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, values map[string]any) error
}

// Store implements KV on a *sql.DB opened with Schema.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps db. The schema must already be applied.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB exposes the handle for the change watcher.
func (s *Store) DB() *sql.DB { return s.db }

// Get returns the stored values of keys. Absent keys are omitted.
func (s *Store) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	q := "SELECT key, value FROM kv WHERE key IN (?" + strings.Repeat(",?", len(keys)-1) + ")"
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		out[k] = json.RawMessage(v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	return out, nil
}

// Set upserts every value in one transaction.
func (s *Store) Set(ctx context.Context, values map[string]any) error {
	return s.write(ctx, values, `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
}

// SeedDefaults inserts the values whose keys are absent, leaving existing
// ones alone.
func (s *Store) SeedDefaults(ctx context.Context, values map[string]any) error {
	return s.write(ctx, values, `INSERT OR IGNORE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`)
}

func (s *Store) write(ctx context.Context, values map[string]any, stmt string) error {
	if len(values) == 0 {
		return nil
	}
	encoded := make(map[string]string, len(values))
	for k, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("store: encode %s: %w", k, err)
		}
		encoded[k] = string(b)
	}

	ts := s.now().UnixNano()
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		for k, v := range encoded {
			if _, err := tx.ExecContext(ctx, stmt, k, v, ts); err != nil {
				return fmt.Errorf("write %s: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

// VersionOf returns a change detector over the given keys: the newest
// updated_at among them. Writes to other keys (the stats counters) leave
// it unchanged.
func VersionOf(keys ...string) func(ctx context.Context, db *sql.DB) (int64, error) {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	q := "SELECT COALESCE(MAX(updated_at), 0) FROM kv"
	if len(keys) > 0 {
		q += " WHERE key IN (?" + strings.Repeat(",?", len(keys)-1) + ")"
	}
	return func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		if err := db.QueryRowContext(ctx, q, args...).Scan(&v); err != nil {
			return 0, fmt.Errorf("store: version: %w", err)
		}
		return v, nil
	}
}
