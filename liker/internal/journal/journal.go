// CLAUDE:SUMMARY Action journal in SQLite: one row per performed action, recent listing, retention cleanup.
// Package journal records every action the engine performs. It backs the
// recent-actions views of the control surfaces and is pruned daily.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/feedpilot/dbopen"
	"github.com/hazyhaar/feedpilot/idgen"
)

// Schema creates the actions table.
const Schema = `
CREATE TABLE IF NOT EXISTS actions (
	action_id TEXT PRIMARY KEY,
	engine_id TEXT NOT NULL,
	pass_id   TEXT NOT NULL DEFAULT '',
	item_id   TEXT NOT NULL,
	author    TEXT NOT NULL DEFAULT '',
	acted_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_actions_acted_at ON actions(acted_at DESC);
`

// Entry is one performed action.
type Entry struct {
	ID       string    `json:"id"`
	EngineID string    `json:"engineId"`
	PassID   string    `json:"passId,omitempty"`
	ItemID   string    `json:"itemId"`
	Author   string    `json:"author,omitempty"`
	At       time.Time `json:"at"`
}

// Journal writes entries to the actions table. A nil *Journal records
// nothing.
type Journal struct {
	db     *sql.DB
	newID  idgen.Generator
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithIDGenerator sets the generator for entry IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(j *Journal) { j.newID = gen }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// New creates a journal on db. The schema must already be applied.
func New(db *sql.DB, opts ...Option) *Journal {
	j := &Journal{
		db:     db,
		newID:  idgen.Prefixed("act_", idgen.Default),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Record stores e, filling its ID and time when empty. Failures are logged
// and not returned.
func (j *Journal) Record(ctx context.Context, e Entry) {
	if j == nil {
		return
	}
	if e.ID == "" {
		e.ID = j.newID()
	}
	if e.At.IsZero() {
		e.At = j.now()
	}
	_, err := dbopen.Exec(ctx, j.db,
		`INSERT INTO actions (action_id, engine_id, pass_id, item_id, author, acted_at) VALUES (?,?,?,?,?,?)`,
		e.ID, e.EngineID, e.PassID, e.ItemID, e.Author, e.At.UnixMilli())
	if err != nil {
		j.logger.Warn("journal: record failed", "error", err, "item", e.ItemID)
	}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT action_id, engine_id, pass_id, item_id, author, acted_at
		FROM actions ORDER BY acted_at DESC, action_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at int64
		if err := rows.Scan(&e.ID, &e.EngineID, &e.PassID, &e.ItemID, &e.Author, &at); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.At = time.UnixMilli(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountSince counts the entries at or after since.
func (j *Journal) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM actions WHERE acted_at >= ?`, since.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	return n, nil
}

// Cleanup deletes entries older than retention and returns how many went.
// Zero retention keeps everything.
func (j *Journal) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := j.now().Add(-retention).UnixMilli()
	res, err := j.db.ExecContext(ctx, `DELETE FROM actions WHERE acted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("journal: cleanup: %w", err)
	}
	return res.RowsAffected()
}
