// CLAUDE:SUMMARY Polls a SQLite version token and fires a debounced callback when it changes.
// Package watch polls a SQLite database for a version token and runs an
// action once the token moved and stayed put for a debounce window. The
// supervisor uses it to notice settings written by another process (the
// control API of a second instance, sqlite3 by hand) and push them to the
// engine.
//
//	w := watch.New(db, watch.Options{Interval: 200*time.Millisecond, Debounce: 500*time.Millisecond, Detector: store.VersionOf(keys...)})
//	go w.OnChange(ctx, reload)
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"
)

// Detector reads a version token. Two different values mean a change.
type Detector func(ctx context.Context, db *sql.DB) (int64, error)

// Options tunes the watcher.
type Options struct {
	// Interval is the polling period. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period required before the action runs; a new
	// token restarts it. 0 runs the action on the poll that saw the change.
	Debounce time.Duration
	// Detector defaults to DataVersion.
	Detector Detector
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Detector == nil {
		o.Detector = DataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats are point-in-time counters.
type Stats struct {
	Checks  int64 `json:"checks"`
	Changes int64 `json:"changes"`
	Errors  int64 `json:"errors"`
	Reloads int64 `json:"reloads"`
}

// Watcher runs one poll loop. Safe for concurrent Stats/Version reads.
type Watcher struct {
	db   *sql.DB
	opts Options

	// version is the last token whose action succeeded.
	version atomic.Int64

	checks  atomic.Int64
	changes atomic.Int64
	errors  atomic.Int64
	reloads atomic.Int64
}

// New creates a watcher; OnChange starts it.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

// Version returns the last applied token.
func (w *Watcher) Version() int64 { return w.version.Load() }

// Stats returns the counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:  w.checks.Load(),
		Changes: w.changes.Load(),
		Errors:  w.errors.Load(),
		Reloads: w.reloads.Load(),
	}
}

// OnChange polls until ctx is done. The token seen at start is the
// baseline, so existing data does not fire the action. A failing action
// leaves the version untouched and is retried on the next poll.
func (w *Watcher) OnChange(ctx context.Context, action func(ctx context.Context) error) {
	log := w.opts.Logger
	if v, err := w.opts.Detector(ctx, w.db); err != nil {
		log.Warn("watch: baseline check failed", "error", err)
	} else {
		w.version.Store(v)
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var quiet *time.Timer
	var quietC <-chan time.Time
	defer func() {
		if quiet != nil {
			quiet.Stop()
		}
	}()
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			cur, ok := w.poll(ctx)
			if !ok || cur == w.version.Load() || cur == pending {
				continue
			}
			w.changes.Add(1)
			pending = cur
			if w.opts.Debounce <= 0 {
				w.apply(ctx, action, pending)
				pending = -1
				continue
			}
			if quiet != nil {
				quiet.Stop()
			}
			quiet = time.NewTimer(w.opts.Debounce)
			quietC = quiet.C
			log.Debug("watch: change detected", "version", cur)

		case <-quietC:
			quiet, quietC = nil, nil
			if pending >= 0 {
				w.apply(ctx, action, pending)
				pending = -1
			}
		}
	}
}

func (w *Watcher) poll(ctx context.Context) (int64, bool) {
	w.checks.Add(1)
	v, err := w.opts.Detector(ctx, w.db)
	if err != nil {
		if ctx.Err() == nil {
			w.errors.Add(1)
			w.opts.Logger.Warn("watch: version check failed", "error", err)
		}
		return 0, false
	}
	return v, true
}

func (w *Watcher) apply(ctx context.Context, action func(context.Context) error, v int64) {
	if err := action(ctx); err != nil {
		w.errors.Add(1)
		w.opts.Logger.Error("watch: action failed", "version", v, "error", err)
		return
	}
	w.reloads.Add(1)
	w.version.Store(v)
	w.opts.Logger.Debug("watch: applied", "version", v)
}

// DataVersion reads PRAGMA data_version, which moves when another
// connection commits to the same file.
func DataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}
