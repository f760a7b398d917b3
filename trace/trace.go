// CLAUDE:SUMMARY SQL tracing driver for modernc.org/sqlite, logging every statement with the engine and pass that issued it.
// Package trace registers a "sqlite-trace" database/sql driver that wraps
// modernc.org/sqlite and logs every Exec and Query through slog.
//
//	db, err := dbopen.Open(path, dbopen.WithDriver(trace.DriverName))
//
// Statements log at Debug, at Warn past the slow threshold and at Error on
// failure. The engine and pass IDs carried by the context (see kit) are
// attached so store writes can be matched to the pass that made them.
package trace

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the name the tracing driver is registered under.
const DriverName = "sqlite-trace"

// DefaultSlow is the duration past which a statement logs at Warn.
const DefaultSlow = 100 * time.Millisecond

var (
	mu     sync.RWMutex
	logger *slog.Logger
	slow   = DefaultSlow
)

// SetLogger sets the logger used for traces. nil restores slog.Default.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// SetSlowThreshold changes the Warn threshold. Values <= 0 restore
// DefaultSlow.
func SetSlowThreshold(d time.Duration) {
	if d <= 0 {
		d = DefaultSlow
	}
	mu.Lock()
	slow = d
	mu.Unlock()
}

func settings() (*slog.Logger, time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.Default(), slow
	}
	return logger, slow
}

func init() {
	sql.Register(DriverName, &Driver{Driver: &sqlite.Driver{}})
}
