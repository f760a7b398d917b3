package validity

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/feedpilot/liker/internal/pace"
)

// Reinit reasons.
const (
	ReasonRecovered  = "host recovered"
	ReasonNavigation = "navigation"
)

// Watchdog periodically checks the current engine and the page location,
// asking for reinitialization when the host came back or the page changed.
type Watchdog struct {
	Interval time.Duration
	// Settle is the wait after a location change before reinitializing.
	Settle time.Duration
	// Recheck is the short wait before re-probing an invalid host.
	Recheck time.Duration

	// Valid reports whether the current engine is still valid.
	Valid func() bool
	Probe Probe
	// Location returns the page URL.
	Location func(ctx context.Context) (string, error)
	Reinit   func(ctx context.Context, reason string)

	Sleep  pace.Sleeper
	Logger *slog.Logger
}

func (w *Watchdog) defaults() {
	if w.Interval <= 0 {
		w.Interval = 3 * time.Second
	}
	if w.Settle <= 0 {
		w.Settle = 2 * time.Second
	}
	if w.Recheck <= 0 {
		w.Recheck = 200 * time.Millisecond
	}
	if w.Sleep == nil {
		w.Sleep = pace.Sleep
	}
	if w.Logger == nil {
		w.Logger = slog.Default()
	}
}

// Run blocks until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	w.defaults()
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	last := ""
	if w.Location != nil {
		last, _ = w.Location(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last = w.Tick(ctx, last)
		}
	}
}

// Tick runs one check and returns the location to compare against next.
func (w *Watchdog) Tick(ctx context.Context, last string) (next string) {
	w.defaults()
	next = last
	defer func() {
		if r := recover(); r != nil {
			w.Logger.Error("validity: watchdog panic", "panic", r)
		}
	}()

	if w.Valid != nil && !w.Valid() {
		if w.Sleep(ctx, w.Recheck) != nil {
			return next
		}
		if err := w.probe(ctx); err == nil {
			w.Logger.Info("validity: host reachable again, reinitializing")
			w.Reinit(ctx, ReasonRecovered)
			if w.Location != nil {
				if loc, err := w.Location(ctx); err == nil {
					next = loc
				}
			}
		}
		return next
	}

	if w.Location == nil {
		return next
	}
	loc, err := w.Location(ctx)
	if err != nil || loc == last {
		return next
	}
	w.Logger.Info("validity: location changed", "from", last, "to", loc)
	if w.Sleep(ctx, w.Settle) != nil {
		return next
	}
	w.Reinit(ctx, ReasonNavigation)
	return loc
}

func (w *Watchdog) probe(ctx context.Context) error {
	if w.Probe == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()
	return w.Probe.Probe(ctx)
}
