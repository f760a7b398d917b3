// CLAUDE:SUMMARY Engine supervisor: one engine per page context, watchdog and health-check reinit, daily rollover, settings watcher.
package liker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/feedpilot/channel"
	"github.com/hazyhaar/feedpilot/liker/internal/journal"
	"github.com/hazyhaar/feedpilot/liker/internal/pace"
	"github.com/hazyhaar/feedpilot/liker/internal/scheduler"
	"github.com/hazyhaar/feedpilot/liker/internal/settings"
	"github.com/hazyhaar/feedpilot/liker/internal/stats"
	"github.com/hazyhaar/feedpilot/liker/internal/store"
	"github.com/hazyhaar/feedpilot/liker/internal/validity"
	"github.com/hazyhaar/feedpilot/watch"
)

// Reinit reasons besides the watchdog's.
const (
	ReasonAttach      = "attach"
	ReasonHealthCheck = "health check"
)

// ErrNoHost is returned when no page is attached.
var ErrNoHost = errors.New("liker: no host attached")

const pingTimeout = 2 * time.Second

// Supervisor owns the page and the engine running on it. It creates
// exactly one engine per page context and replaces it when the watchdog,
// the health check or a browser recycle says the context is gone.
type Supervisor struct {
	cfg     *Config
	kv      *store.Store
	journal *journal.Journal
	router  *channel.Router
	logger  *slog.Logger
	rng     pace.Rand
	sleep   pace.Sleeper
	now     func() time.Time
	limiter *rate.Limiter

	reinitMu sync.Mutex // serializes engine replacement

	mu         sync.Mutex
	host       Host
	engine     *Engine
	unregister func()
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SupervisorOption {
	return func(s *Supervisor) { s.now = now }
}

// WithSleeper replaces the context-aware sleep used by engines and the
// watchdog.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) SupervisorOption {
	return func(s *Supervisor) { s.sleep = sleep }
}

// NewSupervisor wires a supervisor to an opened database (see Schema) and
// the message router. cfg must have its defaults applied.
func NewSupervisor(db *sql.DB, router *channel.Router, cfg *Config, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		kv:     store.New(db),
		router: router,
		logger: slog.Default(),
		sleep:  pace.Sleep,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.journal = journal.New(db, journal.WithClock(s.now), journal.WithLogger(s.logger))
	s.rng = pace.NewRand(cfg.Seed)
	if perHour := cfg.Limits.PerHour(); perHour > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(float64(perHour)/3600), cfg.Limits.Burst)
	}
	s.unregister = router.Handle(ActionUpdateStats, s.handleUpdateStats)
	return s
}

// Seed writes the default settings and zeroed stats, keeping any value
// already stored.
func (s *Supervisor) Seed(ctx context.Context) error {
	values := settings.Defaults().Values()
	values[stats.KeyViewed] = 0
	values[stats.KeyActed] = 0
	values[stats.KeyLastReset] = stats.Today(s.now())
	if err := s.kv.SeedDefaults(ctx, values); err != nil {
		return fmt.Errorf("liker: seed: %w", err)
	}
	return nil
}

func (s *Supervisor) engineConfig() EngineConfig {
	t := s.cfg.Timing
	return EngineConfig{
		Locator: s.cfg.Locator,
		Scheduler: scheduler.Config{
			MutationDebounce: t.MutationDebounce,
			ScrollDebounce:   t.ScrollDebounce,
			TickInterval:     t.Tick,
			InitialDelay:     t.InitialDelay,
		},
		Pacing:       t.Pacing,
		Interaction:  t.Interaction,
		Cooldown:     t.Cooldown,
		ProbeTimeout: t.ProbeTimeout,
		Limiter:      s.limiter,
		Journal:      s.journal,
		Rand:         s.rng,
		Sleep:        s.sleep,
		Now:          s.now,
		Logger:       s.logger,
	}
}

// Attach makes host the current page and starts an engine on it. A
// previous host that is an io.Closer is closed once its engine is gone.
func (s *Supervisor) Attach(ctx context.Context, host Host) error {
	s.mu.Lock()
	old := s.host
	s.host = host
	s.mu.Unlock()

	err := s.Reinit(ctx, ReasonAttach)
	if old != nil && old != host {
		closeHost(old, s.logger)
	}
	return err
}

// Detach stops the engine and releases the page.
func (s *Supervisor) Detach() {
	s.reinitMu.Lock()
	defer s.reinitMu.Unlock()

	s.mu.Lock()
	eng, host := s.engine, s.host
	s.engine, s.host = nil, nil
	s.mu.Unlock()

	if eng != nil {
		eng.Close()
	}
	if host != nil {
		closeHost(host, s.logger)
	}
}

func closeHost(h Host, logger *slog.Logger) {
	c, ok := h.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Debug("liker: close host", "error", err)
	}
}

// Reinit closes the current engine and starts a new one on the attached
// page, with a fresh ledger and state. The new engine is kept even when
// its start fails so the watchdog can retry once the host recovers.
func (s *Supervisor) Reinit(ctx context.Context, reason string) error {
	s.reinitMu.Lock()
	defer s.reinitMu.Unlock()

	s.mu.Lock()
	old, host := s.engine, s.host
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if host == nil {
		return ErrNoHost
	}

	eng := NewEngine(host, s.kv, s.router, s.engineConfig())
	s.mu.Lock()
	s.engine = eng
	s.mu.Unlock()

	reinits.WithLabelValues(reason).Inc()
	if err := eng.Start(ctx); err != nil {
		s.logger.Warn("liker: engine start failed", "reason", reason, "error", err)
		return err
	}
	s.logger.Info("liker: engine initialized", "engine", eng.ID(), "reason", reason)
	return nil
}

// Engine returns the current engine, nil before the first Attach.
func (s *Supervisor) Engine() *Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// Host returns the attached page.
func (s *Supervisor) Host() Host {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host
}

// Run blocks until ctx is done, running the watchdog, the health check,
// the daily rollover and the settings watcher.
func (s *Supervisor) Run(ctx context.Context) {
	t := s.cfg.Timing
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("liker: loop panic", "loop", name, "panic", r)
				}
			}()
			fn(ctx)
		}()
	}

	wd := &validity.Watchdog{
		Interval: t.Watchdog,
		Settle:   t.NavigationSettle,
		Valid: func() bool {
			eng := s.Engine()
			return eng != nil && eng.Valid()
		},
		Probe:    validity.ProbeFunc(s.probe),
		Location: s.location,
		Reinit: func(ctx context.Context, reason string) {
			s.Reinit(ctx, reason)
		},
		Sleep:  s.sleep,
		Logger: s.logger,
	}
	run("watchdog", wd.Run)
	run("health", func(ctx context.Context) { s.every(ctx, t.HealthCheck, func() { s.HealthCheck(ctx) }) })
	run("rollover", func(ctx context.Context) {
		s.Rollover(ctx)
		s.every(ctx, t.Rollover, func() { s.Rollover(ctx) })
	})
	run("settings", s.watchSettings)

	s.logger.Info("liker: supervisor running")
	wg.Wait()
	s.logger.Info("liker: supervisor stopped")
}

// Close detaches the page and drops the stats handler.
func (s *Supervisor) Close() {
	s.Detach()
	if s.unregister != nil {
		s.unregister()
	}
}

func (s *Supervisor) every(ctx context.Context, d time.Duration, fn func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func (s *Supervisor) probe(ctx context.Context) error {
	h := s.Host()
	if h == nil {
		return ErrNoHost
	}
	return h.Probe(ctx)
}

func (s *Supervisor) location(ctx context.Context) (string, error) {
	h := s.Host()
	if h == nil {
		return "", ErrNoHost
	}
	return h.Location(ctx)
}

// HealthCheck pings the engine and reinitializes when the ping fails or
// reports an invalid context. It reports whether the engine was healthy.
func (s *Supervisor) HealthCheck(ctx context.Context) bool {
	if s.Host() == nil {
		return false
	}
	call := channel.WithTimeout(pingTimeout)(s.router.Call)
	resp, err := call(ctx, channel.NewMessage(ActionPing, nil))
	if err == nil {
		var pong struct {
			Status       string `json:"status"`
			ContextValid bool   `json:"contextValid"`
		}
		if err = json.Unmarshal(resp, &pong); err == nil && pong.ContextValid {
			return true
		}
	}
	if ctx.Err() != nil {
		return false
	}
	s.logger.Warn("liker: health check failed, reinitializing", "error", err)
	s.Reinit(ctx, ReasonHealthCheck)
	return false
}

// Rollover resets the stored daily counters when the day changed,
// whether or not an engine is running, and prunes the journal.
func (s *Supervisor) Rollover(ctx context.Context) bool {
	if n, err := s.journal.Cleanup(ctx, s.cfg.Journal.Retention); err != nil {
		s.logger.Warn("liker: journal cleanup", "error", err)
	} else if n > 0 {
		s.logger.Info("liker: journal pruned", "deleted", n)
	}

	reset, err := stats.ResetIfStale(ctx, s.kv, s.now())
	if err != nil {
		s.logger.Warn("liker: daily rollover", "error", err)
		return false
	}
	if reset {
		viewedToday.Set(0)
		actedToday.Set(0)
		s.logger.Info("liker: daily stats reset", "date", stats.Today(s.now()))
	}
	return reset
}

func (s *Supervisor) watchSettings(ctx context.Context) {
	t := s.cfg.Timing
	w := watch.New(s.kv.DB(), watch.Options{
		Interval: t.SettingsPoll,
		Debounce: t.SettingsDebounce,
		Detector: store.VersionOf(settings.Keys()...),
		Logger:   s.logger,
	})
	w.OnChange(ctx, s.notifySettings)
}

// notifySettings tells the engine its settings changed. No engine means
// nothing to tell.
func (s *Supervisor) notifySettings(ctx context.Context) error {
	_, err := s.router.Call(ctx, channel.NewMessage(ActionSettingsUpdated, nil))
	var noListener *channel.ErrNoListener
	var unknown *channel.ErrUnknownAction
	if errors.As(err, &noListener) || errors.As(err, &unknown) {
		return nil
	}
	return err
}

// Settings reads the stored settings.
func (s *Supervisor) Settings(ctx context.Context) (settings.Settings, error) {
	return settings.Load(ctx, s.kv)
}

// UpdateSettings applies a partial update and tells the engine right away
// rather than waiting for the watcher.
func (s *Supervisor) UpdateSettings(ctx context.Context, p settings.Patch) (settings.Settings, error) {
	cur, err := settings.Load(ctx, s.kv)
	if err != nil {
		return cur, err
	}
	next := p.Apply(cur)
	if err := s.kv.Set(ctx, next.Values()); err != nil {
		return cur, fmt.Errorf("liker: update settings: %w", err)
	}
	if err := s.notifySettings(ctx); err != nil {
		s.logger.Warn("liker: notify settings", "error", err)
	}
	return next, nil
}

// RecentActions returns up to limit journal entries, newest first.
func (s *Supervisor) RecentActions(ctx context.Context, limit int) ([]journal.Entry, error) {
	return s.journal.Recent(ctx, limit)
}

// SupervisorStatus is the view served by GET /status.
type SupervisorStatus struct {
	Enabled         bool        `json:"enabled"`
	Stats           stats.Stats `json:"stats"`
	SessionActive   bool        `json:"sessionActive"`
	Attached        bool        `json:"attached"`
	ActionsLastHour int         `json:"actionsLastHour"`
	Engine          *Status     `json:"engine,omitempty"`
}

// Status reads the stored settings and stats and the engine's view.
func (s *Supervisor) Status(ctx context.Context) (SupervisorStatus, error) {
	set, err := settings.Load(ctx, s.kv)
	if err != nil {
		return SupervisorStatus{}, err
	}
	st, sess, err := stats.Read(ctx, s.kv)
	if err != nil {
		return SupervisorStatus{}, err
	}
	out := SupervisorStatus{
		Enabled:       set.Enabled,
		Stats:         st,
		SessionActive: sess.Active(),
		Attached:      s.Host() != nil,
	}
	if n, err := s.journal.CountSince(ctx, s.now().Add(-time.Hour)); err != nil {
		s.logger.Debug("liker: count recent actions", "error", err)
	} else {
		out.ActionsLastHour = n
	}
	if eng := s.Engine(); eng != nil {
		es := eng.Status()
		out.Engine = &es
	}
	return out, nil
}

func (s *Supervisor) handleUpdateStats(_ context.Context, msg json.RawMessage) (json.RawMessage, error) {
	var in struct {
		ItemsViewed  int `json:"itemsViewed"`
		ActionsTaken int `json:"actionsTaken"`
	}
	if err := json.Unmarshal(msg, &in); err != nil {
		return nil, fmt.Errorf("liker: update stats: %w", err)
	}
	viewedToday.Set(float64(in.ItemsViewed))
	actedToday.Set(float64(in.ActionsTaken))
	return channel.Reply(map[string]any{"success": true})
}
