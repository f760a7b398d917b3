// Package liker drives the feed engagement engine: one Engine per page
// context, a Supervisor that owns the page and replaces engines when the
// context is lost, and the control surfaces (HTTP and MCP) around them.
package liker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/feedpilot/channel"
	"github.com/hazyhaar/feedpilot/idgen"
	"github.com/hazyhaar/feedpilot/kit"
	"github.com/hazyhaar/feedpilot/liker/internal/decision"
	"github.com/hazyhaar/feedpilot/liker/internal/interact"
	"github.com/hazyhaar/feedpilot/liker/internal/journal"
	"github.com/hazyhaar/feedpilot/liker/internal/ledger"
	"github.com/hazyhaar/feedpilot/liker/internal/locator"
	"github.com/hazyhaar/feedpilot/liker/internal/pace"
	"github.com/hazyhaar/feedpilot/liker/internal/scanner"
	"github.com/hazyhaar/feedpilot/liker/internal/scheduler"
	"github.com/hazyhaar/feedpilot/liker/internal/settings"
	"github.com/hazyhaar/feedpilot/liker/internal/state"
	"github.com/hazyhaar/feedpilot/liker/internal/stats"
	"github.com/hazyhaar/feedpilot/liker/internal/store"
	"github.com/hazyhaar/feedpilot/liker/internal/validity"
)

// Message actions exchanged over the channel.
const (
	ActionPing            = "ping"
	ActionSettingsUpdated = "settingsUpdated"
	ActionUpdateStats     = "updateStats"
)

// ErrInvalidHost is returned by Start when the page is already unusable.
var ErrInvalidHost = errors.New("liker: host context invalid")

const persistTimeout = 5 * time.Second

var (
	engineIDs = idgen.Prefixed("eng_", idgen.Default)
	passIDs   = idgen.Prefixed("pass_", idgen.Default)
)

// EngineConfig carries everything an engine needs besides its host, store
// and channel. Zero values take the defaults.
type EngineConfig struct {
	Locator     locator.Locator
	Scheduler   scheduler.Config
	Pacing      pace.Range
	Interaction interact.Timings
	Cooldown    time.Duration

	ProbeTimeout time.Duration

	// Limiter caps actions across engine generations. nil means no cap.
	Limiter *rate.Limiter
	// Journal records performed actions. nil records nothing.
	Journal *journal.Journal

	Rand   pace.Rand
	Sleep  pace.Sleeper
	Now    func() time.Time
	Logger *slog.Logger
}

func (c *EngineConfig) defaults() {
	c.Locator = c.Locator.Merge(locator.Default())
	if c.Pacing.Max <= 0 {
		c.Pacing = pace.Range{Min: 3 * time.Second, Max: 8 * time.Second}
	}
	if c.Interaction.EventGap.Max <= 0 {
		c.Interaction = interact.DefaultTimings()
	}
	if c.Cooldown <= 0 {
		c.Cooldown = decision.DefaultCooldown
	}
	if c.Rand == nil {
		c.Rand = pace.NewRand(0)
	}
	if c.Sleep == nil {
		c.Sleep = pace.Sleep
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.Scheduler.Logger = c.Logger
}

// Engine is one engine instance bound to one page context. Once its
// context is invalidated it stays suspended; the supervisor replaces it.
type Engine struct {
	id     string
	host   Host
	kv     store.KV
	router *channel.Router
	cfg    EngineConfig
	logger *slog.Logger

	machine  *state.Machine
	monitor  *validity.Monitor
	scanner  *scanner.Scanner
	ledger   *ledger.Ledger
	decider  *decision.Decider
	cooldown *decision.Cooldown
	actor    *interact.Simulator
	tracker  *stats.Tracker

	// toggleMu keeps a phase change and its scheduler swap together.
	toggleMu sync.Mutex

	mu           sync.Mutex
	settings     settings.Settings
	sched        *scheduler.Scheduler
	passes       int64
	dropped      int64
	unregister   []func()
	listenCancel context.CancelFunc
	listenDone   chan struct{}
	closed       bool
}

// NewEngine builds an engine. Nothing runs until Start.
func NewEngine(host Host, kv store.KV, router *channel.Router, cfg EngineConfig) *Engine {
	cfg.defaults()
	e := &Engine{
		id:       engineIDs(),
		host:     host,
		kv:       kv,
		router:   router,
		cfg:      cfg,
		machine:  state.NewMachine(cfg.Now),
		ledger:   ledger.New(),
		cooldown: decision.NewCooldown(cfg.Cooldown, cfg.Now),
		settings: settings.Defaults(),
	}
	e.logger = cfg.Logger.With("engine", e.id)
	e.monitor = validity.NewMonitor(host, e.machine, cfg.ProbeTimeout, e.logger)
	e.scanner = scanner.New(host, cfg.Locator, e.logger)
	e.decider = decision.New(cfg.Locator, cfg.Rand, e.logger)
	e.actor = interact.New(cfg.Interaction, cfg.Rand, cfg.Sleep, e.monitor.IsValid, e.logger)
	e.tracker = stats.NewTracker(kv, cfg.Now, e.notifyStats)
	e.monitor.OnSuspend(e.suspend)
	return e
}

// ID identifies this engine instance in logs.
func (e *Engine) ID() string { return e.id }

// Start checks the host, loads settings and stats, registers the message
// handlers and starts scheduling if enabled.
func (e *Engine) Start(ctx context.Context) error {
	if !e.monitor.IsValid(ctx) {
		return ErrInvalidHost
	}

	s, err := settings.Load(ctx, e.kv)
	if err != nil {
		e.logger.Warn("liker: load settings", "error", err)
	}
	e.setSettings(s)
	if err := e.tracker.Load(ctx); err != nil {
		e.logger.Warn("liker: load stats", "error", err)
	}

	e.mu.Lock()
	e.unregister = append(e.unregister,
		e.router.Handle(ActionPing, e.handlePing),
		e.router.Handle(ActionSettingsUpdated, e.handleSettingsUpdated),
	)
	e.mu.Unlock()

	e.startListener()

	if s.Enabled {
		e.enable(ctx)
	}
	e.logger.Info("liker: engine started", "enabled", s.Enabled,
		"probability", s.ActionProbability, "speed", string(s.Speed))
	return nil
}

// Settings returns the settings the engine currently runs with.
func (e *Engine) Settings() settings.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

func (e *Engine) setSettings(s settings.Settings) {
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
}

// State returns the engine state.
func (e *Engine) State() state.EngineState { return e.machine.Current() }

// Valid reports the recorded context validity without probing.
func (e *Engine) Valid() bool { return e.monitor.Valid() }

// Trigger asks for a pass now. It reports false when scheduling is off or
// a pass is already running.
func (e *Engine) Trigger(src scheduler.Source) bool {
	e.mu.Lock()
	sc := e.sched
	e.mu.Unlock()
	if sc == nil {
		return false
	}
	return sc.Trigger(src)
}

// Wait blocks until no pass is running.
func (e *Engine) Wait() {
	e.mu.Lock()
	sc := e.sched
	e.mu.Unlock()
	if sc != nil {
		sc.Wait()
	}
}

func (e *Engine) enable(ctx context.Context) {
	e.toggleMu.Lock()
	defer e.toggleMu.Unlock()

	if _, err := e.machine.Fire(state.EventEnable, "enabled"); err != nil {
		e.logger.Debug("liker: enable rejected", "error", err)
		return
	}

	e.mu.Lock()
	if e.closed || (e.sched != nil && !e.sched.Halted()) {
		e.mu.Unlock()
		return
	}
	if e.sched != nil {
		e.foldStatsLocked(e.sched)
	}
	sc := scheduler.New(e.machine, e.pass, e.cfg.Scheduler)
	e.sched = sc
	e.mu.Unlock()

	sc.Start()
	if err := e.tracker.StartSession(ctx); err != nil {
		e.logger.Warn("liker: start session", "error", err)
	}
	e.logger.Info("liker: scheduling started")
}

func (e *Engine) disable(ctx context.Context) {
	e.toggleMu.Lock()
	defer e.toggleMu.Unlock()

	if _, err := e.machine.Fire(state.EventDisable, "disabled"); err != nil {
		e.logger.Debug("liker: disable rejected", "error", err)
	}

	e.mu.Lock()
	sc := e.sched
	e.sched = nil
	if sc != nil {
		e.foldStatsLocked(sc)
	}
	e.mu.Unlock()

	if sc == nil {
		return
	}
	sc.Stop()
	if err := e.tracker.EndSession(ctx); err != nil {
		e.logger.Warn("liker: end session", "error", err)
	}
	e.logger.Info("liker: scheduling stopped")
}

// foldStatsLocked keeps the counters of a retired scheduler.
func (e *Engine) foldStatsLocked(sc *scheduler.Scheduler) {
	st := sc.Stats()
	e.passes += st.Passes
	e.dropped += st.Dropped
}

func (e *Engine) suspend(reason string) {
	suspensions.Inc()
	e.logger.Warn("liker: engine suspended", "reason", reason)

	e.mu.Lock()
	sc := e.sched
	cancel := e.listenCancel
	e.mu.Unlock()

	if sc != nil {
		sc.Halt()
	}
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) startListener() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	e.mu.Lock()
	e.listenCancel = cancel
	e.listenDone = done
	e.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("liker: listener panic", "panic", r)
			}
		}()
		err := e.host.Listen(ctx, e.onSignal)
		if ctx.Err() != nil {
			return
		}
		// The page stopped delivering signals on its own.
		e.logger.Warn("liker: signal listener ended", "error", err)
		e.monitor.IsValid(context.Background())
	}()
}

func (e *Engine) onSignal(signal string) {
	src, ok := scheduler.ParseSource(signal)
	if !ok {
		e.logger.Debug("liker: unknown page signal", "signal", signal)
		return
	}
	e.mu.Lock()
	sc := e.sched
	e.mu.Unlock()
	if sc != nil {
		sc.Signal(src)
	}
}

// pass processes the visible items once. It runs on the scheduler's scan
// goroutine; ctx is cancelled when scheduling halts.
func (e *Engine) pass(ctx context.Context, src scheduler.Source) {
	passID := passIDs()
	ctx = kit.WithEngineID(ctx, e.id)
	ctx = kit.WithPassID(ctx, passID)
	log := e.logger.With("pass", passID)
	passesRun.WithLabelValues(src.String()).Inc()

	if !e.monitor.IsValid(ctx) {
		return
	}

	items := e.scanner.Scan(ctx)
	log.Debug("liker: pass", "source", src.String(), "items", len(items))

	for _, item := range items {
		if ctx.Err() != nil || !e.machine.Current().Enabled() || !e.monitor.IsValid(ctx) {
			break
		}

		id := ledger.IDFor(ctx, item, e.cfg.Locator.IDAttribute)
		if !e.ledger.SeenOnce(id) {
			continue
		}
		e.tracker.Viewed()
		itemsViewed.Inc()

		s := e.Settings()
		dec := e.decider.Decide(ctx, item, s, e.cooldown)
		decisionsMade.WithLabelValues(dec.Verdict.String()).Inc()
		log.Debug("liker: decision", "item", string(id), "verdict", dec.Verdict.String())
		if dec.Verdict == decision.Act {
			e.act(ctx, log, id, dec, s)
		}

		if err := e.cfg.Sleep(ctx, e.cfg.Pacing.Draw(e.cfg.Rand)); err != nil {
			break
		}
		if !e.monitor.IsValid(ctx) {
			break
		}
	}

	if !e.monitor.Valid() {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := e.tracker.Persist(pctx); err != nil {
		log.Warn("liker: persist stats", "error", err)
	}
}

func (e *Engine) act(ctx context.Context, log *slog.Logger, id ledger.ID, dec decision.Decision, s settings.Settings) {
	if e.cfg.Limiter != nil && !e.cfg.Limiter.Allow() {
		rateLimited.Inc()
		log.Info("liker: hourly action ceiling reached")
		return
	}
	if err := e.cfg.Sleep(ctx, s.Speed.ThinkDelay().Draw(e.cfg.Rand)); err != nil {
		return
	}
	if !e.monitor.IsValid(ctx) {
		return
	}
	if err := e.actor.Perform(ctx, dec.Control); err != nil {
		actionErrors.Inc()
		log.Warn("liker: action failed", "error", err)
		return
	}

	e.tracker.Acted()
	actionsTaken.Inc()
	if s.SmartFiltering && dec.Author != "" {
		e.cooldown.Mark(dec.Author)
	}
	e.cfg.Journal.Record(context.WithoutCancel(ctx), journal.Entry{
		EngineID: kit.GetEngineID(ctx),
		PassID:   kit.GetPassID(ctx),
		ItemID:   string(id),
		Author:   dec.Author,
	})
	log.Info("liker: action taken", "author", dec.Author, "today", e.tracker.Snapshot().ActionsTakenToday)
}

func (e *Engine) notifyStats(ctx context.Context, viewed, acted int) {
	e.router.Notify(ctx, channel.NewMessage(ActionUpdateStats, map[string]any{
		"itemsViewed":  viewed,
		"actionsTaken": acted,
	}))
}

func (e *Engine) handlePing(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	return channel.Reply(map[string]any{
		"status":       "alive",
		"contextValid": e.monitor.IsValid(ctx),
	})
}

func (e *Engine) handleSettingsUpdated(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	s, err := settings.Load(ctx, e.kv)
	if err != nil {
		return nil, fmt.Errorf("liker: settings updated: %w", err)
	}
	e.setSettings(s)
	if s.Enabled {
		e.enable(ctx)
	} else {
		e.disable(ctx)
	}
	return channel.Reply(map[string]any{"success": true})
}

// Status is the engine's view for the control surfaces.
type Status struct {
	EngineID      string            `json:"engineId"`
	Phase         string            `json:"phase"`
	ContextValid  bool              `json:"contextValid"`
	Reason        string            `json:"reason,omitempty"`
	Settings      settings.Settings `json:"settings"`
	Stats         stats.Stats       `json:"stats"`
	SessionActive bool              `json:"sessionActive"`
	SessionStart  *time.Time        `json:"sessionStart,omitempty"`
	ItemsSeen     int               `json:"itemsSeen"`
	Passes        int64             `json:"passes"`
	Dropped       int64             `json:"dropped"`
}

// Status reports the engine without probing the host.
func (e *Engine) Status() Status {
	st := e.machine.Current()
	sess := e.tracker.Session()
	out := Status{
		EngineID:      e.id,
		Phase:         st.Phase.String(),
		ContextValid:  st.Valid,
		Reason:        st.Reason,
		Settings:      e.Settings(),
		Stats:         e.tracker.Snapshot(),
		SessionActive: sess.Active(),
		ItemsSeen:     e.ledger.Len(),
	}
	if sess.Active() {
		t := sess.StartTime
		out.SessionStart = &t
	}

	e.mu.Lock()
	out.Passes, out.Dropped = e.passes, e.dropped
	if e.sched != nil {
		cur := e.sched.Stats()
		out.Passes += cur.Passes
		out.Dropped += cur.Dropped
	}
	e.mu.Unlock()
	return out
}

// Close stops scheduling and the signal listener and unregisters the
// handlers. The engine cannot be restarted.
func (e *Engine) Close() {
	e.toggleMu.Lock()
	defer e.toggleMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	sc := e.sched
	cancel, done := e.listenCancel, e.listenDone
	unregister := e.unregister
	e.unregister = nil
	e.mu.Unlock()

	for _, fn := range unregister {
		fn()
	}
	if sc != nil {
		sc.Stop()
	}
	if cancel != nil {
		cancel()
		<-done
	}
	e.logger.Info("liker: engine closed", "phase", e.machine.Current().Phase.String())
}
