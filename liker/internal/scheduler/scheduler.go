// Package scheduler turns page signals into processing passes. It owns
// every timer of an enabled engine (two debouncers, the tick, the initial
// delay) and guarantees at most one pass in flight: a trigger that arrives
// during a pass is dropped, not queued.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/feedpilot/liker/internal/state"
)

// Source says what asked for a pass.
type Source uint8

const (
	SourceMutation Source = iota
	SourceScroll
	SourceTick
	SourceInitial
	SourceManual
)

func (s Source) String() string {
	switch s {
	case SourceMutation:
		return "mutation"
	case SourceScroll:
		return "scroll"
	case SourceTick:
		return "tick"
	case SourceInitial:
		return "initial"
	case SourceManual:
		return "manual"
	}
	return fmt.Sprintf("source(%d)", uint8(s))
}

// ParseSource maps a page signal name to a Source.
func ParseSource(name string) (Source, bool) {
	switch name {
	case "mutation":
		return SourceMutation, true
	case "scroll":
		return SourceScroll, true
	}
	return 0, false
}

// Config tunes the timers.
type Config struct {
	MutationDebounce time.Duration `yaml:"mutation_debounce"`
	// ScrollDebounce is the scroll quiet period; when it elapses the
	// signal enters the mutation debouncer.
	ScrollDebounce time.Duration `yaml:"scroll_debounce"`
	TickInterval   time.Duration `yaml:"tick_interval"`
	InitialDelay   time.Duration `yaml:"initial_delay"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.MutationDebounce <= 0 {
		c.MutationDebounce = time.Second
	}
	if c.ScrollDebounce <= 0 {
		c.ScrollDebounce = 500 * time.Millisecond
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 4 * time.Second
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// PassFunc runs one processing pass. ctx is cancelled when the scheduler
// halts.
type PassFunc func(ctx context.Context, src Source)

// Stats are lifetime counters.
type Stats struct {
	Passes  int64 `json:"passes"`
	Dropped int64 `json:"dropped"`
}

// Scheduler drives passes for one enabled period. It is single-use: after
// Halt a new Scheduler must be created.
type Scheduler struct {
	cfg     Config
	machine *state.Machine
	pass    PassFunc

	signals  chan Source
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}

	mu      sync.Mutex
	halted  bool
	started bool
	scans   sync.WaitGroup

	passes  atomic.Int64
	dropped atomic.Int64
}

// New creates a scheduler bound to the engine's state machine.
func New(m *state.Machine, pass PassFunc, cfg Config) *Scheduler {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:      cfg,
		machine:  m,
		pass:     pass,
		signals:  make(chan Source, 64),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
}

// Start launches the timer loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.halted {
		return
	}
	s.started = true
	go s.loop()
}

// Signal feeds a page signal to the loop without blocking. It reports
// false when the signal was discarded.
func (s *Scheduler) Signal(src Source) bool {
	if s.ctx.Err() != nil {
		return false
	}
	select {
	case s.signals <- src:
		return true
	default:
		return false
	}
}

// Trigger starts a pass now unless one is in flight, the engine is not
// idle, or the scheduler halted. It never blocks on the pass.
func (s *Scheduler) Trigger(src Source) bool {
	s.mu.Lock()
	if s.halted {
		s.mu.Unlock()
		return false
	}
	s.scans.Add(1)
	s.mu.Unlock()

	if _, err := s.machine.Fire(state.EventScanBegin, src.String()); err != nil {
		s.scans.Done()
		s.dropped.Add(1)
		s.cfg.Logger.Debug("scheduler: trigger dropped", "source", src.String(), "reason", err)
		return false
	}

	s.passes.Add(1)
	go s.run(src)
	return true
}

func (s *Scheduler) run(src Source) {
	defer s.scans.Done()
	defer func() {
		if r := recover(); r != nil {
			s.cfg.Logger.Error("scheduler: pass panic", "source", src.String(), "panic", r)
		}
		s.machine.Fire(state.EventScanEnd, src.String())
	}()
	s.pass(s.ctx, src)
}

func (s *Scheduler) loop() {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	initial := time.NewTimer(s.cfg.InitialDelay)
	defer initial.Stop()
	mutation := newDebouncer(s.cfg.MutationDebounce)
	defer mutation.stop()
	scroll := newDebouncer(s.cfg.ScrollDebounce)
	defer scroll.stop()

	s.cfg.Logger.Debug("scheduler: started",
		"tick", s.cfg.TickInterval, "mutation_debounce", s.cfg.MutationDebounce, "scroll_debounce", s.cfg.ScrollDebounce)

	for {
		select {
		case <-s.ctx.Done():
			s.cfg.Logger.Debug("scheduler: stopped")
			return

		case src := <-s.signals:
			switch src {
			case SourceMutation:
				mutation.add(src)
			case SourceScroll:
				scroll.add(src)
			default:
				s.Trigger(src)
			}

		case <-scroll.timerC():
			mutation.add(scroll.expire())

		case <-mutation.timerC():
			s.Trigger(mutation.expire())

		case <-ticker.C:
			s.Trigger(SourceTick)

		case <-initial.C:
			s.Trigger(SourceInitial)
		}
	}
}

// Halt cancels the timers and the running pass's context without waiting.
// It is safe to call from inside a pass.
func (s *Scheduler) Halt() {
	s.mu.Lock()
	s.halted = true
	s.mu.Unlock()
	s.cancel()
}

// Stop halts and waits for the loop and any pass to return. It must not be
// called from inside a pass.
func (s *Scheduler) Stop() {
	s.Halt()
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.loopDone
	}
	s.scans.Wait()
}

// Wait blocks until no pass is running.
func (s *Scheduler) Wait() { s.scans.Wait() }

// Done is closed when the timer loop exited. It never closes if Start was
// not called.
func (s *Scheduler) Done() <-chan struct{} { return s.loopDone }

// Halted reports whether Halt was called.
func (s *Scheduler) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

// Stats returns the counters.
func (s *Scheduler) Stats() Stats {
	return Stats{Passes: s.passes.Load(), Dropped: s.dropped.Load()}
}
