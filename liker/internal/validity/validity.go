// Package validity decides whether the host (the browser page the engine
// drives) is still usable. Once a probe fails the engine instance is
// suspended for good; only a new instance can resume work.
package validity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/feedpilot/liker/internal/state"
)

// Probe checks that the host answers.
type Probe interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// DefaultProbeTimeout bounds one probe.
const DefaultProbeTimeout = 2 * time.Second

// Monitor gates engine work on host validity.
type Monitor struct {
	probe   Probe
	machine *state.Machine
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	onSuspend []func(reason string)
}

// NewMonitor wires a monitor to the engine's state machine. logger may be nil.
func NewMonitor(p Probe, m *state.Machine, timeout time.Duration, logger *slog.Logger) *Monitor {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	mon := &Monitor{probe: p, machine: m, timeout: timeout, logger: logger}
	m.Subscribe(func(prev, next state.EngineState) {
		if next.Phase != state.PhaseSuspended {
			return
		}
		mon.mu.Lock()
		fns := mon.onSuspend
		mon.onSuspend = nil
		mon.mu.Unlock()
		for _, fn := range fns {
			fn(next.Reason)
		}
	})
	return mon
}

// OnSuspend registers fn to run once when the engine is suspended.
func (m *Monitor) OnSuspend(fn func(reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSuspend = append(m.onSuspend, fn)
}

// Valid reports the recorded validity without probing.
func (m *Monitor) Valid() bool { return m.machine.Current().Valid }

// IsValid probes the host unless it is already known invalid. A failing
// probe invalidates.
func (m *Monitor) IsValid(ctx context.Context) bool {
	if !m.Valid() {
		return false
	}
	if err := m.check(ctx); err != nil {
		if ctx.Err() != nil {
			// The caller gave up; that says nothing about the host.
			return false
		}
		m.Invalidate(err.Error())
		return false
	}
	return true
}

func (m *Monitor) check(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validity: probe panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.probe.Probe(ctx)
}

// Invalidate suspends the engine. Repeated calls are no-ops.
func (m *Monitor) Invalidate(reason string) {
	prev := m.machine.Current()
	if !prev.Valid {
		return
	}
	m.logger.Warn("validity: context invalidated", "reason", reason, "phase", prev.Phase.String())
	m.machine.Fire(state.EventInvalidate, reason)
}
