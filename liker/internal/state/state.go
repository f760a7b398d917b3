// Package state models the engine lifecycle as a value plus one transition
// function. Enabled/scanning/valid are never mutated directly: every change
// goes through EngineState.Apply, and Machine serialises those calls.
//
//	Disabled --Enable--> Idle --ScanBegin--> Scanning --ScanEnd--> Idle
//	    any  --Invalidate--> Suspended (terminal)
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Phase is the coarse lifecycle position of one engine instance.
type Phase uint8

const (
	PhaseDisabled Phase = iota
	PhaseIdle
	PhaseScanning
	PhaseSuspended
)

func (p Phase) String() string {
	switch p {
	case PhaseDisabled:
		return "disabled"
	case PhaseIdle:
		return "idle"
	case PhaseScanning:
		return "scanning"
	case PhaseSuspended:
		return "suspended"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Event drives a transition.
type Event uint8

const (
	EventEnable Event = iota
	EventDisable
	EventScanBegin
	EventScanEnd
	EventInvalidate
)

func (e Event) String() string {
	switch e {
	case EventEnable:
		return "enable"
	case EventDisable:
		return "disable"
	case EventScanBegin:
		return "scan_begin"
	case EventScanEnd:
		return "scan_end"
	case EventInvalidate:
		return "invalidate"
	}
	return fmt.Sprintf("event(%d)", uint8(e))
}

var (
	// ErrScanInFlight rejects a scan while another one runs.
	ErrScanInFlight = errors.New("state: scan already in flight")
	// ErrNotEnabled rejects a scan while the engine is disabled.
	ErrNotEnabled = errors.New("state: engine disabled")
	// ErrSuspended rejects everything once the context is invalid.
	ErrSuspended = errors.New("state: engine suspended")
)

// EngineState is the authoritative lifecycle value.
type EngineState struct {
	Phase  Phase
	Valid  bool
	Reason string // last transition cause, e.g. the invalidation reason
	Since  time.Time
}

// Initial is the state of a freshly constructed engine.
func Initial(now time.Time) EngineState {
	return EngineState{Phase: PhaseDisabled, Valid: true, Since: now}
}

// Enabled reports whether the feature flag is on and the engine is alive.
func (s EngineState) Enabled() bool {
	return s.Valid && (s.Phase == PhaseIdle || s.Phase == PhaseScanning)
}

// Apply returns the state after ev. On a rejected event the receiver is
// returned unchanged together with the reason.
func (s EngineState) Apply(ev Event, reason string, now time.Time) (EngineState, error) {
	if s.Phase == PhaseSuspended {
		if ev == EventInvalidate {
			return s, nil
		}
		return s, ErrSuspended
	}

	next := s
	switch ev {
	case EventInvalidate:
		next.Phase = PhaseSuspended
		next.Valid = false
	case EventEnable:
		if s.Phase != PhaseDisabled {
			return s, nil
		}
		next.Phase = PhaseIdle
	case EventDisable:
		if s.Phase == PhaseDisabled {
			return s, nil
		}
		next.Phase = PhaseDisabled
	case EventScanBegin:
		switch s.Phase {
		case PhaseScanning:
			return s, ErrScanInFlight
		case PhaseDisabled:
			return s, ErrNotEnabled
		}
		next.Phase = PhaseScanning
	case EventScanEnd:
		if s.Phase != PhaseScanning {
			return s, nil
		}
		next.Phase = PhaseIdle
	default:
		return s, fmt.Errorf("state: unknown event %d", ev)
	}

	next.Reason = reason
	next.Since = now
	return next, nil
}

// Listener observes phase changes. It runs outside the machine lock.
type Listener func(prev, next EngineState)

// Machine guards one EngineState.
type Machine struct {
	mu        sync.Mutex
	cur       EngineState
	now       func() time.Time
	listeners []Listener
}

// NewMachine creates a machine in the Initial state. now may be nil.
func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{cur: Initial(now()), now: now}
}

// Current returns a copy of the state.
func (m *Machine) Current() EngineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Subscribe registers a listener for phase changes.
func (m *Machine) Subscribe(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Fire applies ev and notifies listeners when the phase moved.
func (m *Machine) Fire(ev Event, reason string) (EngineState, error) {
	m.mu.Lock()
	prev := m.cur
	next, err := prev.Apply(ev, reason, m.now())
	if err != nil {
		m.mu.Unlock()
		return prev, err
	}
	m.cur = next
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	if prev.Phase != next.Phase {
		for _, l := range listeners {
			l(prev, next)
		}
	}
	return next, nil
}
