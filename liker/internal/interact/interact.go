// Package interact performs the pointer sequence that presses a control:
// scroll into view, settle, move, press, release, click, each step
// separated by a short random gap.
package interact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/feedpilot/liker/internal/dom"
	"github.com/hazyhaar/feedpilot/liker/internal/pace"
)

// ErrAborted is returned when the host became invalid during the sequence.
var ErrAborted = errors.New("interact: aborted, context invalid")

// DispatchError wraps the failure of one step.
type DispatchError struct {
	Step string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("interact: %s: %v", e.Step, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Timings are the delays of the sequence.
type Timings struct {
	Settle   time.Duration `yaml:"settle"`
	EventGap pace.Range    `yaml:"event_gap"`
	Final    pace.Range    `yaml:"final"`
	// Jitter is the maximum offset in pixels from the control center, per axis.
	Jitter float64 `yaml:"jitter"`
}

// DefaultTimings returns the stock delays.
func DefaultTimings() Timings {
	return Timings{
		Settle:   200 * time.Millisecond,
		EventGap: pace.Range{Min: 5 * time.Millisecond, Max: 15 * time.Millisecond},
		Final:    pace.Range{Min: 20 * time.Millisecond, Max: 50 * time.Millisecond},
		Jitter:   2,
	}
}

// Simulator performs interactions.
type Simulator struct {
	timings Timings
	rng     pace.Rand
	sleep   pace.Sleeper
	valid   func(context.Context) bool
	logger  *slog.Logger
}

// New creates a Simulator. valid is consulted after every wait; nil means
// always valid. sleep nil uses pace.Sleep.
func New(t Timings, rng pace.Rand, sleep pace.Sleeper, valid func(context.Context) bool, logger *slog.Logger) *Simulator {
	if sleep == nil {
		sleep = pace.Sleep
	}
	if valid == nil {
		valid = func(context.Context) bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{timings: t, rng: rng, sleep: sleep, valid: valid, logger: logger}
}

// Perform presses control. A nil error means the click was dispatched.
func (s *Simulator) Perform(ctx context.Context, control dom.Element) error {
	if err := control.ScrollIntoView(ctx); err != nil {
		return &DispatchError{Step: "scroll", Err: err}
	}
	if err := s.wait(ctx, s.timings.Settle); err != nil {
		return err
	}

	r, err := control.Rect(ctx)
	if err != nil {
		return &DispatchError{Step: "measure", Err: err}
	}
	x, y := r.Center()
	x += (s.rng.Float64() - 0.5) * 2 * s.timings.Jitter
	y += (s.rng.Float64() - 0.5) * 2 * s.timings.Jitter

	if err := control.Dispatch(ctx, dom.PointerEvent{Kind: dom.PointerMove, X: x, Y: y}); err != nil {
		s.logger.Debug("interact: pointer move failed", "error", err)
	}

	for _, kind := range []dom.PointerKind{dom.PointerDown, dom.PointerUp, dom.Click} {
		if err := control.Dispatch(ctx, dom.PointerEvent{Kind: kind, X: x, Y: y, Button: 0}); err != nil {
			return &DispatchError{Step: string(kind), Err: err}
		}
		if err := s.wait(ctx, s.timings.EventGap.Draw(s.rng)); err != nil {
			if kind == dom.Click {
				// The click went through; only the trailing gap was cut.
				return nil
			}
			return err
		}
	}

	// The click landed; the trailing pause cannot undo it.
	_ = s.sleep(ctx, s.timings.Final.Draw(s.rng))
	return nil
}

func (s *Simulator) wait(ctx context.Context, d time.Duration) error {
	if err := s.sleep(ctx, d); err != nil {
		return fmt.Errorf("interact: wait: %w", err)
	}
	if !s.valid(ctx) {
		return ErrAborted
	}
	return nil
}
