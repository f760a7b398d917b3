// Package decision decides, per feed item, whether to act. Three gates run
// in order and short-circuit: already acted, author cooldown, probability.
package decision

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/feedpilot/liker/internal/dom"
	"github.com/hazyhaar/feedpilot/liker/internal/locator"
	"github.com/hazyhaar/feedpilot/liker/internal/pace"
	"github.com/hazyhaar/feedpilot/liker/internal/settings"
)

// Verdict is the outcome of Decide.
type Verdict uint8

const (
	Act Verdict = iota
	// NoControl marks a view-only item: no like control was found.
	NoControl
	AlreadyActed
	CoolingDown
	// Skipped means the probability draw said no.
	Skipped
)

func (v Verdict) String() string {
	switch v {
	case Act:
		return "act"
	case NoControl:
		return "no_control"
	case AlreadyActed:
		return "already_acted"
	case CoolingDown:
		return "cooling_down"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Decision carries the verdict and what was resolved on the way.
type Decision struct {
	Verdict Verdict
	Control dom.Element
	Author  string
}

// Decider evaluates the gates. Selectors come from the locator; the only
// randomness is rng.
type Decider struct {
	loc    locator.Locator
	rng    pace.Rand
	logger *slog.Logger
}

// New creates a Decider. logger may be nil.
func New(loc locator.Locator, rng pace.Rand, logger *slog.Logger) *Decider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decider{loc: loc, rng: rng, logger: logger}
}

// Decide runs the gates for item. The author is resolved whenever a
// control exists so the caller can mark the cooldown after acting.
func (d *Decider) Decide(ctx context.Context, item dom.Element, s settings.Settings, cd *Cooldown) Decision {
	control := d.loc.Control(ctx, item)
	if control == nil {
		return Decision{Verdict: NoControl}
	}
	dec := Decision{Control: control}

	if d.AlreadyActed(ctx, control) {
		dec.Verdict = AlreadyActed
		return dec
	}

	if s.SmartFiltering {
		dec.Author = d.loc.Author(ctx, item)
		if cd != nil && cd.Active(dec.Author) {
			d.logger.Debug("decision: author cooling down", "author", dec.Author)
			dec.Verdict = CoolingDown
			return dec
		}
	}

	if !d.ProbabilityGate(s.ActionProbability) {
		dec.Verdict = Skipped
		return dec
	}
	dec.Verdict = Act
	return dec
}

// ShouldAct is Decide reduced to a boolean.
func (d *Decider) ShouldAct(ctx context.Context, item dom.Element, s settings.Settings, cd *Cooldown) bool {
	return d.Decide(ctx, item, s, cd).Verdict == Act
}

// AlreadyActed reports whether the control shows the pressed state.
func (d *Decider) AlreadyActed(ctx context.Context, control dom.Element) bool {
	return d.loc.Pressed(ctx, control)
}

// ProbabilityGate draws a uniform value in [0,100) and passes when it is
// below p.
func (d *Decider) ProbabilityGate(p int) bool {
	return d.rng.Float64()*100 < float64(p)
}
