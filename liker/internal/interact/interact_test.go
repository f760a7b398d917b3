package interact

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/feedpilot/liker/internal/dom"
	"github.com/hazyhaar/feedpilot/liker/internal/dom/domtest"
)

type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

// recordSleeper records requested waits without sleeping.
type recordSleeper struct{ waits []time.Duration }

func (r *recordSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func button() *domtest.Node {
	return &domtest.Node{
		Attrs: map[string]string{"aria-label": "Like"},
		Box:   dom.Rect{Left: 100, Top: 200, Width: 40, Height: 20},
	}
}

func TestPerform_Sequence(t *testing.T) {
	rec := &recordSleeper{}
	s := New(DefaultTimings(), fixedRand(1), rec.sleep, nil, nil)
	b := button()

	if err := s.Perform(context.Background(), b); err != nil {
		t.Fatal(err)
	}
	if b.Scrolled() != 1 {
		t.Fatalf("scrolled: got %d, want 1", b.Scrolled())
	}

	evs := b.Events()
	kinds := []dom.PointerKind{dom.PointerMove, dom.PointerDown, dom.PointerUp, dom.Click}
	if len(evs) != len(kinds) {
		t.Fatalf("events: got %d, want %d", len(evs), len(kinds))
	}
	for i, k := range kinds {
		if evs[i].Kind != k {
			t.Fatalf("event %d: got %s, want %s", i, evs[i].Kind, k)
		}
		// Center is (120, 210); rng=1 pushes both axes +2px.
		if evs[i].X != 122 || evs[i].Y != 212 || evs[i].Button != 0 {
			t.Fatalf("event %d at (%v,%v) button %d", i, evs[i].X, evs[i].Y, evs[i].Button)
		}
	}

	want := []time.Duration{200 * time.Millisecond, 15 * time.Millisecond, 15 * time.Millisecond, 15 * time.Millisecond, 50 * time.Millisecond}
	if len(rec.waits) != len(want) {
		t.Fatalf("waits: got %v, want %v", rec.waits, want)
	}
	for i := range want {
		if rec.waits[i] != want[i] {
			t.Fatalf("wait %d: got %v, want %v", i, rec.waits[i], want[i])
		}
	}
}

func TestPerform_JitterBounds(t *testing.T) {
	for _, r := range []float64{0, 0.25, 0.5, 0.999} {
		b := button()
		rec := &recordSleeper{}
		if err := New(DefaultTimings(), fixedRand(r), rec.sleep, nil, nil).Perform(context.Background(), b); err != nil {
			t.Fatal(err)
		}
		ev := b.Events()[0]
		if ev.X < 118 || ev.X > 122 || ev.Y < 208 || ev.Y > 212 {
			t.Fatalf("rng %v: point (%v,%v) outside ±2px", r, ev.X, ev.Y)
		}
	}
}

func TestPerform_AbortOnInvalid(t *testing.T) {
	rec := &recordSleeper{}
	b := button()
	valid := func(context.Context) bool { return false }

	err := New(DefaultTimings(), fixedRand(0.5), rec.sleep, valid, nil).Perform(context.Background(), b)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("got %v, want ErrAborted", err)
	}
	if len(b.Events()) != 0 {
		t.Fatalf("events dispatched after invalidation: %v", b.Events())
	}
}

func TestPerform_DispatchError(t *testing.T) {
	rec := &recordSleeper{}
	b := button()
	b.FailOn = dom.PointerUp

	err := New(DefaultTimings(), fixedRand(0.5), rec.sleep, nil, nil).Perform(context.Background(), b)
	var de *DispatchError
	if !errors.As(err, &de) {
		t.Fatalf("got %v, want *DispatchError", err)
	}
	if de.Step != "mouseup" {
		t.Fatalf("step: got %q, want mouseup", de.Step)
	}
	for _, ev := range b.Events() {
		if ev.Kind == dom.Click {
			t.Fatal("click dispatched after a failed mouseup")
		}
	}
}

func TestPerform_MoveFailureTolerated(t *testing.T) {
	rec := &recordSleeper{}
	b := button()
	b.FailOn = dom.PointerMove
	if err := New(DefaultTimings(), fixedRand(0.5), rec.sleep, nil, nil).Perform(context.Background(), b); err != nil {
		t.Fatalf("got %v, want nil", err)
	}
}

func TestPerform_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &recordSleeper{}
	err := New(DefaultTimings(), fixedRand(0.5), rec.sleep, nil, nil).Perform(ctx, button())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
