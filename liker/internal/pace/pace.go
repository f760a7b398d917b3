// Package pace holds the randomness and waiting primitives every timed step
// of the engine goes through, so pacing and jitter stay deterministic under
// test.
package pace

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Rand is the random source. *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// NewRand returns a goroutine-safe PCG source. A zero seed picks a random one.
func NewRand(seed uint64) Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// Range is a closed interval of durations.
type Range struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// Draw returns a uniformly distributed duration in [Min, Max].
func (r Range) Draw(src Rand) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	span := float64(r.Max - r.Min)
	return r.Min + time.Duration(src.Float64()*span)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
