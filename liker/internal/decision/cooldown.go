package decision

import (
	"sync"
	"time"
)

// DefaultCooldown is how long an author stays off-limits after an action.
const DefaultCooldown = 30 * time.Minute

// Cooldown tracks the last action time per author display name. It lives
// as long as the page and is never persisted.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	last   map[string]time.Time
}

// NewCooldown creates a tracker. window <= 0 uses DefaultCooldown; now may
// be nil.
func NewCooldown(window time.Duration, now func() time.Time) *Cooldown {
	if window <= 0 {
		window = DefaultCooldown
	}
	if now == nil {
		now = time.Now
	}
	return &Cooldown{window: window, now: now, last: make(map[string]time.Time)}
}

// Active reports whether author was acted on within the window. An expired
// entry is removed.
func (c *Cooldown) Active(author string) bool {
	if author == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.last[author]
	if !ok {
		return false
	}
	if c.now().Sub(at) >= c.window {
		delete(c.last, author)
		return false
	}
	return true
}

// Mark records an action toward author now and drops stale entries.
func (c *Cooldown) Mark(author string) {
	if author == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for a, at := range c.last {
		if now.Sub(at) >= c.window {
			delete(c.last, a)
		}
	}
	c.last[author] = now
}

// Len returns the number of tracked authors, expired ones included until
// the next eviction.
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
