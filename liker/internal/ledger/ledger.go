// Package ledger remembers which feed items were already evaluated during
// the current page lifetime.
package ledger

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/hazyhaar/feedpilot/idgen"
	"github.com/hazyhaar/feedpilot/liker/internal/dom"
)

// ID identifies a feed item. It is never persisted.
type ID string

// textPrefix is how many runes of item text go into a positional ID.
const textPrefix = 50

// fallbackID mints IDs for items that expose neither an id attribute nor
// a measurable box. Those items are never deduplicated.
var fallbackID = idgen.Prefixed("fallback-", idgen.Default)

// IDFor derives the item's ID: the id attribute when present, else the
// floored top offset joined with the first runes of its whitespace-free
// text.
func IDFor(ctx context.Context, item dom.Element, attr string) ID {
	if attr != "" {
		if v, ok, err := item.Attribute(ctx, attr); err == nil && ok && v != "" {
			return ID(v)
		}
	}
	r, err := item.Rect(ctx)
	if err != nil {
		return ID(fallbackID())
	}
	txt, err := item.Text(ctx)
	if err != nil {
		return ID(fallbackID())
	}
	return ID(fmt.Sprintf("%d-%s", int64(math.Floor(r.Top)), compact(txt, textPrefix)))
}

// compact keeps the first n runes of s, then strips whitespace from them.
func compact(s string, n int) string {
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count == n {
			break
		}
		count++
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Ledger is a grow-only set of IDs.
type Ledger struct {
	mu   sync.Mutex
	seen map[ID]struct{}
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{seen: make(map[ID]struct{})}
}

func (l *Ledger) HasSeen(id ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[id]
	return ok
}

func (l *Ledger) MarkSeen(id ID) {
	l.mu.Lock()
	l.seen[id] = struct{}{}
	l.mu.Unlock()
}

// SeenOnce inserts id and reports whether it was new. The scan loop uses
// it so check and insert cannot be separated by a suspension point.
func (l *Ledger) SeenOnce(id ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[id]; ok {
		return false
	}
	l.seen[id] = struct{}{}
	return true
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
