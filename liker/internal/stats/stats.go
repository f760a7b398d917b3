// Package stats counts viewed items and actions per calendar day and keeps
// the session start time.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hazyhaar/feedpilot/liker/internal/store"
)

// Store keys.
const (
	KeyViewed       = "itemsViewedToday"
	KeyActed        = "actionsTakenToday"
	KeyLastReset    = "lastResetDate"
	KeySessionStart = "sessionStartTime"
)

// DateLayout formats LastResetDate.
const DateLayout = "2006-01-02"

// Stats are the daily counters.
type Stats struct {
	ItemsViewedToday  int    `json:"itemsViewedToday"`
	ActionsTakenToday int    `json:"actionsTakenToday"`
	LastResetDate     string `json:"lastResetDate"`
}

// Session is the current enabled period. A zero StartTime means none.
type Session struct {
	StartTime time.Time `json:"startTime"`
}

// Active reports whether a session is running.
func (s Session) Active() bool { return !s.StartTime.IsZero() }

// Today formats now in local time.
func Today(now time.Time) string { return now.Local().Format(DateLayout) }

// Notifier receives the counters after each successful persist.
type Notifier func(ctx context.Context, viewed, acted int)

// Tracker owns the counters of one engine instance.
type Tracker struct {
	kv     store.KV
	now    func() time.Time
	notify Notifier

	mu      sync.Mutex
	cur     Stats
	session Session
	// rolled is set when a rollover cleared the session in memory and the
	// stored session still has to be cleared.
	rolled bool
}

// NewTracker creates a tracker. now and notify may be nil.
func NewTracker(kv store.KV, now func() time.Time, notify Notifier) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{kv: kv, now: now, notify: notify, cur: Stats{LastResetDate: Today(now())}}
}

// Load reads the counters, resetting and writing them back when the stored
// date is not today. Counters stay at zero on error.
func (t *Tracker) Load(ctx context.Context) error {
	raw, err := t.kv.Get(ctx, KeyViewed, KeyActed, KeyLastReset, KeySessionStart)
	if err != nil {
		return fmt.Errorf("stats: load: %w", err)
	}
	today := Today(t.now())
	s := decode(raw)

	t.mu.Lock()
	rolled := s.LastResetDate != today
	if rolled {
		s = Stats{LastResetDate: today}
	}
	t.cur = s
	t.session = decodeSession(raw[KeySessionStart])
	if rolled {
		t.session = Session{}
	}
	t.mu.Unlock()

	if rolled {
		if err := t.kv.Set(ctx, resetValues(today)); err != nil {
			return fmt.Errorf("stats: reset: %w", err)
		}
	}
	return nil
}

// Viewed counts one evaluated item.
func (t *Tracker) Viewed() {
	t.mu.Lock()
	t.rollLocked()
	t.cur.ItemsViewedToday++
	t.mu.Unlock()
}

// Acted counts one completed action.
func (t *Tracker) Acted() {
	t.mu.Lock()
	t.rollLocked()
	t.cur.ActionsTakenToday++
	t.mu.Unlock()
}

func (t *Tracker) rollLocked() {
	if today := Today(t.now()); t.cur.LastResetDate != today {
		t.cur = Stats{LastResetDate: today}
		t.session = Session{}
		t.rolled = true
	}
}

// Snapshot returns today's counters.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()
	return t.cur
}

// Session returns the session. It is cleared when the day changes.
func (t *Tracker) Session() Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollLocked()
	return t.session
}

// Persist rolls the counters over if the day changed, writes them with
// their date, then notifies.
func (t *Tracker) Persist(ctx context.Context) error {
	t.mu.Lock()
	t.rollLocked()
	s := t.cur
	values := map[string]any{
		KeyViewed:    s.ItemsViewedToday,
		KeyActed:     s.ActionsTakenToday,
		KeyLastReset: s.LastResetDate,
	}
	rolled := t.rolled
	if rolled {
		values[KeySessionStart] = nil
	}
	t.mu.Unlock()

	if err := t.kv.Set(ctx, values); err != nil {
		return fmt.Errorf("stats: persist: %w", err)
	}
	if rolled {
		t.mu.Lock()
		t.rolled = false
		t.mu.Unlock()
	}
	if t.notify != nil {
		t.notify(ctx, s.ItemsViewedToday, s.ActionsTakenToday)
	}
	return nil
}

// StartSession records the session start, if none is running.
func (t *Tracker) StartSession(ctx context.Context) error {
	t.mu.Lock()
	if t.session.Active() {
		t.mu.Unlock()
		return nil
	}
	start := t.now()
	t.session = Session{StartTime: start}
	t.mu.Unlock()

	if err := t.kv.Set(ctx, map[string]any{KeySessionStart: start.UnixMilli()}); err != nil {
		return fmt.Errorf("stats: start session: %w", err)
	}
	return nil
}

// EndSession clears the session.
func (t *Tracker) EndSession(ctx context.Context) error {
	t.mu.Lock()
	t.session = Session{}
	t.mu.Unlock()
	if err := t.kv.Set(ctx, map[string]any{KeySessionStart: nil}); err != nil {
		return fmt.Errorf("stats: end session: %w", err)
	}
	return nil
}

// ResetIfStale zeroes the stored counters and clears the session when the
// stored date is not today, whether or not an engine is running. It
// reports whether a reset happened.
func ResetIfStale(ctx context.Context, kv store.KV, now time.Time) (bool, error) {
	raw, err := kv.Get(ctx, KeyLastReset)
	if err != nil {
		return false, fmt.Errorf("stats: rollover check: %w", err)
	}
	today := Today(now)
	if decode(raw).LastResetDate == today {
		return false, nil
	}
	values := resetValues(today)
	values[KeySessionStart] = nil
	if err := kv.Set(ctx, values); err != nil {
		return false, fmt.Errorf("stats: rollover: %w", err)
	}
	return true, nil
}

// Read decodes the stored counters without rollover.
func Read(ctx context.Context, kv store.KV) (Stats, Session, error) {
	raw, err := kv.Get(ctx, KeyViewed, KeyActed, KeyLastReset, KeySessionStart)
	if err != nil {
		return Stats{}, Session{}, fmt.Errorf("stats: read: %w", err)
	}
	return decode(raw), decodeSession(raw[KeySessionStart]), nil
}

func resetValues(today string) map[string]any {
	return map[string]any{KeyViewed: 0, KeyActed: 0, KeyLastReset: today}
}

func decode(raw map[string]json.RawMessage) Stats {
	var s Stats
	if v, ok := raw[KeyViewed]; ok {
		_ = json.Unmarshal(v, &s.ItemsViewedToday)
	}
	if v, ok := raw[KeyActed]; ok {
		_ = json.Unmarshal(v, &s.ActionsTakenToday)
	}
	if v, ok := raw[KeyLastReset]; ok {
		_ = json.Unmarshal(v, &s.LastResetDate)
	}
	s.ItemsViewedToday = max(0, s.ItemsViewedToday)
	s.ActionsTakenToday = max(0, s.ActionsTakenToday)
	return s
}

func decodeSession(v json.RawMessage) Session {
	var ms *int64
	if len(v) == 0 || json.Unmarshal(v, &ms) != nil || ms == nil {
		return Session{}
	}
	return Session{StartTime: time.UnixMilli(*ms)}
}
