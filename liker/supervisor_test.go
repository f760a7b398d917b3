package liker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/feedpilot/channel"
	"github.com/hazyhaar/feedpilot/dbopen"
	"github.com/hazyhaar/feedpilot/liker/internal/dom/domtest"
	"github.com/hazyhaar/feedpilot/liker/internal/journal"
	"github.com/hazyhaar/feedpilot/liker/internal/settings"
	"github.com/hazyhaar/feedpilot/liker/internal/state"
	"github.com/hazyhaar/feedpilot/liker/internal/stats"
)

func testSupervisor(t *testing.T, opts ...SupervisorOption) (*Supervisor, *channel.Router) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Seed = 1
	cfg.Timing.MutationDebounce = time.Hour
	cfg.Timing.ScrollDebounce = time.Hour
	cfg.Timing.Tick = time.Hour
	cfg.Timing.InitialDelay = time.Hour

	db := dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
	router := channel.New()
	opts = append([]SupervisorOption{WithSleeper(noSleep)}, opts...)
	sup := NewSupervisor(db, router, cfg, opts...)
	if err := sup.Seed(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	t.Cleanup(sup.Close)
	return sup, router
}

func TestSupervisor_SeedKeepsStoredValues(t *testing.T) {
	sup, _ := testSupervisor(t)
	ctx := context.Background()

	got, err := sup.Settings(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if got != settings.Defaults() {
		t.Fatalf("seeded: got %+v, want defaults", got)
	}

	sup.kv.Set(ctx, map[string]any{settings.KeyProbability: 15})
	if err := sup.Seed(ctx); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if got, _ := sup.Settings(ctx); got.ActionProbability != 15 {
		t.Fatalf("reseed overwrote probability: got %d", got.ActionProbability)
	}
}

func TestSupervisor_AttachStartsOneEngine(t *testing.T) {
	sup, router := testSupervisor(t)
	page := domtest.NewPage(feedURL, feed(1)...)

	if err := sup.Attach(context.Background(), page); err != nil {
		t.Fatalf("attach: %v", err)
	}
	eng := sup.Engine()
	if eng == nil || !eng.Valid() {
		t.Fatal("no valid engine after attach")
	}
	if got := ping(t, router); got["contextValid"] != true {
		t.Fatalf("ping: got %v", got)
	}
}

func TestSupervisor_ReinitReplacesEngine(t *testing.T) {
	sup, router := testSupervisor(t)
	page := domtest.NewPage(feedURL, feed(1)...)
	ctx := context.Background()
	sup.Attach(ctx, page)
	first := sup.Engine()

	if err := sup.Reinit(ctx, "test"); err != nil {
		t.Fatalf("reinit: %v", err)
	}
	second := sup.Engine()
	if second == first || second.ID() == first.ID() {
		t.Fatal("engine not replaced")
	}
	if got := ping(t, router); got["status"] != "alive" {
		t.Fatalf("ping after reinit: got %v", got)
	}
}

func TestSupervisor_ReinitWithoutHost(t *testing.T) {
	sup, _ := testSupervisor(t)
	if err := sup.Reinit(context.Background(), "test"); !errors.Is(err, ErrNoHost) {
		t.Fatalf("got %v, want ErrNoHost", err)
	}
}

func TestSupervisor_HealthCheck(t *testing.T) {
	sup, _ := testSupervisor(t)
	page := domtest.NewPage(feedURL, feed(1)...)
	ctx := context.Background()
	sup.Attach(ctx, page)
	first := sup.Engine()

	if !sup.HealthCheck(ctx) {
		t.Fatal("healthy engine reported unhealthy")
	}
	if sup.Engine() != first {
		t.Fatal("healthy engine replaced")
	}

	page.Kill(errors.New("gone"))
	if sup.HealthCheck(ctx) {
		t.Fatal("dead page reported healthy")
	}
	if sup.Engine() == first {
		t.Fatal("engine not replaced after failed health check")
	}
	if sup.Engine().Valid() {
		t.Fatal("replacement engine valid on a dead page")
	}

	page.Revive()
	if err := sup.Reinit(ctx, "recovered"); err != nil {
		t.Fatalf("reinit after revive: %v", err)
	}
	if !sup.HealthCheck(ctx) {
		t.Fatal("revived page reported unhealthy")
	}
}

func TestSupervisor_RolloverResetsStaleDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	sup, _ := testSupervisor(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	sup.kv.Set(ctx, map[string]any{
		stats.KeyViewed:       12,
		stats.KeyActed:        4,
		stats.KeyLastReset:    "2026-03-09",
		stats.KeySessionStart: now.Add(-time.Hour).UnixMilli(),
	})

	if !sup.Rollover(ctx) {
		t.Fatal("stale day not reset")
	}
	st, sess, err := stats.Read(ctx, sup.kv)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := stats.Stats{LastResetDate: "2026-03-10"}
	if st != want {
		t.Fatalf("stats: got %+v, want %+v", st, want)
	}
	if sess.Active() {
		t.Fatal("session not cleared by rollover")
	}
	if sup.Rollover(ctx) {
		t.Fatal("second rollover on the same day reset again")
	}
}

func TestSupervisor_RolloverPrunesJournal(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	sup, _ := testSupervisor(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	sup.journal.Record(ctx, journal.Entry{EngineID: "eng_old", ItemID: "old", At: now.Add(-45 * 24 * time.Hour)})
	sup.journal.Record(ctx, journal.Entry{EngineID: "eng_new", ItemID: "new", At: now.Add(-time.Hour)})

	sup.Rollover(ctx)

	got, err := sup.RecentActions(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].ItemID != "new" {
		t.Fatalf("after prune: got %+v", got)
	}
	st, err := sup.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.ActionsLastHour != 1 {
		t.Fatalf("actions last hour: got %d, want 1", st.ActionsLastHour)
	}
}

func TestSupervisor_RecentActionsAcrossEngines(t *testing.T) {
	sup, _ := testSupervisor(t)
	ctx := context.Background()
	sup.Attach(ctx, domtest.NewPage(feedURL, feed(2)...))

	on, p := true, 100
	if _, err := sup.UpdateSettings(ctx, settings.Patch{Enabled: &on, ActionProbability: &p}); err != nil {
		t.Fatalf("update: %v", err)
	}
	first := sup.Engine()
	runPass(t, first)

	sup.Attach(ctx, domtest.NewPage(feedURL, feed(3)[2]))
	runPass(t, sup.Engine())

	got, err := sup.RecentActions(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("journal: got %d entries, want 3", len(got))
	}
	engines := map[string]int{}
	for _, e := range got {
		engines[e.EngineID]++
	}
	if engines[first.ID()] != 2 || engines[sup.Engine().ID()] != 1 {
		t.Fatalf("entries per engine: got %v", engines)
	}
}

func TestSupervisor_UpdateSettingsDrivesEngine(t *testing.T) {
	sup, _ := testSupervisor(t)
	ctx := context.Background()
	sup.Attach(ctx, domtest.NewPage(feedURL, feed(1)...))

	on := true
	got, err := sup.UpdateSettings(ctx, settings.Patch{Enabled: &on})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !got.Enabled {
		t.Fatal("returned settings not enabled")
	}
	if ph := sup.Engine().State().Phase; ph != state.PhaseIdle {
		t.Fatalf("phase: got %s, want idle", ph)
	}

	off := false
	sup.UpdateSettings(ctx, settings.Patch{Enabled: &off})
	if ph := sup.Engine().State().Phase; ph != state.PhaseDisabled {
		t.Fatalf("phase: got %s, want disabled", ph)
	}
}

func TestSupervisor_SettingsWatcherNotifiesEngine(t *testing.T) {
	sup, _ := testSupervisor(t)
	sup.cfg.Timing.SettingsPoll = 5 * time.Millisecond
	sup.cfg.Timing.SettingsDebounce = 5 * time.Millisecond
	sup.cfg.Timing.Watchdog = time.Hour
	sup.cfg.Timing.HealthCheck = time.Hour
	sup.cfg.Timing.Rollover = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	sup.Attach(ctx, domtest.NewPage(feedURL, feed(1)...))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sup.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	// Give the watcher its baseline before writing.
	time.Sleep(30 * time.Millisecond)
	sup.kv.Set(context.Background(), map[string]any{settings.KeyEnabled: true})

	waitFor(t, func() bool { return sup.Engine().State().Phase == state.PhaseIdle })
}

func TestSupervisor_StatusWithoutEngine(t *testing.T) {
	sup, _ := testSupervisor(t)
	st, err := sup.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Attached || st.Engine != nil || st.Enabled {
		t.Fatalf("status: got %+v", st)
	}
}
