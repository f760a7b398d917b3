// Package config loads the feedpilot YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/feedpilot/liker/internal/browser"
	"github.com/hazyhaar/feedpilot/liker/internal/interact"
	"github.com/hazyhaar/feedpilot/liker/internal/locator"
	"github.com/hazyhaar/feedpilot/liker/internal/pace"
)

// Config is the top-level configuration.
type Config struct {
	Browser browser.Config  `yaml:"browser"`
	Feed    FeedConfig      `yaml:"feed"`
	Store   StoreConfig     `yaml:"store"`
	Control ControlConfig   `yaml:"control"`
	Timing  TimingConfig    `yaml:"timing"`
	Limits  LimitsConfig    `yaml:"limits"`
	Locator locator.Locator `yaml:"locator"`
	Journal JournalConfig   `yaml:"journal"`
	// Seed pins the random source; 0 picks one at startup.
	Seed uint64 `yaml:"seed"`
}

// FeedConfig is the page the engine works on.
type FeedConfig struct {
	URL string `yaml:"url"`
}

// StoreConfig locates the settings database.
type StoreConfig struct {
	Path string `yaml:"path"`
	// Trace logs every SQL statement through the sqlite-trace driver.
	Trace bool `yaml:"trace"`
	// SlowQuery is the traced duration logged at Warn.
	SlowQuery time.Duration `yaml:"slow_query"`
}

// ControlConfig exposes the control surfaces.
type ControlConfig struct {
	// Addr is the HTTP listen address; empty disables the API.
	Addr string `yaml:"addr"`
	// MCP serves the MCP tools on stdio.
	MCP bool `yaml:"mcp"`
}

// TimingConfig holds every delay and window.
type TimingConfig struct {
	MutationDebounce time.Duration `yaml:"mutation_debounce"`
	ScrollDebounce   time.Duration `yaml:"scroll_debounce"`
	Tick             time.Duration `yaml:"tick"`
	InitialDelay     time.Duration `yaml:"initial_delay"`

	Pacing      pace.Range      `yaml:"pacing"`
	Interaction interact.Timings `yaml:"interaction"`
	Cooldown    time.Duration   `yaml:"cooldown"`

	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	Watchdog         time.Duration `yaml:"watchdog"`
	NavigationSettle time.Duration `yaml:"navigation_settle"`
	HealthCheck      time.Duration `yaml:"health_check"`
	Rollover         time.Duration `yaml:"rollover"`
	SettingsPoll     time.Duration `yaml:"settings_poll"`
	SettingsDebounce time.Duration `yaml:"settings_debounce"`
}

// JournalConfig controls the action journal.
type JournalConfig struct {
	// Retention is how long entries are kept. Defaults to 30 days.
	Retention time.Duration `yaml:"retention"`
}

// LimitsConfig bounds the action rate.
type LimitsConfig struct {
	// ActionsPerHour caps actions; unset means 120, 0 disables the cap.
	ActionsPerHour *int `yaml:"actions_per_hour"`
	Burst          int  `yaml:"burst"`
}

// PerHour resolves ActionsPerHour.
func (l LimitsConfig) PerHour() int {
	if l.ActionsPerHour == nil {
		return 120
	}
	return max(0, *l.ActionsPerHour)
}

// LoadFile reads a YAML file and fills defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and fills defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default is the configuration used without a file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = browser.ModeHeadless
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Feed.URL == "" {
		c.Feed.URL = "https://www.linkedin.com/feed/"
	}
	if c.Store.Path == "" {
		c.Store.Path = "feedpilot.db"
	}
	setDefault(&c.Store.SlowQuery, 100*time.Millisecond)

	t := &c.Timing
	setDefault(&t.MutationDebounce, time.Second)
	setDefault(&t.ScrollDebounce, 500*time.Millisecond)
	setDefault(&t.Tick, 4*time.Second)
	setDefault(&t.InitialDelay, time.Second)
	if t.Pacing.Max <= 0 {
		t.Pacing = pace.Range{Min: 3 * time.Second, Max: 8 * time.Second}
	}
	def := interact.DefaultTimings()
	setDefault(&t.Interaction.Settle, def.Settle)
	if t.Interaction.EventGap.Max <= 0 {
		t.Interaction.EventGap = def.EventGap
	}
	if t.Interaction.Final.Max <= 0 {
		t.Interaction.Final = def.Final
	}
	if t.Interaction.Jitter <= 0 {
		t.Interaction.Jitter = def.Jitter
	}
	setDefault(&t.Cooldown, 30*time.Minute)
	setDefault(&t.ProbeTimeout, 2*time.Second)
	setDefault(&t.Watchdog, 3*time.Second)
	setDefault(&t.NavigationSettle, 2*time.Second)
	setDefault(&t.HealthCheck, 5*time.Minute)
	setDefault(&t.Rollover, time.Hour)
	setDefault(&t.SettingsPoll, 200*time.Millisecond)
	setDefault(&t.SettingsDebounce, 500*time.Millisecond)

	if c.Limits.Burst <= 0 {
		c.Limits.Burst = 10
	}
	c.Locator = c.Locator.Merge(locator.Default())
	setDefault(&c.Journal.Retention, 30*24*time.Hour)
}

func setDefault(d *time.Duration, v time.Duration) {
	if *d <= 0 {
		*d = v
	}
}
