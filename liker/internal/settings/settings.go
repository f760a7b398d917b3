// Package settings is the user-owned configuration the engine reads on
// start and on every settingsUpdated message.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/feedpilot/liker/internal/pace"
)

// Store keys.
const (
	KeyEnabled        = "enabled"
	KeyProbability    = "actionProbability"
	KeySmartFiltering = "smartFilteringEnabled"
	KeySpeed          = "speedProfile"
)

// DefaultProbability is the action probability used when none is stored.
const DefaultProbability = 70

// Profile selects the pre-click think delay.
type Profile string

const (
	Conservative Profile = "conservative"
	Normal       Profile = "normal"
	Active       Profile = "active"
)

// ParseProfile maps unknown or empty strings to Normal.
func ParseProfile(s string) Profile {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case Conservative, Normal, Active:
		return p
	}
	return Normal
}

// ThinkDelay is the wait before clicking for this profile.
func (p Profile) ThinkDelay() pace.Range {
	switch p {
	case Conservative:
		return pace.Range{Min: 2000 * time.Millisecond, Max: 4000 * time.Millisecond}
	case Active:
		return pace.Range{Min: 300 * time.Millisecond, Max: 800 * time.Millisecond}
	}
	return pace.Range{Min: 1000 * time.Millisecond, Max: 2000 * time.Millisecond}
}

// Settings is the decoded, clamped settings record.
type Settings struct {
	Enabled           bool    `json:"enabled"`
	ActionProbability int     `json:"actionProbability"`
	SmartFiltering    bool    `json:"smartFilteringEnabled"`
	Speed             Profile `json:"speedProfile"`
}

// Defaults are the values seeded into an empty store.
func Defaults() Settings {
	return Settings{
		Enabled:           false,
		ActionProbability: DefaultProbability,
		SmartFiltering:    true,
		Speed:             Normal,
	}
}

// Keys lists the store keys Load reads.
func Keys() []string {
	return []string{KeyEnabled, KeyProbability, KeySmartFiltering, KeySpeed}
}

// Clamp bounds the probability to [0,100] and normalises the profile.
func (s Settings) Clamp() Settings {
	s.ActionProbability = max(0, min(100, s.ActionProbability))
	s.Speed = ParseProfile(string(s.Speed))
	return s
}

// Values renders the settings as store values.
func (s Settings) Values() map[string]any {
	return map[string]any{
		KeyEnabled:        s.Enabled,
		KeyProbability:    s.ActionProbability,
		KeySmartFiltering: s.SmartFiltering,
		KeySpeed:          string(s.Speed),
	}
}

// Decode builds Settings from raw store values. Missing or malformed keys
// keep their default; a stored 0 probability is honoured.
func Decode(raw map[string]json.RawMessage) Settings {
	s := Defaults()
	if v, ok := raw[KeyEnabled]; ok {
		var b bool
		if json.Unmarshal(v, &b) == nil {
			s.Enabled = b
		}
	}
	if v, ok := raw[KeyProbability]; ok {
		if p, ok := decodeInt(v); ok {
			s.ActionProbability = p
		}
	}
	if v, ok := raw[KeySmartFiltering]; ok {
		var b bool
		if json.Unmarshal(v, &b) == nil {
			s.SmartFiltering = b
		}
	}
	if v, ok := raw[KeySpeed]; ok {
		var p string
		if json.Unmarshal(v, &p) == nil {
			s.Speed = Profile(p)
		}
	}
	return s.Clamp()
}

// decodeInt accepts a JSON number or a numeric string, as the popup slider
// stores either. Values are bounded to [0,100] before conversion.
func decodeInt(v json.RawMessage) (int, bool) {
	var f float64
	if json.Unmarshal(v, &f) != nil {
		var str string
		if json.Unmarshal(v, &str) != nil {
			return 0, false
		}
		var err error
		f, err = strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return 0, false
		}
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return int(max(0, min(100, f))), true
}

// Getter reads raw values for keys.
type Getter interface {
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
}

// Load reads and decodes the settings. On error the defaults are returned
// alongside it.
func Load(ctx context.Context, g Getter) (Settings, error) {
	raw, err := g.Get(ctx, Keys()...)
	if err != nil {
		return Defaults(), fmt.Errorf("settings: load: %w", err)
	}
	return Decode(raw), nil
}

// Patch is a partial update, as accepted by PUT /settings.
type Patch struct {
	Enabled           *bool   `json:"enabled,omitempty"`
	ActionProbability *int    `json:"actionProbability,omitempty"`
	SmartFiltering    *bool   `json:"smartFilteringEnabled,omitempty"`
	Speed             *string `json:"speedProfile,omitempty"`
}

// Apply returns s with the set fields of p, clamped.
func (p Patch) Apply(s Settings) Settings {
	if p.Enabled != nil {
		s.Enabled = *p.Enabled
	}
	if p.ActionProbability != nil {
		s.ActionProbability = *p.ActionProbability
	}
	if p.SmartFiltering != nil {
		s.SmartFiltering = *p.SmartFiltering
	}
	if p.Speed != nil {
		s.Speed = Profile(*p.Speed)
	}
	return s.Clamp()
}
