package settings

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func raw(kv map[string]string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(kv))
	for k, v := range kv {
		out[k] = json.RawMessage(v)
	}
	return out
}

func TestDecode_Defaults(t *testing.T) {
	got := Decode(nil)
	if got != Defaults() {
		t.Fatalf("got %+v, want %+v", got, Defaults())
	}
	if got.ActionProbability != 70 || got.Speed != Normal || !got.SmartFiltering || got.Enabled {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestDecode_Values(t *testing.T) {
	got := Decode(raw(map[string]string{
		KeyEnabled:        `true`,
		KeyProbability:    `"35"`,
		KeySmartFiltering: `false`,
		KeySpeed:          `"active"`,
	}))
	want := Settings{Enabled: true, ActionProbability: 35, SmartFiltering: false, Speed: Active}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDecode_ZeroProbabilityHonoured(t *testing.T) {
	if got := Decode(raw(map[string]string{KeyProbability: `0`})); got.ActionProbability != 0 {
		t.Fatalf("got %d, want 0", got.ActionProbability)
	}
}

func TestDecode_Malformed(t *testing.T) {
	got := Decode(raw(map[string]string{
		KeyEnabled:     `"yes"`,
		KeyProbability: `"lots"`,
		KeySpeed:       `"warp"`,
	}))
	if got != Defaults() {
		t.Fatalf("got %+v, want defaults", got)
	}
}

func TestDecode_ProbabilityOutOfRange(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{`1e20`, 100},
		{`-1e20`, 0},
		{`"99999999999999999999"`, 100},
		{`"-99999999999999999999"`, 0},
		{`"42.7"`, 42},
		{`" 60 "`, 60},
	}
	for _, c := range cases {
		got := Decode(raw(map[string]string{KeyProbability: c.in})).ActionProbability
		if got != c.want {
			t.Fatalf("%s: got %d, want %d", c.in, got, c.want)
		}
	}
	if got := Decode(raw(map[string]string{KeyProbability: `"NaN"`})); got.ActionProbability != Defaults().ActionProbability {
		t.Fatalf("NaN: got %d, want default", got.ActionProbability)
	}
}

func TestClamp(t *testing.T) {
	if got := (Settings{ActionProbability: 250}).Clamp().ActionProbability; got != 100 {
		t.Fatalf("high: got %d", got)
	}
	if got := (Settings{ActionProbability: -3}).Clamp().ActionProbability; got != 0 {
		t.Fatalf("low: got %d", got)
	}
}

func TestThinkDelay(t *testing.T) {
	cases := map[Profile]time.Duration{
		Conservative: 2 * time.Second,
		Normal:       time.Second,
		Active:       300 * time.Millisecond,
	}
	for p, wantMin := range cases {
		if got := p.ThinkDelay().Min; got != wantMin {
			t.Errorf("%s: got min %v, want %v", p, got, wantMin)
		}
	}
}

type getterFunc func(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)

func (f getterFunc) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	return f(ctx, keys...)
}

func TestLoad_StoreFailure(t *testing.T) {
	g := getterFunc(func(context.Context, ...string) (map[string]json.RawMessage, error) {
		return nil, errors.New("locked")
	})
	s, err := Load(context.Background(), g)
	if err == nil {
		t.Fatal("expected error")
	}
	if s != Defaults() {
		t.Fatalf("got %+v, want defaults", s)
	}
}

func TestPatch_Apply(t *testing.T) {
	p := 140
	on := true
	got := Patch{ActionProbability: &p, Enabled: &on}.Apply(Defaults())
	if !got.Enabled || got.ActionProbability != 100 || !got.SmartFiltering {
		t.Fatalf("got %+v", got)
	}
}
