package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestShouldBlock(t *testing.T) {
	blocked := map[string]bool{"images": true, "fonts": true, "xhr": true}
	cases := []struct {
		t    proto.NetworkResourceType
		want bool
	}{
		{proto.NetworkResourceTypeImage, true},
		{proto.NetworkResourceTypeFont, true},
		{proto.NetworkResourceTypeXHR, true},
		{proto.NetworkResourceTypeStylesheet, false},
		{proto.NetworkResourceTypeDocument, false},
	}
	for _, tc := range cases {
		if got := shouldBlock(blocked, tc.t); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.t, got, tc.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	var c Config
	c.defaults()
	if c.Mode != ModeHeadless || c.XvfbDisplay != ":99" || c.MemoryLimit != 1<<30 || c.Logger == nil {
		t.Fatalf("got %+v", c)
	}
}

func TestSignalsScriptEmbedded(t *testing.T) {
	if len(signalsJS) == 0 {
		t.Fatal("signals.js not embedded")
	}
}

func TestXSocket(t *testing.T) {
	for display, want := range map[string]string{
		":99":  "/tmp/.X11-unix/X99",
		":0.0": "/tmp/.X11-unix/X0",
		"7":    "/tmp/.X11-unix/X7",
	} {
		if got := xSocket(display); got != want {
			t.Errorf("%s: got %q, want %q", display, got, want)
		}
	}
}
