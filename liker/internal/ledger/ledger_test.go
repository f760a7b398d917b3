package ledger

import (
	"context"
	"strings"
	"testing"

	"github.com/hazyhaar/feedpilot/liker/internal/dom"
	"github.com/hazyhaar/feedpilot/liker/internal/dom/domtest"
)

func TestIDFor_Attribute(t *testing.T) {
	item := domtest.Item("urn:li:activity:42", "A", 10)
	if got := IDFor(context.Background(), item, "data-id"); got != "urn:li:activity:42" {
		t.Fatalf("got %q", got)
	}
}

func TestIDFor_Positional(t *testing.T) {
	item := &domtest.Node{
		Box:     dom.Rect{Top: 123.9, Height: 300},
		Content: "Hello  world\n" + strings.Repeat("x", 80),
	}
	got := string(IDFor(context.Background(), item, "data-id"))
	want := "123-Helloworld" + strings.Repeat("x", 37)
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIDFor_PositionalTruncatesBeforeStripping(t *testing.T) {
	item := &domtest.Node{
		Box:     dom.Rect{Top: 7, Height: 300},
		Content: strings.Repeat(" ", 45) + "abcdefghij",
	}
	if got, want := string(IDFor(context.Background(), item, "data-id")), "7-abcde"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	blank := &domtest.Node{
		Box:     dom.Rect{Top: 7, Height: 300},
		Content: strings.Repeat("\n", 50) + "tail",
	}
	if got, want := string(IDFor(context.Background(), blank, "data-id")), "7-"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestIDFor_Fallback(t *testing.T) {
	item := &domtest.Node{Err: dom.ErrDetached}
	a := IDFor(context.Background(), item, "data-id")
	b := IDFor(context.Background(), item, "data-id")
	if !strings.HasPrefix(string(a), "fallback-") {
		t.Fatalf("got %q, want fallback- prefix", a)
	}
	if a == b {
		t.Fatal("fallback ids must be unique")
	}
}

func TestLedger_SeenOnce(t *testing.T) {
	l := New()
	if !l.SeenOnce("x") {
		t.Fatal("first sight must be new")
	}
	if l.SeenOnce("x") {
		t.Fatal("second sight must be a no-op")
	}
	if !l.HasSeen("x") || l.HasSeen("y") {
		t.Fatal("HasSeen mismatch")
	}
	l.MarkSeen("y")
	l.MarkSeen("y")
	if got := l.Len(); got != 2 {
		t.Fatalf("len: got %d, want 2", got)
	}
}
