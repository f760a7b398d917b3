package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
}

func TestUUIDv7_Uniqueness(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("UUIDv7: duplicate at iteration %d", i)
		}
		seen[id] = struct{}{}
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("eng_", UUIDv7())()
	if !strings.HasPrefix(id, "eng_") {
		t.Fatalf("Prefixed: got %q, want eng_ prefix", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "eng_")); err != nil {
		t.Fatalf("Prefixed: inner id not a UUID: %v", err)
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("pass")
	if got := gen(); got != "pass-1" {
		t.Fatalf("first: got %q, want pass-1", got)
	}
	if got := gen(); got != "pass-2" {
		t.Fatalf("second: got %q, want pass-2", got)
	}
}
