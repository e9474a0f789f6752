package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7Unique(t *testing.T) {
	gen := UUIDv7()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := gen()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("fav_", func() string { return "abc" })
	if got := gen(); got != "fav_abc" {
		t.Fatalf("got %q, want fav_abc", got)
	}
}

func TestNewUsesDefault(t *testing.T) {
	id := New()
	if id == "" || strings.Count(id, "-") != 4 {
		t.Fatalf("id %q is not a UUID", id)
	}
}
