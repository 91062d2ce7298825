package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if id[14] != '7' {
		t.Fatalf("UUIDv7: version nibble = %q, want '7' in %q", id[14], id)
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		id := gen()
		if id <= prev {
			t.Fatalf("UUIDv7: %q not after %q", id, prev)
		}
		prev = id
	}
}

func TestPrefixed(t *testing.T) {
	for _, tc := range []struct {
		gen    Generator
		prefix string
	}{
		{Session, "ses_"},
		{Upload, "upl_"},
	} {
		id := tc.gen()
		if !strings.HasPrefix(id, tc.prefix) {
			t.Errorf("got %q, want prefix %q", id, tc.prefix)
		}
		if len(id) != len(tc.prefix)+36 {
			t.Errorf("len(%q) = %d, want %d", id, len(id), len(tc.prefix)+36)
		}
	}
}
