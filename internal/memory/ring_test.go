package memory

import (
	"testing"

	"github.com/clocktower/storytellerdm/internal/storyteller"
)

func TestRingEvictsOldestOnOverflow(t *testing.T) {
	r := newRing(3)
	entries := []string{"A", "B", "C", "D"}
	var lastEvicted string
	var evictedCount int
	for _, id := range entries {
		evicted, didEvict := r.push(storyteller.MemoryEntry{ID: id})
		if didEvict {
			lastEvicted = evicted.ID
			evictedCount++
		}
	}
	if evictedCount != 1 {
		t.Fatalf("expected exactly 1 eviction, got %d", evictedCount)
	}
	if lastEvicted != "A" {
		t.Fatalf("expected A to be evicted, got %q", lastEvicted)
	}

	remaining := r.snapshot()
	if len(remaining) != 3 {
		t.Fatalf("expected 3 remaining entries, got %d", len(remaining))
	}
	wantOrder := []string{"B", "C", "D"}
	for i, want := range wantOrder {
		if remaining[i].ID != want {
			t.Fatalf("remaining[%d] = %q, want %q", i, remaining[i].ID, want)
		}
	}
}

func TestRingNewestFirst(t *testing.T) {
	r := newRing(5)
	r.push(storyteller.MemoryEntry{ID: "A"})
	r.push(storyteller.MemoryEntry{ID: "B"})
	r.push(storyteller.MemoryEntry{ID: "C"})

	newest := r.newestFirst()
	want := []string{"C", "B", "A"}
	for i, w := range want {
		if newest[i].ID != w {
			t.Fatalf("newestFirst[%d] = %q, want %q", i, newest[i].ID, w)
		}
	}
}
