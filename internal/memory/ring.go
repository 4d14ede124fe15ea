package memory

import "github.com/clocktower/storytellerdm/internal/storyteller"

// ring is a fixed-capacity FIFO buffer of short-term memory entries for one
// room. Overflow evicts the oldest entry, which the caller is responsible
// for spilling to long-term storage.
type ring struct {
	capacity int
	entries  []storyteller.MemoryEntry
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{capacity: capacity}
}

// push appends an entry and returns the entry evicted by overflow, if any.
func (r *ring) push(entry storyteller.MemoryEntry) (evicted storyteller.MemoryEntry, didEvict bool) {
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.capacity {
		evicted = r.entries[0]
		r.entries = r.entries[1:]
		didEvict = true
	}
	return evicted, didEvict
}

// newestFirst returns entries in reverse chronological order (most recently
// pushed first), the order RetrieveRelevant's recency-decay scoring expects.
func (r *ring) newestFirst() []storyteller.MemoryEntry {
	out := make([]storyteller.MemoryEntry, len(r.entries))
	for i, e := range r.entries {
		out[len(r.entries)-1-i] = e
	}
	return out
}

func (r *ring) snapshot() []storyteller.MemoryEntry {
	out := make([]storyteller.MemoryEntry, len(r.entries))
	copy(out, r.entries)
	return out
}
