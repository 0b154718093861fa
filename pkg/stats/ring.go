package stats

import "sync"

// Ring is a fixed-capacity window of failure records. Once full, each push
// evicts the oldest entry.
type Ring struct {
	mu    sync.Mutex
	items []FailureRecord
	next  int
	full  bool
}

// NewRing creates a ring holding at most capacity records
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{items: make([]FailureRecord, capacity)}
}

// Push appends a record, overwriting the oldest when full
func (r *Ring) Push(record FailureRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.next] = record
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// Len returns the number of stored records
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.items)
	}
	return r.next
}

// Cap returns the ring capacity
func (r *Ring) Cap() int {
	return len(r.items)
}

// Items returns a copy of the stored records, oldest first
func (r *Ring) Items() []FailureRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]FailureRecord, r.next)
		copy(out, r.items[:r.next])
		return out
	}

	out := make([]FailureRecord, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	out = append(out, r.items[:r.next]...)
	return out
}
