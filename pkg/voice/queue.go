package voice

import (
	"sync"
	"sync/atomic"
)

// SegmentQueue is a fixed-capacity queue that never blocks its producer: when
// full, the oldest segment is dropped to admit the new one. A pipeline's
// consumer takes a segment off before waiting on the shared Limiter, so a tenant
// buffers at most capacity+1 segments; the held one is never dropped.
type SegmentQueue struct {
	ch      chan Segment
	pushMu  sync.Mutex
	dropped atomic.Int64
}

// NewSegmentQueue creates a queue holding at most capacity segments
func NewSegmentQueue(capacity int) *SegmentQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &SegmentQueue{ch: make(chan Segment, capacity)}
}

// Push enqueues seg and reports whether an older segment was dropped for it
func (q *SegmentQueue) Push(seg Segment) bool {
	q.pushMu.Lock()
	defer q.pushMu.Unlock()

	dropped := false
	for {
		select {
		case q.ch <- seg:
			return dropped
		default:
		}

		// full: evict the head, unless the consumer just took it
		select {
		case <-q.ch:
			dropped = true
			q.dropped.Add(1)
		default:
		}
	}
}

// C is the consumer side of the queue
func (q *SegmentQueue) C() <-chan Segment {
	return q.ch
}

// Len returns the number of queued segments
func (q *SegmentQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity
func (q *SegmentQueue) Cap() int {
	return cap(q.ch)
}

// Dropped returns how many segments were evicted to make room
func (q *SegmentQueue) Dropped() int64 {
	return q.dropped.Load()
}

// Drain empties the queue without processing
func (q *SegmentQueue) Drain() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}
