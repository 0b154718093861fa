package voice

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter caps concurrent recognition calls across every tenant
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewLimiter allows at most n concurrent calls
func NewLimiter(n int) *Limiter {
	if n <= 0 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), capacity: int64(n)}
}

// Acquire waits for a slot or until ctx is done
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	current := l.inFlight.Add(1)
	for {
		peak := l.peak.Load()
		if current <= peak || l.peak.CompareAndSwap(peak, current) {
			break
		}
	}
	return nil
}

// Release frees a slot taken by Acquire
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	l.sem.Release(1)
}

// InFlight returns the number of calls holding a slot
func (l *Limiter) InFlight() int64 {
	return l.inFlight.Load()
}

// Peak returns the highest concurrency observed
func (l *Limiter) Peak() int64 {
	return l.peak.Load()
}

// Capacity returns the configured ceiling
func (l *Limiter) Capacity() int64 {
	return l.capacity
}
