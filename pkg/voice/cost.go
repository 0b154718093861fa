package voice

import (
	"sync"
	"time"
)

// DefaultCostPerMinute is the recognition price used when none is configured
const DefaultCostPerMinute = 0.006

// CostSnapshot is a copy of the recognition usage counters
type CostSnapshot struct {
	Calls         int64         `json:"calls"`
	Processed     time.Duration `json:"processed"`
	EstimatedCost float64       `json:"estimated_cost"`
	RatePerMinute float64       `json:"rate_per_minute"`
	Since         time.Time     `json:"since"`
}

// CostTracker accumulates processed audio and its estimated price
type CostTracker struct {
	mu            sync.Mutex
	ratePerMinute float64
	calls         int64
	processed     time.Duration
	since         time.Time
}

// NewCostTracker creates a tracker billing ratePerMinute per minute of audio
func NewCostTracker(ratePerMinute float64) *CostTracker {
	if ratePerMinute < 0 {
		ratePerMinute = DefaultCostPerMinute
	}
	return &CostTracker{ratePerMinute: ratePerMinute, since: time.Now()}
}

// Add records one recognition call over d of audio
func (c *CostTracker) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.processed += d
}

// Snapshot returns the counters accumulated since the last reset
func (c *CostTracker) Snapshot() CostSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CostSnapshot{
		Calls:         c.calls,
		Processed:     c.processed,
		EstimatedCost: c.processed.Minutes() * c.ratePerMinute,
		RatePerMinute: c.ratePerMinute,
		Since:         c.since,
	}
}

// Reset zeroes the counters
func (c *CostTracker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = 0
	c.processed = 0
	c.since = time.Now()
}
