package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/latoulicious/nekobeat/pkg/failure"
)

// DefaultRecentCapacity is the recent-failure window size used when none is configured
const DefaultRecentCapacity = 50

// Method identifies how a track was played
type Method int

const (
	MethodDirect Method = iota
	MethodPooledFallback
)

func (m Method) String() string {
	switch m {
	case MethodDirect:
		return "direct"
	case MethodPooledFallback:
		return "pooled-fallback"
	default:
		return "unknown"
	}
}

// FailureRecord is one entry of the recent-failure window
type FailureRecord struct {
	Timestamp time.Time         `json:"timestamp"`
	GuildID   string            `json:"guild_id,omitempty"`
	TrackID   string            `json:"track_id,omitempty"`
	Title     string            `json:"title,omitempty"`
	Method    string            `json:"method"`
	Kind      string            `json:"kind"`
	Message   string            `json:"message"`
	Detail    map[string]string `json:"detail,omitempty"`
}

// Snapshot is an immutable copy of the playback counters
type Snapshot struct {
	DirectAttempts    int64            `json:"direct_attempts"`
	DirectSuccesses   int64            `json:"direct_successes"`
	FallbackAttempts  int64            `json:"fallback_attempts"`
	FallbackSuccesses int64            `json:"fallback_successes"`
	Cancellations     int64            `json:"cancellations"`
	ErrorCounts       map[string]int64 `json:"error_counts"`
	TakenAt           time.Time        `json:"taken_at"`
}

// ErrorMetrics aggregates failures per kind for admin reporting
type ErrorMetrics struct {
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
	Recent []FailureRecord  `json:"recent"`
}

// FailureHook observes every recorded failure
type FailureHook func(FailureRecord, *failure.ErrorInfo)

// Registry holds monotonically increasing playback counters and the recent
// failure window. Counters are atomic; the window has its own lock.
type Registry struct {
	directAttempts    atomic.Int64
	directSuccesses   atomic.Int64
	fallbackAttempts  atomic.Int64
	fallbackSuccesses atomic.Int64
	cancellations     atomic.Int64
	errorCounts       [4]atomic.Int64

	recent *Ring

	hookMu sync.RWMutex
	hooks  []FailureHook
}

// NewRegistry creates a registry whose failure window holds capacity entries
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &Registry{recent: NewRing(capacity)}
}

// OnFailure registers a hook invoked synchronously for each recorded failure
func (r *Registry) OnFailure(hook FailureHook) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()
	r.hooks = append(r.hooks, hook)
}

func (r *Registry) RecordDirectAttempt() { r.directAttempts.Add(1) }
func (r *Registry) RecordDirectSuccess() { r.directSuccesses.Add(1) }
func (r *Registry) RecordFallbackAttempt() { r.fallbackAttempts.Add(1) }
func (r *Registry) RecordFallbackSuccess() { r.fallbackSuccesses.Add(1) }
func (r *Registry) RecordCancellation() { r.cancellations.Add(1) }

// RecordFailure counts the failure by kind and appends it to the window
func (r *Registry) RecordFailure(record FailureRecord, info *failure.ErrorInfo) {
	kind := failure.KindUnknown
	if info != nil {
		kind = info.Kind
		record.Kind = info.Kind.String()
		if record.Message == "" {
			record.Message = info.Error()
		}
		if len(info.Detail) > 0 {
			record.Detail = make(map[string]string, len(info.Detail))
			for k, v := range info.Detail {
				record.Detail[k] = v
			}
		}
	} else {
		record.Kind = kind.String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	r.errorCounts[kindIndex(kind)].Add(1)
	r.recent.Push(record)

	r.hookMu.RLock()
	hooks := r.hooks
	r.hookMu.RUnlock()
	for _, hook := range hooks {
		hook(record, info)
	}
}

// ErrorCount returns the number of failures recorded for kind
func (r *Registry) ErrorCount(kind failure.Kind) int64 {
	return r.errorCounts[kindIndex(kind)].Load()
}

// Snapshot returns a copy of all counters
func (r *Registry) Snapshot() Snapshot {
	counts := make(map[string]int64, len(failure.Kinds))
	for _, kind := range failure.Kinds {
		counts[kind.String()] = r.ErrorCount(kind)
	}
	return Snapshot{
		DirectAttempts:    r.directAttempts.Load(),
		DirectSuccesses:   r.directSuccesses.Load(),
		FallbackAttempts:  r.fallbackAttempts.Load(),
		FallbackSuccesses: r.fallbackSuccesses.Load(),
		Cancellations:     r.cancellations.Load(),
		ErrorCounts:       counts,
		TakenAt:           time.Now(),
	}
}

// RecentFailures returns the failure window, oldest first
func (r *Registry) RecentFailures() []FailureRecord {
	return r.recent.Items()
}

// ErrorMetrics returns per-kind counts and the recent failures
func (r *Registry) ErrorMetrics() ErrorMetrics {
	snap := r.Snapshot()
	var total int64
	for _, n := range snap.ErrorCounts {
		total += n
	}
	return ErrorMetrics{
		Counts: snap.ErrorCounts,
		Total:  total,
		Recent: r.RecentFailures(),
	}
}

func kindIndex(kind failure.Kind) int {
	switch kind {
	case failure.KindRateLimited:
		return 1
	case failure.KindAuthRequired:
		return 2
	case failure.KindWorkerUnavailable:
		return 3
	default:
		return 0
	}
}
