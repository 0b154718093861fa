package queue

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a queue position does not exist
var ErrNotFound = errors.New("queue position not found")

// LoopMode controls what GetNext does at the end of a track or the queue
type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopTrack
	LoopQueue
)

func (m LoopMode) String() string {
	switch m {
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "none"
	}
}

// ParseLoopMode converts user input into a LoopMode
func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off", "":
		return LoopNone, nil
	case "track", "song", "one":
		return LoopTrack, nil
	case "queue", "all":
		return LoopQueue, nil
	default:
		return LoopNone, fmt.Errorf("unknown loop mode %q", s)
	}
}

// Track represents a single queued item. It is never mutated once queued.
type Track struct {
	ID          string
	Title       string
	URL         string // Source locator handed to the stream provider or a worker
	Duration    time.Duration
	RequestedBy string
	AddedAt     time.Time
}

// NewTrack creates a track with a fresh identity
func NewTrack(url, title, requestedBy string, duration time.Duration) *Track {
	return &Track{
		ID:          uuid.NewString(),
		Title:       title,
		URL:         url,
		Duration:    duration,
		RequestedBy: requestedBy,
		AddedAt:     time.Now(),
	}
}

// Queue is the ordered track list of one guild
type Queue struct {
	guildID string
	items   []*Track
	current int
	loop    LoopMode
	mu      sync.RWMutex
	rng     *rand.Rand
}

// New creates an empty queue for a guild
func New(guildID string) *Queue {
	return &Queue{
		guildID: guildID,
		items:   make([]*Track, 0),
		current: -1,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// NewWithSource creates a queue whose shuffle draws from rng
func NewWithSource(guildID string, rng *rand.Rand) *Queue {
	q := New(guildID)
	q.rng = rng
	return q
}

// GuildID returns the owning guild
func (q *Queue) GuildID() string {
	return q.guildID
}

// Add appends a track to the end of the queue
func (q *Queue) Add(track *Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, track)
}

// GetNext moves to and returns the next track, or nil when the queue is exhausted
func (q *Queue) GetNext() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loop == LoopTrack && q.validLocked(q.current) {
		return q.items[q.current]
	}
	return q.advanceLocked()
}

// SkipNext is GetNext ignoring track loop, so a skipped track is left behind
func (q *Queue) SkipNext() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.advanceLocked()
}

func (q *Queue) advanceLocked() *Track {

	next := q.current + 1
	if next >= len(q.items) {
		if q.loop != LoopQueue {
			return nil
		}
		next = 0
	}
	if !q.validLocked(next) {
		return nil
	}

	q.current = next
	return q.items[next]
}

// GetCurrent returns the track at the current position
func (q *Queue) GetCurrent() *Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.validLocked(q.current) {
		return nil
	}
	return q.items[q.current]
}

// GetQueue returns the tracks that have not been played yet
func (q *Queue) GetQueue() []*Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	start := q.current + 1
	if start >= len(q.items) {
		return []*Track{}
	}
	out := make([]*Track, len(q.items)-start)
	copy(out, q.items[start:])
	return out
}

// All returns every track including the ones already played
func (q *Queue) All() []*Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*Track, len(q.items))
	copy(out, q.items)
	return out
}

// CurrentIndex returns the current position, -1 when nothing has started
func (q *Queue) CurrentIndex() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.current
}

// Size returns the number of tracks in the queue
func (q *Queue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Remove deletes the track at index and returns it. Removing at or before the
// current position shifts the position back so playback stays on the same track.
func (q *Queue) Remove(index int) (*Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.items) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, index)
	}

	removed := q.items[index]
	q.items = append(q.items[:index], q.items[index+1:]...)

	if index <= q.current && q.current > 0 {
		q.current--
	}
	if q.current >= len(q.items) {
		q.current = len(q.items) - 1
	}
	return removed, nil
}

// Shuffle permutes the tracks after the current position
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	start := q.current + 1
	if start >= len(q.items)-1 {
		return
	}

	// Fisher-Yates over the unplayed suffix
	suffix := q.items[start:]
	for i := len(suffix) - 1; i > 0; i-- {
		j := q.rng.IntN(i + 1)
		suffix[i], suffix[j] = suffix[j], suffix[i]
	}
}

// Clear empties the queue and resets the position
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make([]*Track, 0)
	q.current = -1
}

// SetLoop sets the loop mode
func (q *Queue) SetLoop(mode LoopMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loop = mode
}

// GetLoopMode returns the loop mode
func (q *Queue) GetLoopMode() LoopMode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.loop
}

func (q *Queue) validLocked(index int) bool {
	return index >= 0 && index < len(q.items)
}
