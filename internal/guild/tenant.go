// Package guild holds the per-guild playback state: queue, play loop, and
// the voice command handler.
package guild

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/playback"
	"github.com/latoulicious/nekobeat/pkg/pool"
	"github.com/latoulicious/nekobeat/pkg/queue"
)

const workerControlTimeout = 5 * time.Second

var (
	ErrNotConnected = errors.New("not connected to a voice channel")
	ErrClosed       = errors.New("guild session closed")
	ErrNothingToDo  = errors.New("nothing is playing")
)

// Sink is the voice connection audio output
type Sink interface {
	Stream(ctx context.Context, src io.Reader) error
	Speak(ctx context.Context, src io.Reader) error
	Pause()
	Resume()
	Paused() bool
}

// Player opens a track stream
type Player interface {
	Play(ctx context.Context, guildID string, track *queue.Track) playback.Outcome
}

// Resolver turns a URL or search query into a track
type Resolver interface {
	Resolve(ctx context.Context, query, requestedBy string) (*queue.Track, error)
}

// Events are called from the play loop. Any may be nil.
type Events struct {
	TrackStarted func(guildID string, track *queue.Track, outcome playback.Outcome)
	TrackFailed  func(guildID string, track *queue.Track, err error)
	QueueEnded   func(guildID string)
}

// NowPlaying describes the active track
type NowPlaying struct {
	Track    *queue.Track
	Method   string
	WorkerID string
	Paused   bool
}

// Tenant is one guild's playback session. Tracks play one at a time; Skip
// cancels the active track and Close cancels everything.
type Tenant struct {
	guildID  string
	queue    *queue.Queue
	player   Player
	resolver Resolver
	events   Events
	logger   logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	sink        Sink
	running     bool
	closed      bool
	skipped     bool
	// failures counts consecutive failed tracks
	failures    int
	cancelTrack context.CancelFunc
	nowPlaying  *NowPlaying
	lease       *pool.Lease
}

// NewTenant creates a session for guildID
func NewTenant(guildID string, player Player, resolver Resolver, events Events, logger logging.Logger) *Tenant {
	if logger == nil {
		logger = logging.NullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tenant{
		guildID:  guildID,
		queue:    queue.New(guildID),
		player:   player,
		resolver: resolver,
		events:   events,
		logger:   logger.With(logging.String("component", "guild"), logging.String("guild_id", guildID)),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// GuildID returns the guild this session belongs to
func (t *Tenant) GuildID() string {
	return t.guildID
}

// Queue exposes the guild's queue
func (t *Tenant) Queue() *queue.Queue {
	return t.queue
}

// Attach sets the audio output. Playback waits for a sink.
func (t *Tenant) Attach(sink Sink) {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
	t.kick()
}

// Connected reports whether a sink is attached
func (t *Tenant) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sink != nil
}

// Enqueue appends track and starts playback if idle. It returns the number
// of tracks waiting, including this one.
func (t *Tenant) Enqueue(track *queue.Track) (int, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	t.queue.Add(track)
	pending := len(t.queue.GetQueue())
	t.logger.Info("Track queued",
		logging.String("track_id", track.ID),
		logging.String("title", track.Title),
		logging.Int("pending", pending))
	t.kick()
	return pending, nil
}

func (t *Tenant) kick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.closed || t.sink == nil {
		return
	}
	if len(t.queue.GetQueue()) == 0 && t.queue.GetLoopMode() == queue.LoopNone {
		return
	}
	t.running = true
	t.wg.Add(1)
	go t.loop()
}

func (t *Tenant) loop() {
	defer t.wg.Done()

	for {
		track, sink, trackCtx, ok := t.next()
		if !ok {
			return
		}
		t.playTrack(trackCtx, sink, track)
	}
}

// next picks the next track and arms its cancel func. ok is false once the
// queue is exhausted or the tenant is closed.
func (t *Tenant) next() (*queue.Track, Sink, context.Context, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelTrack != nil {
		t.cancelTrack()
		t.cancelTrack = nil
	}
	t.nowPlaying = nil
	t.lease = nil
	if t.sink != nil && t.sink.Paused() {
		t.sink.Resume()
	}

	// every track failed in a row; wait for new tracks instead of cycling
	if t.failures > 0 && t.failures >= t.queue.Size() {
		t.logger.Warn("Every queued track failed, stopping playback", logging.Int("failures", t.failures))
		t.failures = 0
		t.running = false
		if !t.closed && t.events.QueueEnded != nil {
			go t.events.QueueEnded(t.guildID)
		}
		return nil, nil, nil, false
	}

	var track *queue.Track
	if t.skipped {
		track = t.queue.SkipNext()
	} else {
		track = t.queue.GetNext()
	}
	t.skipped = false

	if track == nil || t.closed || t.sink == nil {
		t.running = false
		if track == nil && !t.closed && t.events.QueueEnded != nil {
			go t.events.QueueEnded(t.guildID)
		}
		return nil, nil, nil, false
	}

	ctx, cancel := context.WithCancel(t.ctx)
	t.cancelTrack = cancel
	t.nowPlaying = &NowPlaying{Track: track}
	return track, t.sink, ctx, true
}

func (t *Tenant) playTrack(ctx context.Context, sink Sink, track *queue.Track) {
	logger := t.logger.With(logging.String("track_id", track.ID), logging.String("title", track.Title))

	outcome := t.player.Play(ctx, t.guildID, track)
	if outcome.Cancelled() {
		logger.Debug("Track cancelled before playback")
		return
	}
	if !outcome.OK() {
		logger.Warn("Track failed", logging.Error(outcome.Err))
		// a failed track is left behind even under track loop
		t.mu.Lock()
		t.skipped = true
		t.failures++
		t.mu.Unlock()
		if t.events.TrackFailed != nil {
			t.events.TrackFailed(t.guildID, track, outcome.Err)
		}
		return
	}
	defer outcome.Stream.Close()

	t.mu.Lock()
	t.failures = 0
	if t.nowPlaying != nil && t.nowPlaying.Track == track {
		t.nowPlaying.Method = outcome.Method.String()
		t.nowPlaying.WorkerID = outcome.WorkerID()
		t.lease = outcome.Lease
	}
	t.mu.Unlock()

	logger.Info("Track started",
		logging.String("method", outcome.Method.String()),
		logging.String("worker_id", outcome.WorkerID()))
	if t.events.TrackStarted != nil {
		t.events.TrackStarted(t.guildID, track, outcome)
	}

	if err := sink.Stream(ctx, outcome.Stream); err != nil {
		logger.Warn("Stream ended with error", logging.Error(err))
	}
}

// Skip ends the active track. Playback continues with the next one.
func (t *Tenant) Skip() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelTrack == nil {
		return ErrNothingToDo
	}
	t.skipped = true
	t.cancelTrack()
	return nil
}

// Stop clears the queue and ends the active track
func (t *Tenant) Stop() {
	t.queue.Clear()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = 0
	if t.cancelTrack != nil {
		t.cancelTrack()
	}
}

// Pause pauses the active track. A worker playing the track is paused too.
func (t *Tenant) Pause() error {
	sink, lease, err := t.active()
	if err != nil {
		return err
	}
	sink.Pause()
	if lease != nil {
		t.controlWorker("pause", lease.Pause)
	}
	return nil
}

// Resume resumes a paused track
func (t *Tenant) Resume() error {
	sink, lease, err := t.active()
	if err != nil {
		return err
	}
	if lease != nil {
		t.controlWorker("resume", lease.Resume)
	}
	sink.Resume()
	return nil
}

func (t *Tenant) controlWorker(op string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(t.ctx, workerControlTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		t.logger.Warn("Worker control failed", logging.String("op", op), logging.Error(err))
	}
}

func (t *Tenant) active() (Sink, *pool.Lease, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sink == nil {
		return nil, nil, ErrNotConnected
	}
	if t.nowPlaying == nil {
		return nil, nil, ErrNothingToDo
	}
	return t.sink, t.lease, nil
}

// Speak plays a spoken reply on the attached sink
func (t *Tenant) Speak(ctx context.Context, audio io.Reader) error {
	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()
	if sink == nil {
		return ErrNotConnected
	}
	return sink.Speak(ctx, audio)
}

// NowPlaying returns the active track, or nil
func (t *Tenant) NowPlaying() *NowPlaying {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.nowPlaying == nil {
		return nil
	}
	np := *t.nowPlaying
	if t.sink != nil {
		np.Paused = t.sink.Paused()
	}
	return &np
}

// Playing reports whether the play loop is active
func (t *Tenant) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Close cancels playback and waits for the play loop to exit. Any worker
// lease held by the active track is released.
func (t *Tenant) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.sink = nil
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
	t.logger.Info("Guild session closed")
}
