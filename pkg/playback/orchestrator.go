// Package playback decides how each track is played: straight from its source
// when possible, through one pooled browser worker when the direct path is
// throttled or needs a login.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/latoulicious/nekobeat/pkg/failure"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/pool"
	"github.com/latoulicious/nekobeat/pkg/queue"
	"github.com/latoulicious/nekobeat/pkg/stats"
)

// Default attempt bounds
const (
	DefaultDirectDeadline       = 10 * time.Second
	DefaultFallbackReadyTimeout = 20 * time.Second
)

var errDirectDeadline = fmt.Errorf("direct stream attempt: %w", context.DeadlineExceeded)

// DirectStreamProvider opens a track's audio straight from its source. The
// returned stream stays valid until closed or until ctx is cancelled.
type DirectStreamProvider interface {
	Fetch(ctx context.Context, locator string) (io.ReadCloser, error)
}

// WorkerPool is the part of the pool the orchestrator needs
type WorkerPool interface {
	Claim(ctx context.Context) (*pool.Lease, error)
	Release(lease *pool.Lease) error
	MarkAuthFailed(lease *pool.Lease, cause error) error
}

// Config bounds the two playback paths
type Config struct {
	DirectDeadline       time.Duration
	FallbackReadyTimeout time.Duration
	Classifier           failure.Classifier
}

// Outcome is the result of one Play call. Exactly one of Stream or Err is set.
type Outcome struct {
	Method stats.Method
	Stream io.ReadCloser
	// Lease is set for pooled-fallback playback so pause and seek reach the worker
	Lease *pool.Lease
	Err   *failure.ErrorInfo
}

// OK reports whether a stream was obtained
func (o Outcome) OK() bool {
	return o.Err == nil && o.Stream != nil
}

// WorkerID returns the leased worker id, or "" for direct playback
func (o Outcome) WorkerID() string {
	if o.Lease == nil {
		return ""
	}
	return o.Lease.WorkerID()
}

// Cancelled reports whether the attempt ended because the caller gave up
func (o Outcome) Cancelled() bool {
	return o.Err != nil && o.Err.Detail["cause"] == "cancelled"
}

// Orchestrator plays tracks with at most one fallback attempt per track
type Orchestrator struct {
	direct DirectStreamProvider
	pool   WorkerPool
	stats  *stats.Registry
	config Config
	logger logging.Logger
}

// NewOrchestrator wires an orchestrator
func NewOrchestrator(direct DirectStreamProvider, workers WorkerPool, registry *stats.Registry, config Config, logger logging.Logger) *Orchestrator {
	if config.DirectDeadline <= 0 {
		config.DirectDeadline = DefaultDirectDeadline
	}
	if config.FallbackReadyTimeout <= 0 {
		config.FallbackReadyTimeout = DefaultFallbackReadyTimeout
	}
	if config.Classifier == nil {
		config.Classifier = failure.ClassifierFunc(failure.Classify)
	}
	if registry == nil {
		registry = stats.NewRegistry(stats.DefaultRecentCapacity)
	}
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Orchestrator{
		direct: direct,
		pool:   workers,
		stats:  registry,
		config: config,
		logger: logger.With(logging.String("component", "playback")),
	}
}

// Play obtains an audio stream for track. Cancelling ctx aborts the attempt and
// releases any worker claimed for it; after success it also ends the stream.
func (o *Orchestrator) Play(ctx context.Context, guildID string, track *queue.Track) Outcome {
	logger := o.logger.With(
		logging.String("guild_id", guildID),
		logging.String("track_id", track.ID))

	stream, err := o.fetchDirect(ctx, track.URL)
	if err == nil {
		o.stats.RecordDirectSuccess()
		logger.Debug("Direct stream opened", logging.String("title", track.Title))
		return Outcome{Method: stats.MethodDirect, Stream: stream}
	}
	if ctx.Err() != nil {
		return o.cancelled(stats.MethodDirect, ctx.Err())
	}

	info := o.config.Classifier.Classify(err)
	o.recordFailure(guildID, track, stats.MethodDirect, info)
	if !info.Kind.Recoverable() {
		logger.Warn("Direct stream failed", logging.String("kind", info.Kind.String()), logging.Error(err))
		return Outcome{Method: stats.MethodDirect, Err: info}
	}

	logger.Info("Direct stream failed, falling back to worker pool",
		logging.String("kind", info.Kind.String()),
		logging.Error(err))
	return o.fallback(ctx, guildID, track, info, logger)
}

// fetchDirect applies the deadline to opening the stream only. Once open, the
// stream lives until it is closed or ctx ends.
func (o *Orchestrator) fetchDirect(ctx context.Context, locator string) (io.ReadCloser, error) {
	o.stats.RecordDirectAttempt()

	fetchCtx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(o.config.DirectDeadline, func() { cancel(errDirectDeadline) })

	stream, err := o.direct.Fetch(fetchCtx, locator)
	expired := !timer.Stop()
	if err == nil && expired {
		stream.Close()
		err = errDirectDeadline
	}
	if err != nil {
		if errors.Is(context.Cause(fetchCtx), errDirectDeadline) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", errDirectDeadline, err)
		}
		cancel(nil)
		return nil, err
	}
	return &directStream{ReadCloser: stream, cancel: func() { cancel(nil) }}, nil
}

func (o *Orchestrator) fallback(ctx context.Context, guildID string, track *queue.Track, direct *failure.ErrorInfo, logger logging.Logger) Outcome {
	if o.pool == nil {
		info := failure.New(failure.KindWorkerUnavailable, "no fallback workers configured", nil).
			WithDetail("direct_kind", direct.Kind.String())
		o.recordFailure(guildID, track, stats.MethodPooledFallback, info)
		return Outcome{Method: stats.MethodPooledFallback, Err: info}
	}

	lease, err := o.pool.Claim(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return o.cancelled(stats.MethodPooledFallback, ctx.Err())
		}
		info := failure.New(failure.KindWorkerUnavailable, "no fallback worker available", err).
			WithDetail("direct_kind", direct.Kind.String())
		o.recordFailure(guildID, track, stats.MethodPooledFallback, info)
		logger.Warn("Fallback unavailable", logging.Error(err))
		return Outcome{Method: stats.MethodPooledFallback, Err: info}
	}
	o.stats.RecordFallbackAttempt()
	logger = logger.With(logging.String("worker_id", lease.WorkerID()))

	feed, err := o.startWorker(ctx, lease, track.URL)
	if err != nil {
		if ctx.Err() != nil {
			o.release(lease, logger)
			return o.cancelled(stats.MethodPooledFallback, ctx.Err())
		}

		var info *failure.ErrorInfo
		if pool.IsAuthFailure(err) {
			if markErr := o.pool.MarkAuthFailed(lease, err); markErr != nil {
				logger.Warn("Could not mark worker auth failure", logging.Error(markErr))
			}
			info = failure.New(failure.KindWorkerUnavailable, "fallback worker lost its session", err)
		} else {
			o.release(lease, logger)
			info = failure.New(failure.KindUnknown, "fallback worker failed to play", err)
		}
		info.WithDetail("worker_id", lease.WorkerID()).WithDetail("direct_kind", direct.Kind.String())
		o.recordFailure(guildID, track, stats.MethodPooledFallback, info)
		logger.Warn("Fallback playback failed", logging.String("kind", info.Kind.String()), logging.Error(err))
		return Outcome{Method: stats.MethodPooledFallback, Err: info}
	}

	o.stats.RecordFallbackSuccess()
	logger.Info("Fallback stream opened", logging.String("title", track.Title))
	return Outcome{
		Method: stats.MethodPooledFallback,
		Stream: &leasedStream{ReadCloser: feed, lease: lease, release: func() { o.release(lease, logger) }},
		Lease:  lease,
	}
}

func (o *Orchestrator) startWorker(ctx context.Context, lease *pool.Lease, url string) (io.ReadCloser, error) {
	readyCtx, cancel := context.WithTimeout(ctx, o.config.FallbackReadyTimeout)
	defer cancel()

	if err := lease.PlayVideo(readyCtx, url); err != nil {
		return nil, fmt.Errorf("start worker playback: %w", err)
	}
	feed, err := lease.AudioFeed(ctx)
	if err != nil {
		return nil, fmt.Errorf("open worker audio: %w", err)
	}
	return feed, nil
}

func (o *Orchestrator) release(lease *pool.Lease, logger logging.Logger) {
	if err := o.pool.Release(lease); err != nil && !errors.Is(err, pool.ErrStaleLease) {
		logger.Warn("Failed to release worker", logging.Error(err))
	}
}

func (o *Orchestrator) cancelled(method stats.Method, cause error) Outcome {
	o.stats.RecordCancellation()
	info := failure.New(failure.KindUnknown, "playback cancelled", cause).WithDetail("cause", "cancelled")
	return Outcome{Method: method, Err: info}
}

func (o *Orchestrator) recordFailure(guildID string, track *queue.Track, method stats.Method, info *failure.ErrorInfo) {
	o.stats.RecordFailure(stats.FailureRecord{
		GuildID: guildID,
		TrackID: track.ID,
		Title:   track.Title,
		Method:  method.String(),
	}, info)
}

// GetStats returns a snapshot of the playback counters
func (o *Orchestrator) GetStats() stats.Snapshot {
	return o.stats.Snapshot()
}

// GetErrorMetrics returns per-kind failure counts and the recent failures
func (o *Orchestrator) GetErrorMetrics() stats.ErrorMetrics {
	return o.stats.ErrorMetrics()
}

// Stats exposes the underlying registry for reporting
func (o *Orchestrator) Stats() *stats.Registry {
	return o.stats
}

type directStream struct {
	io.ReadCloser
	cancel func()
	once   sync.Once
}

func (s *directStream) Close() error {
	err := s.ReadCloser.Close()
	s.once.Do(s.cancel)
	return err
}

// leasedStream returns its worker to the pool when closed
type leasedStream struct {
	io.ReadCloser
	lease   *pool.Lease
	release func()
	once    sync.Once
}

func (s *leasedStream) Close() error {
	err := s.ReadCloser.Close()
	s.once.Do(s.release)
	return err
}
