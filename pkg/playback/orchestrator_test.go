package playback

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/latoulicious/nekobeat/pkg/failure"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/pool"
	"github.com/latoulicious/nekobeat/pkg/pool/pooltest"
	"github.com/latoulicious/nekobeat/pkg/queue"
	"github.com/latoulicious/nekobeat/pkg/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDirect answers every Fetch with the same result
type fakeDirect struct {
	calls atomic.Int64
	err   error
	block bool
}

func (f *fakeDirect) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader("direct-audio")), nil
}

func rateLimited() error {
	return failure.New(failure.KindRateLimited, "youtube returned 429", nil)
}

func newPool(t *testing.T, workers ...*pooltest.FakeWorker) *pool.Pool {
	t.Helper()
	ws := make([]pool.Worker, len(workers))
	for i, w := range workers {
		ws[i] = w
	}
	p, err := pool.New(ws, len(ws), logging.NullLogger())
	require.NoError(t, err)
	p.Start(context.Background())
	return p
}

func session() pool.AuthSession {
	return pool.AuthSession{Cookies: []pool.Cookie{{Name: "SID", Value: "x"}}}
}

func newOrchestrator(direct DirectStreamProvider, p WorkerPool) *Orchestrator {
	return NewOrchestrator(direct, p, stats.NewRegistry(10), Config{
		DirectDeadline:       50 * time.Millisecond,
		FallbackReadyTimeout: time.Second,
	}, logging.NullLogger())
}

func track() *queue.Track {
	return queue.NewTrack("https://www.youtube.com/watch?v=abc", "Song", "user-1", time.Minute)
}

func TestPlayDirectSuccess(t *testing.T) {
	direct := &fakeDirect{}
	o := newOrchestrator(direct, newPool(t, pooltest.NewFakeWorker("w", session())))

	out := o.Play(context.Background(), "g1", track())
	require.True(t, out.OK())
	defer out.Stream.Close()

	assert.Equal(t, stats.MethodDirect, out.Method)
	assert.Nil(t, out.Lease)
	data, err := io.ReadAll(out.Stream)
	require.NoError(t, err)
	assert.Equal(t, "direct-audio", string(data))

	snap := o.GetStats()
	assert.Equal(t, int64(1), snap.DirectAttempts)
	assert.Equal(t, int64(1), snap.DirectSuccesses)
	assert.Zero(t, snap.FallbackAttempts)
	assert.Empty(t, o.GetErrorMetrics().Recent)
}

func TestPlayRateLimitedFallsBackOnce(t *testing.T) {
	direct := &fakeDirect{err: rateLimited()}
	w := pooltest.NewFakeWorker("w", session())
	w.SetFeed([]byte("worker-audio"))
	p := newPool(t, w)
	o := newOrchestrator(direct, p)

	out := o.Play(context.Background(), "g1", track())
	require.True(t, out.OK())
	assert.Equal(t, stats.MethodPooledFallback, out.Method)
	assert.Equal(t, "w", out.WorkerID())

	data, err := io.ReadAll(out.Stream)
	require.NoError(t, err)
	assert.Equal(t, "worker-audio", string(data))

	snap := o.GetStats()
	assert.Equal(t, int64(1), snap.DirectAttempts)
	assert.Equal(t, int64(1), snap.FallbackAttempts)
	assert.Equal(t, int64(1), snap.FallbackSuccesses)
	assert.Equal(t, int64(1), snap.ErrorCounts["rate-limited"])
	assert.Equal(t, int64(1), direct.calls.Load())
	assert.Equal(t, []string{"https://www.youtube.com/watch?v=abc"}, w.Played())

	// closing the stream hands the worker back
	inst, err := p.GetInstanceByID("w")
	require.NoError(t, err)
	assert.True(t, inst.Claimed)
	require.NoError(t, out.Stream.Close())
	inst, err = p.GetInstanceByID("w")
	require.NoError(t, err)
	assert.False(t, inst.Claimed)
	assert.Equal(t, "ready", inst.State)
}

func TestPlayAuthRequiredFallsBack(t *testing.T) {
	direct := &fakeDirect{err: failure.New(failure.KindAuthRequired, "sign in to confirm", nil)}
	o := newOrchestrator(direct, newPool(t, pooltest.NewFakeWorker("w", session())))

	out := o.Play(context.Background(), "g1", track())
	require.True(t, out.OK())
	defer out.Stream.Close()
	assert.Equal(t, stats.MethodPooledFallback, out.Method)
}

func TestPlayFallbackFailureIsNotRetried(t *testing.T) {
	direct := &fakeDirect{err: rateLimited()}
	w := pooltest.NewFakeWorker("w", session())
	w.PlayErr = errors.New("player crashed")
	p := newPool(t, w)
	o := newOrchestrator(direct, p)

	out := o.Play(context.Background(), "g1", track())
	require.False(t, out.OK())
	assert.Equal(t, stats.MethodPooledFallback, out.Method)
	assert.Equal(t, failure.KindUnknown, out.Err.Kind)
	assert.Equal(t, "w", out.Err.Detail["worker_id"])

	assert.Equal(t, int64(1), direct.calls.Load())
	snap := o.GetStats()
	assert.Equal(t, int64(1), snap.DirectAttempts)
	assert.Equal(t, int64(1), snap.FallbackAttempts)
	assert.Zero(t, snap.FallbackSuccesses)

	// both the direct and the fallback failure land in the window
	recent := o.GetErrorMetrics().Recent
	require.Len(t, recent, 2)
	assert.Equal(t, "direct", recent[0].Method)
	assert.Equal(t, "rate-limited", recent[0].Kind)
	assert.Equal(t, "pooled-fallback", recent[1].Method)

	inst, err := p.GetInstanceByID("w")
	require.NoError(t, err)
	assert.Equal(t, "ready", inst.State)
	assert.False(t, inst.Claimed)
}

func TestPlayWorkerAuthFailureInvalidatesSession(t *testing.T) {
	direct := &fakeDirect{err: rateLimited()}
	w := pooltest.NewFakeWorker("w", session())
	w.PlayErr = failure.New(failure.KindAuthRequired, "worker session not authenticated", nil)
	p := newPool(t, w)
	o := newOrchestrator(direct, p)

	out := o.Play(context.Background(), "g1", track())
	require.False(t, out.OK())
	assert.Equal(t, failure.KindWorkerUnavailable, out.Err.Kind)

	inst, err := p.GetInstanceByID("w")
	require.NoError(t, err)
	assert.Equal(t, "error", inst.State)
	assert.False(t, inst.Authenticated)
	assert.Zero(t, inst.SessionCookies)
}

func TestPlayUnknownErrorPropagates(t *testing.T) {
	direct := &fakeDirect{err: errors.New("video unavailable")}
	o := newOrchestrator(direct, newPool(t, pooltest.NewFakeWorker("w", session())))

	out := o.Play(context.Background(), "g1", track())
	require.False(t, out.OK())
	assert.Equal(t, stats.MethodDirect, out.Method)
	assert.Equal(t, failure.KindUnknown, out.Err.Kind)
	assert.False(t, out.Cancelled())

	snap := o.GetStats()
	assert.Zero(t, snap.FallbackAttempts)
	assert.Equal(t, int64(1), snap.ErrorCounts["unknown"])
	require.Len(t, o.GetErrorMetrics().Recent, 1)
}

func TestPlayCapacityExhaustedReturnsWorkerUnavailable(t *testing.T) {
	direct := &fakeDirect{err: rateLimited()}
	p := newPool(t, pooltest.NewFakeWorker("only", session()))
	held, err := p.Claim(context.Background())
	require.NoError(t, err)
	defer p.Release(held)

	o := newOrchestrator(direct, p)
	done := make(chan Outcome, 1)
	go func() { done <- o.Play(context.Background(), "g2", track()) }()

	select {
	case out := <-done:
		require.False(t, out.OK())
		assert.Equal(t, failure.KindWorkerUnavailable, out.Err.Kind)
		assert.Equal(t, "rate-limited", out.Err.Detail["direct_kind"])
		assert.Zero(t, o.GetStats().FallbackAttempts)
	case <-time.After(time.Second):
		t.Fatal("play blocked on an exhausted pool")
	}
}

func TestPlayWithoutPoolReturnsWorkerUnavailable(t *testing.T) {
	o := newOrchestrator(&fakeDirect{err: rateLimited()}, nil)

	out := o.Play(context.Background(), "g3", track())
	require.False(t, out.OK())
	assert.Equal(t, stats.MethodPooledFallback, out.Method)
	assert.Equal(t, failure.KindWorkerUnavailable, out.Err.Kind)
	assert.Zero(t, o.GetStats().FallbackAttempts)
}

func TestPlayDeadlineIsRecoverable(t *testing.T) {
	direct := &fakeDirect{block: true}
	o := newOrchestrator(direct, newPool(t, pooltest.NewFakeWorker("w", session())))

	out := o.Play(context.Background(), "g1", track())
	require.True(t, out.OK())
	defer out.Stream.Close()
	assert.Equal(t, stats.MethodPooledFallback, out.Method)

	recent := o.GetErrorMetrics().Recent
	require.Len(t, recent, 1)
	assert.Equal(t, "rate-limited", recent[0].Kind)
	assert.Equal(t, "deadline", recent[0].Detail["cause"])
}

func TestPlayCancelledIsNotAFailure(t *testing.T) {
	direct := &fakeDirect{block: true}
	o := NewOrchestrator(direct, newPool(t, pooltest.NewFakeWorker("w", session())), stats.NewRegistry(10),
		Config{DirectDeadline: time.Minute}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	out := o.Play(ctx, "g1", track())
	require.False(t, out.OK())
	assert.True(t, out.Cancelled())

	snap := o.GetStats()
	assert.Equal(t, int64(1), snap.Cancellations)
	assert.Zero(t, snap.FallbackAttempts)
	assert.Empty(t, o.GetErrorMetrics().Recent)
}

func TestCancelDuringFallbackReleasesWorker(t *testing.T) {
	direct := &fakeDirect{err: rateLimited()}
	p := newPool(t, pooltest.NewFakeWorker("w", session()))
	o := newOrchestrator(direct, p)

	ctx, cancel := context.WithCancel(context.Background())
	out := o.Play(ctx, "g1", track())
	require.True(t, out.OK())

	// skip mid-track: the tenant cancels and closes the stream
	cancel()
	require.NoError(t, out.Stream.Close())

	inst, err := p.GetInstanceByID("w")
	require.NoError(t, err)
	assert.False(t, inst.Claimed)
	assert.False(t, out.Lease.Active())
}

func TestConcurrentPlaysNeverShareWorker(t *testing.T) {
	direct := &fakeDirect{err: rateLimited()}
	p := newPool(t,
		pooltest.NewFakeWorker("w1", session()),
		pooltest.NewFakeWorker("w2", session()))
	o := newOrchestrator(direct, p)

	var mu sync.Mutex
	live := make(map[string]bool)
	var violations, fallbacks, unavailable atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < 24; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				out := o.Play(context.Background(), "g", track())
				if !out.OK() {
					if out.Err.Kind == failure.KindWorkerUnavailable {
						unavailable.Add(1)
					}
					continue
				}
				fallbacks.Add(1)
				id := out.WorkerID()

				mu.Lock()
				if live[id] {
					violations.Add(1)
				}
				live[id] = true
				mu.Unlock()

				time.Sleep(100 * time.Microsecond)

				mu.Lock()
				live[id] = false
				mu.Unlock()
				out.Stream.Close()
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, violations.Load())
	assert.Positive(t, fallbacks.Load())
	snap := o.GetStats()
	assert.Equal(t, int64(24*20), snap.DirectAttempts)
	assert.Equal(t, fallbacks.Load(), snap.FallbackSuccesses)
	assert.Equal(t, unavailable.Load(), snap.ErrorCounts["worker-unavailable"])
}
