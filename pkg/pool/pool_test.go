package pool_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/pool"
	"github.com/latoulicious/nekobeat/pkg/pool/pooltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testSession() pool.AuthSession {
	return pool.AuthSession{
		Cookies: []pool.Cookie{
			{Name: "SID", Value: "abc", Domain: ".youtube.com", Path: "/", Expires: time.Now().Add(time.Hour)},
		},
		SavedAt: time.Now(),
	}
}

func startedPool(t *testing.T, workers ...*pooltest.FakeWorker) *pool.Pool {
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

func stateOf(t *testing.T, p *pool.Pool, id string) string {
	t.Helper()
	snap, err := p.GetInstanceByID(id)
	require.NoError(t, err)
	return snap.State
}

func TestNew(t *testing.T) {
	a := pooltest.NewFakeWorker("a", testSession())
	b := pooltest.NewFakeWorker("b", testSession())

	t.Run("rejects zero capacity", func(t *testing.T) {
		_, err := pool.New([]pool.Worker{a}, 0, nil)
		assert.ErrorIs(t, err, pool.ErrInvalidCapacity)
	})

	t.Run("ignores workers beyond capacity", func(t *testing.T) {
		p, err := pool.New([]pool.Worker{a, b}, 1, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, p.Size())
		_, err = p.GetInstanceByID("b")
		assert.ErrorIs(t, err, pool.ErrUnknownWorker)
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		_, err := pool.New([]pool.Worker{a, pooltest.NewFakeWorker("a", testSession())}, 2, nil)
		assert.ErrorIs(t, err, pool.ErrDuplicateWorker)
	})
}

func TestStartStates(t *testing.T) {
	ready := pooltest.NewFakeWorker("ready", testSession())
	loggedOut := pooltest.NewFakeWorker("logged-out", pool.AuthSession{})
	loggedOut.SetAuthenticated(false)
	broken := pooltest.NewFakeWorker("broken", testSession())
	broken.AuthErr = errors.New("connection refused")

	p := startedPool(t, ready, loggedOut, broken)

	assert.Equal(t, "ready", stateOf(t, p, "ready"))
	assert.Equal(t, "idle", stateOf(t, p, "logged-out"))
	assert.Equal(t, "error", stateOf(t, p, "broken"))

	snap, err := p.GetInstanceByID("broken")
	require.NoError(t, err)
	assert.Contains(t, snap.LastError, "connection refused")

	session, err := p.SessionOf("ready")
	require.NoError(t, err)
	assert.Len(t, session.Cookies, 1)
}

func TestClaimPrefersLeastRecentlyUsed(t *testing.T) {
	a := pooltest.NewFakeWorker("a", testSession())
	b := pooltest.NewFakeWorker("b", testSession())
	p := startedPool(t, a, b)
	ctx := context.Background()

	first, err := p.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", first.WorkerID())
	require.NoError(t, p.Release(first))

	second, err := p.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", second.WorkerID())
	time.Sleep(time.Millisecond)
	require.NoError(t, p.Release(second))

	third, err := p.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", third.WorkerID())
	require.NoError(t, p.Release(third))
}

func TestClaimExhaustedDoesNotBlock(t *testing.T) {
	p := startedPool(t, pooltest.NewFakeWorker("only", testSession()))
	ctx := context.Background()

	lease, err := p.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "playing", stateOf(t, p, "only"))

	done := make(chan error, 1)
	go func() {
		_, err := p.Claim(ctx)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, pool.ErrCapacityExhausted)
	case <-time.After(time.Second):
		t.Fatal("claim blocked on an exhausted pool")
	}

	require.NoError(t, p.Release(lease))
	assert.Equal(t, "ready", stateOf(t, p, "only"))
}

func TestClaimSkipsUnauthenticated(t *testing.T) {
	w := pooltest.NewFakeWorker("w", pool.AuthSession{})
	w.SetAuthenticated(false)
	p := startedPool(t, w)

	_, err := p.Claim(context.Background())
	assert.ErrorIs(t, err, pool.ErrCapacityExhausted)
}

func TestClaimCancelledContext(t *testing.T) {
	p := startedPool(t, pooltest.NewFakeWorker("w", testSession()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Claim(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "ready", stateOf(t, p, "w"))
}

func TestReleaseTwiceIsStale(t *testing.T) {
	p := startedPool(t, pooltest.NewFakeWorker("w", testSession()))

	lease, err := p.Claim(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Release(lease))

	assert.ErrorIs(t, p.Release(lease), pool.ErrStaleLease)
	assert.ErrorIs(t, p.Release(nil), pool.ErrStaleLease)
	assert.False(t, lease.Active())
	assert.Equal(t, pool.ReasonReleased, lease.Reason())
}

func TestLeaseForwardsPlayback(t *testing.T) {
	w := pooltest.NewFakeWorker("w", testSession())
	p := startedPool(t, w)
	ctx := context.Background()

	lease, err := p.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, lease.PlayVideo(ctx, "https://youtu.be/x"))

	snap, err := p.GetInstanceByID("w")
	require.NoError(t, err)
	assert.True(t, snap.Claimed)
	assert.Equal(t, lease.ID(), snap.LeaseID)
	assert.Equal(t, "https://youtu.be/x", snap.CurrentURL)
	assert.Equal(t, []string{"https://youtu.be/x"}, w.Played())

	require.NoError(t, p.Release(lease))
	assert.ErrorIs(t, lease.PlayVideo(ctx, "https://youtu.be/y"), pool.ErrLeaseTerminated)
	assert.ErrorIs(t, lease.Pause(ctx), pool.ErrLeaseTerminated)

	snap, err = p.GetInstanceByID("w")
	require.NoError(t, err)
	assert.False(t, snap.Claimed)
	assert.Empty(t, snap.CurrentURL)
}

func TestRestartTerminatesLease(t *testing.T) {
	w := pooltest.NewFakeWorker("w", testSession())
	w.LoseAuthOnRestart = true
	p := startedPool(t, w)
	ctx := context.Background()

	lease, err := p.Claim(ctx)
	require.NoError(t, err)
	feed, err := lease.AudioFeed(ctx)
	require.NoError(t, err)
	defer feed.Close()

	require.NoError(t, p.Restart(ctx, "w"))

	select {
	case <-lease.Done():
	default:
		t.Fatal("lease not terminated by restart")
	}
	assert.Equal(t, pool.ReasonRestarted, lease.Reason())

	_, err = io.ReadAll(feed)
	assert.ErrorIs(t, err, pool.ErrLeaseTerminated)
	assert.ErrorIs(t, p.Release(lease), pool.ErrStaleLease)

	// the preserved session is restored so the worker comes back ready
	assert.Equal(t, 1, w.Restarts())
	require.Len(t, w.Restored(), 1)
	assert.Equal(t, "SID", w.Restored()[0].Cookies[0].Name)
	assert.Equal(t, "ready", stateOf(t, p, "w"))

	snap, err := p.GetInstanceByID("w")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Restarts)
}

func TestRestartFailureLeavesError(t *testing.T) {
	w := pooltest.NewFakeWorker("w", testSession())
	w.RestartErr = errors.New("browser crashed")
	p := startedPool(t, w)

	err := p.Restart(context.Background(), "w")
	assert.Error(t, err)
	assert.Equal(t, "error", stateOf(t, p, "w"))

	assert.ErrorIs(t, p.Restart(context.Background(), "missing"), pool.ErrUnknownWorker)
}

func TestMarkAuthFailedDropsSession(t *testing.T) {
	w := pooltest.NewFakeWorker("w", testSession())
	p := startedPool(t, w)
	ctx := context.Background()

	lease, err := p.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, p.MarkAuthFailed(lease, errors.New("sign in required")))

	snap, err := p.GetInstanceByID("w")
	require.NoError(t, err)
	assert.Equal(t, "error", snap.State)
	assert.False(t, snap.Authenticated)
	assert.Zero(t, snap.SessionCookies)
	assert.Equal(t, pool.ReasonAuthFailed, lease.Reason())

	_, err = p.Claim(ctx)
	assert.ErrorIs(t, err, pool.ErrCapacityExhausted)
	assert.ErrorIs(t, p.MarkAuthFailed(lease, nil), pool.ErrStaleLease)
}

func TestConcurrentClaimsNeverShareWorker(t *testing.T) {
	const workers = 3
	fakes := make([]*pooltest.FakeWorker, workers)
	for i := range fakes {
		fakes[i] = pooltest.NewFakeWorker(fmt.Sprintf("w%d", i), testSession())
	}
	p := startedPool(t, fakes...)

	holders := make(map[string]*atomic.Int32, workers)
	for _, f := range fakes {
		holders[f.ID()] = &atomic.Int32{}
	}
	var violations, claims atomic.Int64

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				lease, err := p.Claim(context.Background())
				if err != nil {
					continue
				}
				claims.Add(1)
				if holders[lease.WorkerID()].Add(1) > 1 {
					violations.Add(1)
				}
				holders[lease.WorkerID()].Add(-1)
				if err := p.Release(lease); err != nil {
					violations.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, violations.Load())
	assert.Positive(t, claims.Load())
	for _, snap := range p.GetAllInstances() {
		assert.Equal(t, "ready", snap.State)
		assert.False(t, snap.Claimed)
	}
}

func TestSnapshotsWhileClaimed(t *testing.T) {
	p := startedPool(t, pooltest.NewFakeWorker("w", testSession()))
	lease, err := p.Claim(context.Background())
	require.NoError(t, err)
	defer p.Release(lease)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				snaps := p.GetAllInstances()
				if len(snaps) != 1 || !snaps[0].Claimed {
					t.Error("unexpected snapshot while claimed")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestWorkerStateString(t *testing.T) {
	tests := []struct {
		state pool.WorkerState
		want  string
	}{
		{pool.StateIdle, "idle"},
		{pool.StateAuthenticating, "authenticating"},
		{pool.StateReady, "ready"},
		{pool.StatePlaying, "playing"},
		{pool.StateError, "error"},
		{pool.WorkerState(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestAuthSessionLive(t *testing.T) {
	now := time.Now()
	s := pool.AuthSession{Cookies: []pool.Cookie{
		{Name: "fresh", Expires: now.Add(time.Hour)},
		{Name: "stale", Expires: now.Add(-time.Hour)},
		{Name: "session"},
	}}

	live := s.Live(now)
	require.Len(t, live.Cookies, 2)
	assert.Equal(t, "fresh", live.Cookies[0].Name)
	assert.Equal(t, "session", live.Cookies[1].Name)
	assert.True(t, pool.AuthSession{}.Empty())
}
