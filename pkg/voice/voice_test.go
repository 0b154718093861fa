package voice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrammarParse(t *testing.T) {
	g := DefaultGrammar()
	tests := []struct {
		transcript string
		action     Action
		argument   string
		ok         bool
	}{
		{"Play lofi hip hop", ActionPlay, "lofi hip hop", true},
		{"Hey Neko, put on some jazz!", ActionPlay, "some jazz", true},
		{"skip this song", ActionSkip, "", true},
		{"Next.", ActionSkip, "", true},
		{"neko stop", ActionStop, "", true},
		{"Pause the music", ActionPause, "", true},
		{"continue", ActionResume, "", true},
		{"shuffle the queue", ActionShuffle, "", true},
		{"loop track", ActionLoop, "track", true},
		{"Loop off", ActionLoop, "off", true},
		{"What’s playing?", ActionNowPlaying, "", true},
		{"now playing", ActionNowPlaying, "", true},
		{"loop forever", 0, "", false},
		{"I want to stop listening to you", 0, "", false},
		{"", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.transcript, func(t *testing.T) {
			cmd, ok := g.Parse(tt.transcript)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.action, cmd.Action)
			assert.Equal(t, tt.argument, cmd.Argument)
			assert.Equal(t, tt.transcript, cmd.Transcript)
		})
	}
}

func TestGrammarRequireWake(t *testing.T) {
	g := NewGrammar([]string{"neko"}, true)

	_, ok := g.Parse("skip")
	assert.False(t, ok)

	cmd, ok := g.Parse("neko skip")
	require.True(t, ok)
	assert.Equal(t, ActionSkip, cmd.Action)
}

func TestSessionsTouchAndExpire(t *testing.T) {
	s := NewSessions(30 * time.Millisecond)
	now := time.Now()

	first, created := s.Touch("g1", "u1", "vc1", now)
	assert.True(t, created)
	assert.Equal(t, 1, first.Segments)

	again, created := s.Touch("g1", "u1", "", now.Add(time.Second))
	assert.False(t, created)
	assert.Equal(t, 2, again.Segments)
	assert.Equal(t, "vc1", again.ChannelID)
	assert.Equal(t, now, again.StartedAt)

	s.Touch("g1", "u2", "vc1", now)
	s.Touch("g2", "u1", "vc9", now)
	assert.Len(t, s.ForTenant("g1"), 2)

	time.Sleep(50 * time.Millisecond)
	_, ok := s.Get("g1", "u1")
	assert.False(t, ok, "expired sessions are invisible before the sweep")
	assert.Equal(t, 3, s.Len())

	assert.Equal(t, 3, s.DeleteExpired())
	assert.Zero(t, s.Len())
}

func TestSessionsEvictTenant(t *testing.T) {
	s := NewSessions(time.Minute)
	now := time.Now()
	s.Touch("g1", "u1", "vc1", now)
	s.Touch("g1", "u2", "vc1", now)
	s.Touch("g10", "u1", "vc2", now)

	assert.Equal(t, 2, s.EvictTenant("g1"))
	assert.Empty(t, s.ForTenant("g1"))
	_, ok := s.Get("g10", "u1")
	assert.True(t, ok)
}

func TestCostTracker(t *testing.T) {
	c := NewCostTracker(0.006)
	c.Add(30 * time.Second)
	c.Add(90 * time.Second)

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.Calls)
	assert.Equal(t, 2*time.Minute, snap.Processed)
	assert.InDelta(t, 0.012, snap.EstimatedCost, 1e-9)

	c.Reset()
	snap = c.Snapshot()
	assert.Zero(t, snap.Calls)
	assert.Zero(t, snap.EstimatedCost)
	assert.Equal(t, 0.006, snap.RatePerMinute)
}

func TestLimiterCancelledAcquire(t *testing.T) {
	l := NewLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.DeadlineExceeded)

	l.Release()
	assert.Zero(t, l.InFlight())
	assert.Equal(t, int64(1), l.Capacity())
}

func TestManagerLifecycle(t *testing.T) {
	rec := &scriptedRecognizer{text: "skip"}
	m := NewManager(ManagerConfig{Enabled: true, Concurrency: 2, IdleTimeout: time.Minute},
		Providers{Trigger: alwaysTrigger, Recognizer: rec}, nil)
	defer m.Shutdown()

	handler := &recordingHandler{}
	p, err := m.StartTenant("g1", &recordingOutput{}, handler)
	require.NoError(t, err)

	same, err := m.StartTenant("g1", nil, nil)
	require.NoError(t, err)
	assert.Same(t, p, same)

	require.NoError(t, m.Push(segment("u1")))
	require.Eventually(t, func() bool { return len(handler.Commands()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), m.Cost().Calls)
	assert.Equal(t, int64(1), p.Cost().Calls)

	m.ResetCost()
	assert.Zero(t, m.Cost().Calls)
	assert.Zero(t, p.Cost().Calls)

	_, ok := m.Sessions().Get("g1", "u1")
	require.True(t, ok)

	m.StopTenant("g1")
	_, ok = m.Pipeline("g1")
	assert.False(t, ok)
	_, ok = m.Sessions().Get("g1", "u1")
	assert.False(t, ok, "disconnect evicts the tenant's sessions")
	assert.ErrorIs(t, m.Push(segment("u1")), ErrPipelineStopped)
}

func TestManagerDisabled(t *testing.T) {
	m := NewManager(ManagerConfig{}, Providers{}, nil)
	defer m.Shutdown()

	_, err := m.StartTenant("g1", nil, nil)
	assert.ErrorIs(t, err, ErrVoiceDisabled)

	m.SetEnabled(true)
	_, err = m.StartTenant("g1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, m.Tenants())

	m.SetEnabled(false)
	assert.Empty(t, m.Tenants())
}
