package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/latoulicious/nekobeat/pkg/failure"
	"github.com/latoulicious/nekobeat/pkg/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *captureTransport) Configure(sentry.ClientOptions) {}

func (t *captureTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *captureTransport) Flush(time.Duration) bool { return true }

func (t *captureTransport) FlushWithContext(context.Context) bool { return true }

func (t *captureTransport) Close() {}

func (t *captureTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func TestReporterDisabled(t *testing.T) {
	r, err := NewReporter(Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, r)

	// nil reporter is a no-op
	r.Attach(stats.NewRegistry(0))
	r.Report(stats.FailureRecord{}, nil)
	assert.True(t, r.Flush(time.Millisecond))
}

func TestReporterOnlyUnknown(t *testing.T) {
	transport := &captureTransport{}
	r, err := NewReporter(Config{Transport: transport, Environment: "test"}, nil)
	require.NoError(t, err)

	registry := stats.NewRegistry(0)
	r.Attach(registry)

	registry.RecordFailure(stats.FailureRecord{GuildID: "g1", Method: "direct"},
		failure.New(failure.KindRateLimited, "throttled", nil))
	registry.RecordFailure(stats.FailureRecord{GuildID: "g1", Method: "pooled-fallback", TrackID: "t1"},
		failure.New(failure.KindUnknown, "worker crashed", nil).WithDetail("worker_id", "neko-1"))
	r.Flush(time.Second)

	events := transport.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "unknown: worker crashed", events[0].Message)
	assert.Equal(t, "g1", events[0].Tags["guild_id"])
	assert.Equal(t, "pooled-fallback", events[0].Tags["method"])
	assert.Equal(t, "neko-1", events[0].Contexts["detail"]["worker_id"])
}
