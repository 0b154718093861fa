package commands

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jarcoal/httpmock"
	"github.com/latoulicious/nekobeat/internal/config"
	"github.com/latoulicious/nekobeat/pkg/cron"
	"github.com/latoulicious/nekobeat/pkg/failure"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/pool"
	"github.com/latoulicious/nekobeat/pkg/queue"
	"github.com/latoulicious/nekobeat/pkg/stats"
	"github.com/latoulicious/nekobeat/pkg/youtube"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeLookup struct {
	resolved []string
	searched []string
	meta     youtube.Metadata
	err      error
}

func (f *fakeLookup) Resolve(_ context.Context, locator string) (youtube.Metadata, error) {
	f.resolved = append(f.resolved, locator)
	return f.meta, f.err
}

func (f *fakeLookup) Search(_ context.Context, query string) (youtube.Metadata, error) {
	f.searched = append(f.searched, query)
	return f.meta, f.err
}

func TestYouTubeResolver(t *testing.T) {
	lookup := &fakeLookup{meta: youtube.Metadata{
		URL:      "https://www.youtube.com/watch?v=abc123",
		Title:    "Song",
		Duration: 3 * time.Minute,
	}}
	r := NewYouTubeResolver(lookup)

	track, err := r.Resolve(context.Background(), "https://youtu.be/abc123", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://youtu.be/abc123"}, lookup.resolved)
	assert.Equal(t, "Song", track.Title)
	assert.Equal(t, "alice", track.RequestedBy)
	assert.Equal(t, 3*time.Minute, track.Duration)
	assert.NotEmpty(t, track.ID)

	_, err = r.Resolve(context.Background(), "lofi beats", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"lofi beats"}, lookup.searched)

	lookup.meta = youtube.Metadata{}
	_, err = r.Resolve(context.Background(), "nothing", "bob")
	assert.Error(t, err)

	lookup.err = errors.New("boom")
	_, err = r.Resolve(context.Background(), "x", "bob")
	assert.EqualError(t, err, "boom")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "live"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{time.Hour + 2*time.Minute + time.Second, "1h 2m 1s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in), tt.in.String())
	}
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0s", formatUptime(0))
	assert.Equal(t, "5m 0s", formatUptime(5*time.Minute))
	assert.Equal(t, "2d 1h 0m 3s", formatUptime(49*time.Hour+3*time.Second))
}

func TestQueueEmbed(t *testing.T) {
	empty := queueEmbed(nil, nil, queue.LoopNone)
	assert.Contains(t, empty.Description, "empty")

	current := queue.NewTrack("https://youtu.be/a", "Current", "alice", time.Minute)
	var upcoming []*queue.Track
	for i := 0; i < maxListed+2; i++ {
		upcoming = append(upcoming, queue.NewTrack("https://youtu.be/b", "Next", "bob", time.Minute))
	}

	embed := queueEmbed(current, upcoming, queue.LoopQueue)
	assert.Contains(t, embed.Description, "**Now Playing:** Current")
	assert.Contains(t, embed.Description, "...and 2 more")
	assert.Contains(t, embed.Footer.Text, "Loop: queue")
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "12", embed.Fields[0].Value)
	assert.Equal(t, "12m 0s", embed.Fields[1].Value)
}

func TestStatsEmbed(t *testing.T) {
	snap := stats.Snapshot{
		DirectAttempts:    4,
		DirectSuccesses:   3,
		FallbackAttempts:  1,
		FallbackSuccesses: 0,
		TakenAt:           time.Now(),
	}
	errs := stats.ErrorMetrics{
		Counts: map[string]int64{failure.KindRateLimited.String(): 1, failure.KindWorkerUnavailable.String(): 1},
		Total:  2,
		Recent: []stats.FailureRecord{
			{Timestamp: time.Now(), Title: "Blocked", Method: "direct", Kind: "rate-limited"},
			{Timestamp: time.Now(), TrackID: "t2", Method: "pooled-fallback", Kind: "worker-unavailable"},
		},
	}

	embed := statsEmbed(snap, errs)
	require.Len(t, embed.Fields, 5)
	assert.Equal(t, "3 / 4 (75%)", embed.Fields[0].Value)
	assert.Equal(t, "0 / 1 (0%)", embed.Fields[1].Value)
	assert.Equal(t, "Failures (2)", embed.Fields[3].Name)
	assert.Contains(t, embed.Fields[3].Value, "`rate-limited`: 1")
	assert.Contains(t, embed.Fields[3].Value, "`auth-required`: 0")
	assert.Contains(t, embed.Fields[4].Value, "**Blocked**")
	assert.Contains(t, embed.Fields[4].Value, "**t2**")

	assert.Equal(t, "n/a", percent(0, 0))
}

func TestInstancesEmbed(t *testing.T) {
	embed := instancesEmbed([]pool.InstanceSnapshot{
		{ID: "neko-2", State: "ready", Authenticated: true},
		{ID: "neko-1", State: "playing", Authenticated: true, Claimed: true, CurrentURL: "https://youtu.be/a"},
	})
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "`neko-1`", embed.Fields[0].Name)
	assert.Contains(t, embed.Fields[0].Value, "In use")
	assert.Contains(t, embed.Fields[0].Value, "https://youtu.be/a")

	assert.Contains(t, instancesEmbed(nil).Description, "No fallback workers")
}

func TestHelpEmbedUsesPrefix(t *testing.T) {
	embed := helpEmbed("nb!")
	var all strings.Builder
	for _, f := range embed.Fields {
		all.WriteString(f.Value)
	}
	assert.Contains(t, all.String(), "`nb!play <url|search>`")
	assert.NotContains(t, strings.ReplaceAll(all.String(), "nb!", ""), "!")
}

func TestDescribeFailure(t *testing.T) {
	assert.Contains(t, describeFailure(failure.New(failure.KindWorkerUnavailable, "none free", nil)), "No playback worker")
	assert.Contains(t, describeFailure(failure.New(failure.KindRateLimited, "429", nil)), "rate limiting")
	assert.Contains(t, describeFailure(errors.New("weird")), "Something went wrong")
}

func TestNowPlayingEmbedSource(t *testing.T) {
	track := queue.NewTrack("https://www.youtube.com/watch?v=abc123", "Song", "alice", time.Minute)

	embed := nowPlayingEmbed(track, stats.MethodPooledFallback.String(), "neko-1")
	assert.Contains(t, embed.Fields[2].Value, "neko-1")
	require.NotNil(t, embed.Thumbnail)
	assert.Contains(t, embed.Thumbnail.URL, "abc123")

	direct := nowPlayingEmbed(track, stats.MethodDirect.String(), "")
	assert.Contains(t, direct.Fields[2].Value, "Direct")
}

func TestCronEmbed(t *testing.T) {
	embed := cronEmbed([]cron.JobStatus{
		{Name: "stats-report", Schedule: cron.StatsReportSchedule, Runs: 2, LastError: "boom"},
		{Name: "voice-session-sweep", Schedule: cron.SessionSweepSchedule, NextRun: time.Now()},
	})
	require.Len(t, embed.Fields, 2)
	assert.Contains(t, embed.Fields[0].Value, "Not scheduled")
	assert.Contains(t, embed.Fields[0].Value, "boom")
	assert.NotContains(t, embed.Fields[1].Value, "Not scheduled")
}

func TestBotPrefix(t *testing.T) {
	assert.Equal(t, config.DefaultCommandPrefix, NewBot(Deps{}).Prefix())
	assert.Equal(t, "?", NewBot(Deps{Config: &config.Config{CommandPrefix: "?"}}).Prefix())
}

func TestSendEmbedLogsFailure(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterRegexpResponder(http.MethodPost, regexp.MustCompile(`/channels/c1/messages$`),
		httpmock.NewStringResponder(http.StatusForbidden, `{"code": 50013, "message": "Missing Permissions"}`))

	s, err := discordgo.New("Bot test")
	require.NoError(t, err)
	s.Client = &http.Client{Transport: transport}

	core, logs := observer.New(zapcore.DebugLevel)
	bot := NewBot(Deps{Logger: logging.Wrap(zap.New(core))})

	bot.sendEmbedMessage(s, "c1", "⏭️ Skipped", "Skipped to the next song.", colorSuccess)

	assert.Equal(t, 1, transport.GetTotalCallCount())
	entries := logs.FilterMessage("Error sending message").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "c1", ctx["channel_id"])
	assert.Equal(t, "commands", ctx["component"])
	assert.Contains(t, ctx["error"], "Missing Permissions")
}
