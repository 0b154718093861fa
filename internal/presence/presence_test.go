package presence

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/internal/guild"
	"github.com/latoulicious/nekobeat/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type playingSource map[string]*guild.NowPlaying

func (p playingSource) Playing() map[string]*guild.NowPlaying { return p }

type statusRecorder struct {
	updates []discordgo.UpdateStatusData
	err     error
}

func (r *statusRecorder) update(data discordgo.UpdateStatusData) error {
	if r.err != nil {
		return r.err
	}
	r.updates = append(r.updates, data)
	return nil
}

func nowPlaying(title string) *guild.NowPlaying {
	return &guild.NowPlaying{Track: queue.NewTrack("https://youtu.be/x", title, "tester", 0)}
}

func TestRefreshShowsServerCountWhenIdle(t *testing.T) {
	rec := &statusRecorder{}
	pm := newPresenceManager(playingSource{}, rec.update, func() int { return 3 }, nil)

	pm.Refresh()
	require.Len(t, rec.updates, 1)
	activity := rec.updates[0].Activities[0]
	assert.Equal(t, discordgo.ActivityTypeWatching, activity.Type)
	assert.Equal(t, "in 3 servers", activity.State)
	assert.Equal(t, PresenceDefault, pm.GetCurrentPresence())

	pm.Refresh()
	assert.Len(t, rec.updates, 1, "unchanged presence is not resent")
}

func TestRefreshShowsPlayingTitle(t *testing.T) {
	rec := &statusRecorder{}
	source := playingSource{"2": nowPlaying("Second"), "1": nowPlaying("First")}
	pm := newPresenceManager(source, rec.update, func() int { return 2 }, nil)

	pm.Refresh()
	require.Len(t, rec.updates, 1)
	activity := rec.updates[0].Activities[0]
	assert.Equal(t, discordgo.ActivityTypeListening, activity.Type)
	assert.Equal(t, "First (+1 more)", activity.State)
	assert.Equal(t, PresenceMusic, pm.GetCurrentPresence())

	delete(source, "2")
	delete(source, "1")
	pm.Refresh()
	assert.Equal(t, PresenceDefault, pm.GetCurrentPresence())
}

func TestFailedUpdateIsRetried(t *testing.T) {
	rec := &statusRecorder{err: errors.New("gateway closed")}
	pm := newPresenceManager(playingSource{}, rec.update, func() int { return 1 }, nil)

	pm.Refresh()
	assert.Empty(t, pm.GetCurrentPresence())

	rec.err = nil
	pm.Refresh()
	assert.Len(t, rec.updates, 1)
	assert.Equal(t, PresenceDefault, pm.GetCurrentPresence())
}
