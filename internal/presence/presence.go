// Package presence keeps the bot's Discord status in sync with playback.
package presence

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/internal/guild"
	"github.com/latoulicious/nekobeat/pkg/logging"
)

// Presence types
const (
	PresenceDefault = "default"
	PresenceMusic   = "music"
)

const updateInterval = 5 * time.Minute

// NowPlayingSource reports the active track of every guild
type NowPlayingSource interface {
	Playing() map[string]*guild.NowPlaying
}

// PresenceManager shows the playing title while music plays and the server
// count otherwise
type PresenceManager struct {
	source       NowPlayingSource
	updateStatus func(discordgo.UpdateStatusData) error
	guildCount   func() int
	logger       logging.Logger

	mu      sync.RWMutex
	current string
	status  string
}

// NewPresenceManager creates a presence manager for session
func NewPresenceManager(session *discordgo.Session, source NowPlayingSource, logger logging.Logger) *PresenceManager {
	return newPresenceManager(source, session.UpdateStatusComplex, func() int {
		session.State.RLock()
		defer session.State.RUnlock()
		return len(session.State.Guilds)
	}, logger)
}

func newPresenceManager(source NowPlayingSource, updateStatus func(discordgo.UpdateStatusData) error, guildCount func() int, logger logging.Logger) *PresenceManager {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &PresenceManager{
		source:       source,
		updateStatus: updateStatus,
		guildCount:   guildCount,
		logger:       logger.With(logging.String("component", "presence")),
	}
}

// Refresh picks the presence from the current playback. A status identical to
// the one already shown is not resent.
func (pm *PresenceManager) Refresh() {
	playing := pm.source.Playing()
	if len(playing) == 0 {
		pm.UpdateDefaultPresence()
		return
	}

	// one guild is shown; pick deterministically
	ids := make([]string, 0, len(playing))
	for id := range playing {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	title := playing[ids[0]].Track.Title
	if len(ids) > 1 {
		title = fmt.Sprintf("%s (+%d more)", title, len(ids)-1)
	}
	pm.UpdateMusicPresence(title)
}

// UpdateDefaultPresence shows how many servers the bot is in
func (pm *PresenceManager) UpdateDefaultPresence() {
	guilds := pm.guildCount()
	state := "in " + strconv.Itoa(guilds) + " servers"
	pm.set(PresenceDefault, state, discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  "music in " + strconv.Itoa(guilds) + " servers",
				Type:  discordgo.ActivityTypeWatching,
				State: state,
			},
		},
	})
}

// UpdateMusicPresence shows the playing title
func (pm *PresenceManager) UpdateMusicPresence(songTitle string) {
	pm.set(PresenceMusic, songTitle, discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  songTitle,
				Type:  discordgo.ActivityTypeListening,
				State: songTitle,
			},
		},
	})
}

func (pm *PresenceManager) set(kind, status string, data discordgo.UpdateStatusData) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.current == kind && pm.status == status {
		return
	}
	if err := pm.updateStatus(data); err != nil {
		pm.logger.Warn("Failed to update presence", logging.String("presence", kind), logging.Error(err))
		return
	}
	pm.current = kind
	pm.status = status
}

// GetCurrentPresence returns the current presence type
func (pm *PresenceManager) GetCurrentPresence() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.current
}

// StartPeriodicUpdates refreshes the presence until ctx is cancelled, so the
// server count stays current
func (pm *PresenceManager) StartPeriodicUpdates(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(updateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pm.Refresh()
			}
		}
	}()
}
