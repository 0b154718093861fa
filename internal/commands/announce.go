package commands

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/internal/guild"
	"github.com/latoulicious/nekobeat/pkg/failure"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/playback"
	"github.com/latoulicious/nekobeat/pkg/queue"
	"github.com/latoulicious/nekobeat/pkg/stats"
	"github.com/latoulicious/nekobeat/pkg/youtube"
)

// PresenceUpdater is refreshed whenever playback starts or ends
type PresenceUpdater interface {
	Refresh()
}

// Announcer posts play loop events to the text channel each guild was last
// commanded from.
type Announcer struct {
	session  *discordgo.Session
	logger   logging.Logger
	presence PresenceUpdater

	mu       sync.RWMutex
	channels map[string]string
}

// NewAnnouncer creates an announcer posting through session
func NewAnnouncer(session *discordgo.Session, logger logging.Logger) *Announcer {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Announcer{
		session:  session,
		logger:   logger.With(logging.String("component", "announcer")),
		channels: make(map[string]string),
	}
}

// UsePresence sets the presence refreshed on track changes
func (a *Announcer) UsePresence(p PresenceUpdater) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.presence = p
}

// Remember records the channel announcements for guildID go to
func (a *Announcer) Remember(guildID, channelID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.channels[guildID] = channelID
}

// Forget drops the announcement channel of guildID
func (a *Announcer) Forget(guildID string) {
	a.mu.Lock()
	delete(a.channels, guildID)
	a.mu.Unlock()
	a.refreshPresence()
}

func (a *Announcer) channel(guildID string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	id, ok := a.channels[guildID]
	return id, ok
}

func (a *Announcer) refreshPresence() {
	a.mu.RLock()
	p := a.presence
	a.mu.RUnlock()
	if p != nil {
		p.Refresh()
	}
}

// Events returns the play loop callbacks
func (a *Announcer) Events() guild.Events {
	return guild.Events{
		TrackStarted: a.trackStarted,
		TrackFailed:  a.trackFailed,
		QueueEnded:   a.queueEnded,
	}
}

func (a *Announcer) trackStarted(guildID string, track *queue.Track, outcome playback.Outcome) {
	a.refreshPresence()
	channelID, ok := a.channel(guildID)
	if !ok {
		return
	}
	a.send(channelID, nowPlayingEmbed(track, outcome.Method.String(), outcome.WorkerID()))
}

func (a *Announcer) trackFailed(guildID string, track *queue.Track, err error) {
	channelID, ok := a.channel(guildID)
	if !ok {
		return
	}
	embed := &discordgo.MessageEmbed{
		Title:       "❌ Playback Failed",
		Description: fmt.Sprintf("Could not play **%s**.\n%s", track.Title, describeFailure(err)),
		Color:       colorError,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Reason", Value: failure.KindOf(err).String(), Inline: true},
		},
	}
	a.send(channelID, embed)
}

func (a *Announcer) queueEnded(guildID string) {
	a.refreshPresence()
	channelID, ok := a.channel(guildID)
	if !ok {
		return
	}
	a.send(channelID, &discordgo.MessageEmbed{
		Title:       "📭 Queue Finished",
		Description: "No more songs in the queue.",
		Color:       colorIdle,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
	})
}

func (a *Announcer) send(channelID string, embed *discordgo.MessageEmbed) {
	if a.session == nil {
		return
	}
	if _, err := a.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		a.logger.Warn("Failed to send announcement", logging.String("channel_id", channelID), logging.Error(err))
	}
}

func describeFailure(err error) string {
	switch failure.KindOf(err) {
	case failure.KindRateLimited:
		return "YouTube is rate limiting playback right now."
	case failure.KindAuthRequired:
		return "YouTube wants a signed-in session for this video."
	case failure.KindWorkerUnavailable:
		return "No playback worker is free right now. Try again shortly."
	default:
		return "Something went wrong while starting the stream."
	}
}

func describeMethod(method, workerID string) string {
	if method == stats.MethodPooledFallback.String() {
		return fmt.Sprintf("🐱 Neko worker `%s`", workerID)
	}
	return "▶️ Direct stream"
}

// nowPlayingEmbed describes a track and how it is being played
func nowPlayingEmbed(track *queue.Track, method, workerID string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "🎶 Now Playing",
		Description: fmt.Sprintf("**%s**", track.Title),
		Color:       colorSuccess,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Requested by", Value: track.RequestedBy, Inline: true},
			{Name: "Duration", Value: formatDuration(track.Duration), Inline: true},
			{Name: "Source", Value: describeMethod(method, workerID), Inline: true},
		},
	}

	if videoID := youtube.ExtractVideoID(track.URL); videoID != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: youtube.ThumbnailURL(videoID)}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "🔗 YouTube Link",
			Value:  fmt.Sprintf("[Open in YouTube](%s)", track.URL),
			Inline: true,
		})
	}
	return embed
}
