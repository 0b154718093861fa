package commands

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/internal/guild"
)

// NowPlayingCommand shows the active track
func (b *Bot) NowPlayingCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	t, ok := b.Guilds.Get(m.GuildID)
	if !ok {
		b.sendNothingPlayingEmbed(s, m.ChannelID, b.Prefix())
		return
	}

	np := t.NowPlaying()
	if np == nil {
		b.sendNothingPlayingEmbed(s, m.ChannelID, b.Prefix())
		return
	}

	b.sendEmbed(s, m.ChannelID, nowPlayingStatusEmbed(np))
}

// sendNothingPlayingEmbed sends an embed when nothing is playing
func (b *Bot) sendNothingPlayingEmbed(s *discordgo.Session, channelID, prefix string) {
	embed := &discordgo.MessageEmbed{
		Title:       "🎵 Now Playing",
		Description: "Nothing is currently playing",
		Color:       colorIdle,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Use %splay to start playing music", prefix),
		},
	}

	b.sendEmbed(s, channelID, embed)
}

// nowPlayingStatusEmbed is the now playing embed plus the playback state
func nowPlayingStatusEmbed(np *guild.NowPlaying) *discordgo.MessageEmbed {
	embed := nowPlayingEmbed(np.Track, np.Method, np.WorkerID)

	statusEmoji, statusText := "🟢", "Playing"
	switch {
	case np.Method == "":
		statusEmoji, statusText = "🟡", "Connecting..."
	case np.Paused:
		statusEmoji, statusText = "⏸️", "Paused"
	}

	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{
			Name:   "Status",
			Value:  fmt.Sprintf("%s %s", statusEmoji, statusText),
			Inline: true,
		},
		&discordgo.MessageEmbedField{
			Name:   "Added to queue",
			Value:  np.Track.AddedAt.Format("Jan 2, 2006 3:04 PM"),
			Inline: false,
		})
	return embed
}
