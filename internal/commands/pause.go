package commands

import (
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/internal/guild"
)

// PauseCommand pauses the active track
func (b *Bot) PauseCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	t, ok := b.tenant(s, m)
	if !ok {
		return
	}

	if np := t.NowPlaying(); np != nil && np.Paused {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Error", "Playback is already paused.", colorError)
		return
	}
	if err := t.Pause(); err != nil {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Error", controlError(err), colorError)
		return
	}
	b.sendEmbedMessage(s, m.ChannelID, "⏸️ Playback Paused", "Music playback has been paused.", colorWarning)
}

func controlError(err error) string {
	if errors.Is(err, guild.ErrNotConnected) {
		return "I'm not in a voice channel."
	}
	return "Nothing is playing."
}
