package commands

import (
	"github.com/bwmarrin/discordgo"
)

// ResumeCommand resumes a paused track
func (b *Bot) ResumeCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	t, ok := b.tenant(s, m)
	if !ok {
		return
	}

	if np := t.NowPlaying(); np != nil && !np.Paused {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Error", "Playback is not paused.", colorError)
		return
	}
	if err := t.Resume(); err != nil {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Error", controlError(err), colorError)
		return
	}
	b.sendEmbedMessage(s, m.ChannelID, "▶️ Playback Resumed", "Music playback has been resumed.", colorSuccess)
}
