package commands

import (
	"github.com/bwmarrin/discordgo"
)

// StopCommand clears the queue and ends the active track. The bot stays in the channel.
func (b *Bot) StopCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	t, ok := b.tenant(s, m)
	if !ok {
		return
	}
	t.Stop()
	b.sendEmbedMessage(s, m.ChannelID, "⏹️ Playback Stopped", "Stopped playback and cleared the queue.", colorWarning)
}
