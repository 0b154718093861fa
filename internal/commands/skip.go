package commands

import (
	"github.com/bwmarrin/discordgo"
)

// SkipCommand ends the active track and moves on to the next one
func (b *Bot) SkipCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	t, ok := b.tenant(s, m)
	if !ok {
		return
	}
	if err := t.Skip(); err != nil {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Error", "Nothing is playing.", colorError)
		return
	}
	b.sendEmbedMessage(s, m.ChannelID, "⏭️ Skipped", "Skipped to the next song.", colorSuccess)
}
