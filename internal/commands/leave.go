package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// LeaveCommand leaves the voice channel of the current server. With a server
// id the bot owner can make the bot leave that server entirely.
func (b *Bot) LeaveCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) < 1 {
		if _, ok := b.Guilds.Get(m.GuildID); !ok {
			b.sendEmbedMessage(s, m.ChannelID, "❌ Error", "I'm not in a voice channel.", colorError)
			return
		}
		b.disconnect(s, m.GuildID)
		b.sendEmbedMessage(s, m.ChannelID, "👋 Disconnected", "Left the voice channel.", colorSuccess)
		return
	}

	if !b.requireOwner(s, m) {
		return
	}

	serverID := args[0]

	// Discord IDs are 17-19 digits
	if len(serverID) < 17 || len(serverID) > 19 {
		s.ChannelMessageSend(m.ChannelID, "❌ Invalid server ID format.")
		return
	}

	g, err := s.Guild(serverID)
	if err != nil {
		s.ChannelMessageSend(m.ChannelID, "❌ Server not found or bot is not in that server.")
		return
	}

	b.disconnect(s, serverID)
	if err := s.GuildLeave(serverID); err != nil {
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("❌ Failed to leave server: %v", err))
		return
	}

	s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("✅ Successfully left **%s** (ID: %s)", g.Name, serverID))
}
