package commands

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// ServersCommand lists the servers the bot is joined to and marks the ones
// with an active session
func (b *Bot) ServersCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	if !b.requireOwner(s, m) {
		return
	}

	guilds := s.State.Guilds
	if len(guilds) == 0 {
		s.ChannelMessageSend(m.ChannelID, "I'm not joined to any servers.")
		return
	}

	playing := b.Guilds.Playing()

	var response strings.Builder
	if len(guilds) == 1 {
		response.WriteString("I'm joined to **1 server**:\n")
	} else {
		fmt.Fprintf(&response, "I'm joined to **%d servers**:\n", len(guilds))
	}
	for i, g := range guilds {
		fmt.Fprintf(&response, "• **%s** (ID: `%s`)", g.Name, g.ID)
		if np, ok := playing[g.ID]; ok {
			fmt.Fprintf(&response, " 🎶 %s", np.Track.Title)
		}
		if i < len(guilds)-1 {
			response.WriteString("\n")
		}
	}

	fmt.Fprintf(&response, "\n\n💡 **Tip**: Use `%sleave <server_id>` to leave a server.", b.Prefix())
	s.ChannelMessageSend(m.ChannelID, response.String())
}
