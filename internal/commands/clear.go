package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/internal/guild"
)

// confirmThreshold is the number of upcoming songs above which non-admins
// must confirm a clear
const confirmThreshold = 3

// ClearCommand empties the upcoming queue. The active track keeps playing.
func (b *Bot) ClearCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	t, ok := b.tenant(s, m)
	if !ok {
		return
	}

	upcoming := len(t.Queue().GetQueue())
	if upcoming == 0 {
		b.sendEmbedMessage(s, m.ChannelID, "📭 Queue Already Empty", "The queue is already empty.", colorIdle)
		return
	}

	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "confirm":
			b.clearQueue(s, m, t)
			return
		case "cancel":
			b.sendEmbedMessage(s, m.ChannelID, "❌ Cancelled", "Queue clear operation cancelled.", colorIdle)
			return
		}
	}

	if upcoming > confirmThreshold && !hasAdminPermissions(s, m.GuildID, m.Author.ID) {
		embed := &discordgo.MessageEmbed{
			Title:     "⚠️ Confirm Queue Clear",
			Color:     colorWarning,
			Timestamp: time.Now().Format(time.RFC3339),
			Footer:    &discordgo.MessageEmbedFooter{Text: footerText},
			Description: "You're about to clear the entire queue with multiple songs. Are you sure?\n\n" +
				fmt.Sprintf("Reply with `%[1]sclear confirm` to proceed or `%[1]sclear cancel` to cancel.", b.Prefix()),
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Queue Size", Value: fmt.Sprintf("%d songs", upcoming), Inline: true},
				{Name: "Requested By", Value: m.Author.Username, Inline: true},
			},
		}
		s.ChannelMessageSendEmbed(m.ChannelID, embed)
		return
	}

	b.clearQueue(s, m, t)
}

// clearQueue removes every upcoming track, leaving the active one in place
func (b *Bot) clearQueue(s *discordgo.Session, m *discordgo.MessageCreate, t *guild.Tenant) {
	q := t.Queue()
	removed := 0
	for index := q.Size() - 1; index > q.CurrentIndex(); index-- {
		if _, err := q.Remove(index); err == nil {
			removed++
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🗑️ Queue Cleared",
		Color:       colorSuccess,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
		Description: "The queue has been successfully cleared.",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Songs Removed", Value: fmt.Sprintf("%d songs", removed), Inline: true},
			{Name: "Cleared By", Value: m.Author.Username, Inline: true},
		},
	}
	s.ChannelMessageSendEmbed(m.ChannelID, embed)
}
