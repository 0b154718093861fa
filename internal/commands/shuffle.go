package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// announceThreshold is the queue size above which the new top song is always announced
const announceThreshold = 5

// ShuffleCommand shuffles the upcoming tracks
func (b *Bot) ShuffleCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	t, ok := b.tenant(s, m)
	if !ok {
		return
	}

	q := t.Queue()
	queueSize := len(q.GetQueue())
	if queueSize < 2 {
		b.sendEmbedMessage(s, m.ChannelID, "📭 Not Enough Songs", "Need at least 2 songs to shuffle the queue.", colorIdle)
		return
	}

	q.Shuffle()

	embed := &discordgo.MessageEmbed{
		Title:       "🔀 Queue Shuffled",
		Color:       colorSuccess,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
		Description: "The queue has been shuffled successfully!",
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Songs Shuffled", Value: fmt.Sprintf("%d songs", queueSize), Inline: true},
			{Name: "Shuffled By", Value: m.Author.Username, Inline: true},
		},
	}

	announceTop := len(args) > 0 && strings.ToLower(args[0]) == "announce"
	if upcoming := q.GetQueue(); (announceTop || queueSize > announceThreshold) && len(upcoming) > 0 {
		top := upcoming[0]
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "🎵 New Top Song",
			Value:  fmt.Sprintf("**%s**\nRequested by: %s", top.Title, top.RequestedBy),
			Inline: false,
		})
	}

	s.ChannelMessageSendEmbed(m.ChannelID, embed)
}
