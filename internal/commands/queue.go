package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/pkg/queue"
)

// maxListed bounds the tracks shown by the queue listing
const maxListed = 10

// QueueCommand lists the queue or runs a queue subcommand
func (b *Bot) QueueCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) < 1 {
		b.showQueue(s, m)
		return
	}

	switch strings.ToLower(args[0]) {
	case "list":
		b.showQueue(s, m)
	case "add":
		b.PlayCommand(s, m, args[1:])
	case "remove":
		b.RemoveCommand(s, m, args[1:])
	case "clear":
		b.ClearCommand(s, m, args[1:])
	default:
		b.sendEmbedMessage(s, m.ChannelID, "❌ Usage Error",
			fmt.Sprintf("Usage: `%squeue [list|add|remove|clear] [args...]`", b.Prefix()), colorError)
	}
}

func (b *Bot) showQueue(s *discordgo.Session, m *discordgo.MessageCreate) {
	t, ok := b.Guilds.Get(m.GuildID)
	if !ok {
		b.sendEmbedMessage(s, m.ChannelID, "📭 Queue Empty", "Queue is empty.", colorIdle)
		return
	}
	var current *queue.Track
	if np := t.NowPlaying(); np != nil {
		current = np.Track
	}
	b.sendEmbed(s, m.ChannelID, queueEmbed(current, t.Queue().GetQueue(), t.Queue().GetLoopMode()))
}

// queueEmbed renders the active track and what is coming up
func queueEmbed(current *queue.Track, upcoming []*queue.Track, loop queue.LoopMode) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:     "🎵 Music Queue",
		Color:     colorInfo,
		Timestamp: time.Now().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%s | Loop: %s", footerText, loop)},
	}

	if current == nil && len(upcoming) == 0 {
		embed.Description = "📭 Queue is empty."
		embed.Color = colorIdle
		return embed
	}

	var desc strings.Builder
	if current != nil {
		fmt.Fprintf(&desc, "🎶 **Now Playing:** %s (Requested by: %s)\n\n", current.Title, current.RequestedBy)
	}
	if len(upcoming) == 0 {
		desc.WriteString("📋 No songs in queue.")
	} else {
		desc.WriteString("📋 **Up Next:**\n")
		var total time.Duration
		for i, track := range upcoming {
			total += track.Duration
			if i < maxListed {
				fmt.Fprintf(&desc, "%d. **%s** `%s` (Requested by: %s)\n", i+1, track.Title, formatDuration(track.Duration), track.RequestedBy)
			}
		}
		if len(upcoming) > maxListed {
			fmt.Fprintf(&desc, "...and %d more\n", len(upcoming)-maxListed)
		}
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Songs", Value: strconv.Itoa(len(upcoming)), Inline: true},
			{Name: "Total Length", Value: formatDuration(total), Inline: true},
		}
	}
	embed.Description = desc.String()
	return embed
}

// RemoveCommand deletes an upcoming track by its 1-based position in the listing
func (b *Bot) RemoveCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	t, ok := b.tenant(s, m)
	if !ok {
		return
	}
	if len(args) < 1 {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Usage Error", fmt.Sprintf("Usage: `%sremove <position>`", b.Prefix()), colorError)
		return
	}

	position, err := strconv.Atoi(args[0])
	if err != nil || position < 1 {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Error",
			fmt.Sprintf("Invalid position. Use `%squeue` to see queue positions.", b.Prefix()), colorError)
		return
	}

	// the listing starts after the current track
	index := t.Queue().CurrentIndex() + position
	removed, err := t.Queue().Remove(index)
	if err != nil {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Error", fmt.Sprintf("No song at position %d.", position), colorError)
		return
	}
	b.sendEmbedMessage(s, m.ChannelID, "🗑️ Song Removed", fmt.Sprintf("Removed **%s** from the queue.", removed.Title), colorSuccess)
}

// LoopCommand sets the loop mode
func (b *Bot) LoopCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	t, ok := b.tenant(s, m)
	if !ok {
		return
	}
	if len(args) < 1 {
		b.sendEmbedMessage(s, m.ChannelID, "🔁 Loop", fmt.Sprintf("Loop mode is **%s**.", t.Queue().GetLoopMode()), colorInfo)
		return
	}

	mode, err := queue.ParseLoopMode(args[0])
	if err != nil {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Usage Error", fmt.Sprintf("Usage: `%sloop off|track|queue`", b.Prefix()), colorError)
		return
	}
	t.Queue().SetLoop(mode)
	b.sendEmbedMessage(s, m.ChannelID, "🔁 Loop", fmt.Sprintf("Loop mode set to **%s**.", mode), colorSuccess)
}

// formatDuration formats a duration into a human-readable string
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "live"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60

	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	hours := minutes / 60
	minutes = minutes % 60

	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}
