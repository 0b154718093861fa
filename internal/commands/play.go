package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/pkg/common"
	"github.com/latoulicious/nekobeat/pkg/logging"
)

const resolveTimeout = 30 * time.Second

// PlayCommand queues a YouTube URL or the first search result and joins the
// author's voice channel if needed
func (b *Bot) PlayCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if len(args) < 1 {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Usage Error", "Please provide a YouTube URL or search query.", colorError)
		return
	}
	if b.Announcer != nil {
		b.Announcer.Remember(m.GuildID, m.ChannelID)
	}

	query := args[0]
	if len(args) > 1 {
		query = strings.Join(args, " ")
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	track, err := b.Resolver.Resolve(ctx, query, m.Author.Username)
	if err != nil {
		b.Logger.Warn("Failed to resolve track", logging.String("query", query), logging.Error(err))
		b.sendEmbedMessage(s, m.ChannelID, "❌ Search Error", "Failed to find anything for your request.", colorError)
		return
	}

	tenant, err := b.connect(s, m)
	if err != nil {
		if errors.Is(err, common.ErrNotInVoice) {
			b.sendEmbedMessage(s, m.ChannelID, "❌ Error", "You must be in a voice channel to play music.", colorError)
			return
		}
		b.Logger.Error("Failed to join voice channel", logging.String("guild_id", m.GuildID), logging.Error(err))
		b.sendEmbedMessage(s, m.ChannelID, "❌ Error", "Failed to join your voice channel.", colorError)
		return
	}

	idle := tenant.NowPlaying() == nil
	pending, err := tenant.Enqueue(track)
	if err != nil {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Error", "This server's session is closing. Try again.", colorError)
		return
	}

	if idle && pending == 1 {
		return
	}
	description := fmt.Sprintf("✅ Added **%s** to queue (Position: %d)", track.Title, pending)
	b.sendEmbedMessage(s, m.ChannelID, "🎵 Song Added", description, colorSuccess)
}
