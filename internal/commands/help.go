package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// HelpCommand lists the available commands
func (b *Bot) HelpCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	s.ChannelMessageSendEmbed(m.ChannelID, helpEmbed(b.Prefix()))
}

func helpEmbed(p string) *discordgo.MessageEmbed {
	lines := func(items ...string) string {
		for i, item := range items {
			items[i] = "• " + strings.ReplaceAll(item, "!", p)
		}
		return strings.Join(items, "\n")
	}

	return &discordgo.MessageEmbed{
		Title:       "nekobeat",
		Description: "Here are all the available commands for the bot:",
		Color:       colorSuccess,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "Music Commands",
				Value: lines(
					"`!play <url|search>` / `!p` - Play a YouTube video or the first search result",
					"`!nowplaying` / `!np` - Show the currently playing track",
					"`!queue` / `!q` - List the current queue",
					"`!remove <position>` - Remove a track from the queue",
					"`!clear` - Clear the upcoming queue (confirmation for non-admins)",
					"`!shuffle` - Shuffle the upcoming queue",
					"`!loop off|track|queue` - Set the loop mode",
					"`!pause` / `!resume` - Pause or resume playback",
					"`!skip` / `!s` - Skip the currently playing track",
					"`!stop` - Stop playback and clear the queue",
					"`!leave` - Leave the voice channel",
				),
			},
			{
				Name: "Information Commands",
				Value: lines(
					"`!stats` - Show direct and fallback playback statistics",
					"`!neko [id]` - Show the Neko fallback workers",
					"`!cost` - Show the estimated voice recognition spend",
					"`!voice` - Show whether voice commands are on",
					"`!about` - Show bot info, uptime, and stats",
					"`!help` / `!h` - Show this help message",
				),
			},
			{
				Name: "Admin Commands (Bot Owner Only)",
				Value: lines(
					"`!neko restart <id>` - Restart a Neko worker",
					"`!voice on|off` - Toggle voice commands",
					"`!cost reset` - Reset the recognition cost tracker",
					"`!cron [run <job>]` - Show or trigger housekeeping jobs",
					"`!servers` - List servers the bot is connected to",
					"`!leave <server_id>` - Force bot to leave a server by ID",
				),
			},
			{
				Name: "🎙️ Voice Commands",
				Value: lines(
					"Say **neko play <song>**, **neko skip**, **neko pause**, **neko resume** or **neko stop**",
					"Also **neko shuffle**, **neko loop off|track|queue** and **neko what's playing**",
				),
			},
			{
				Name: "💡 Tips",
				Value: lines(
					"Join a voice channel **before** using music commands",
					fmt.Sprintf("Only **YouTube links and searches** are supported (prefix: `%s`)", p),
				),
			},
		},
	}
}
