// Package handlers routes Discord gateway events to commands.
package handlers

import (
	"math/rand/v2"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/internal/commands"
)

var mentionResponses = []string{
	"Nya! Try `%shelp` to see what I can play.",
	"I'm listening... well, only if voice commands are on.",
	"If YouTube won't play it, one of my Neko friends will.",
}

// ParseCommand splits a message into a command name and its arguments. ok is
// false when content does not start with prefix.
func ParseCommand(content, prefix string) (name string, args []string, ok bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// Dispatch runs the named command. It reports whether the name was known.
func Dispatch(bot *commands.Bot, s *discordgo.Session, m *discordgo.MessageCreate, name string, args []string) bool {
	switch name {
	case "play", "p":
		bot.PlayCommand(s, m, args)
	case "pause":
		bot.PauseCommand(s, m)
	case "resume":
		bot.ResumeCommand(s, m)
	case "skip", "s":
		bot.SkipCommand(s, m)
	case "stop":
		bot.StopCommand(s, m)
	case "queue", "q":
		bot.QueueCommand(s, m, args)
	case "remove":
		bot.RemoveCommand(s, m, args)
	case "clear":
		bot.ClearCommand(s, m, args)
	case "shuffle":
		bot.ShuffleCommand(s, m, args)
	case "loop":
		bot.LoopCommand(s, m, args)
	case "nowplaying", "np":
		bot.NowPlayingCommand(s, m)
	case "leave":
		bot.LeaveCommand(s, m, args)
	case "stats":
		bot.StatsCommand(s, m)
	case "neko":
		bot.NekoCommand(s, m, args)
	case "voice":
		bot.VoiceCommand(s, m, args)
	case "cost":
		bot.CostCommand(s, m, args)
	case "cron":
		bot.CronCommand(s, m, args)
	case "servers":
		bot.ServersCommand(s, m)
	case "about":
		bot.AboutCommand(s, m)
	case "help", "h":
		bot.HelpCommand(s, m)
	default:
		return false
	}
	return true
}

// MessageHandler returns the handler for prefixed text commands
func MessageHandler(bot *commands.Bot) func(*discordgo.Session, *discordgo.MessageCreate) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		// Ignore all messages created by the bot itself
		if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
			return
		}
		prefix := bot.Prefix()

		for _, mention := range m.Mentions {
			if mention.ID == s.State.User.ID {
				response := mentionResponses[rand.IntN(len(mentionResponses))]
				s.ChannelMessageSend(m.ChannelID, strings.ReplaceAll(response, "%s", prefix))
				return
			}
		}

		name, args, ok := ParseCommand(m.Content, prefix)
		if !ok {
			return
		}
		if m.GuildID == "" {
			s.ChannelMessageSend(m.ChannelID, "Commands only work inside a server.")
			return
		}
		if !Dispatch(bot, s, m, name, args) {
			s.ChannelMessageSend(m.ChannelID, "Unknown command. Try "+prefix+"help to see what I can do.")
		}
	}
}
