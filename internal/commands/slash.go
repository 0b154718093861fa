package commands

import (
	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/pkg/logging"
)

// SlashCommands are the application commands mirrored from the text commands
var SlashCommands = []*discordgo.ApplicationCommand{
	{
		Name:        "play",
		Description: "Add a song to the queue and play it",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionString,
				Name:         "query",
				Description:  "YouTube URL or search keywords",
				Required:     true,
				Autocomplete: true,
			},
		},
	},
	{
		Name:        "queue",
		Description: "Manage the music queue",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionString,
				Name:         "action",
				Description:  "list, remove or clear",
				Autocomplete: true,
			},
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "index",
				Description: "Position of the song to remove (1-based)",
			},
		},
	},
	{
		Name:        "loop",
		Description: "Set the loop mode",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "mode",
				Description: "off, track or queue",
				Required:    true,
				Choices: []*discordgo.ApplicationCommandOptionChoice{
					{Name: "off", Value: "off"},
					{Name: "track", Value: "track"},
					{Name: "queue", Value: "queue"},
				},
			},
		},
	},
	{Name: "skip", Description: "Skip the current song"},
	{Name: "stop", Description: "Stop playback and clear the queue"},
	{Name: "pause", Description: "Pause the current playback"},
	{Name: "resume", Description: "Resume paused playback"},
	{Name: "shuffle", Description: "Shuffle the upcoming songs"},
	{Name: "nowplaying", Description: "Show what's currently playing"},
	{Name: "leave", Description: "Leave the voice channel"},
	{Name: "stats", Description: "Show playback statistics"},
	{Name: "neko", Description: "Show the Neko fallback workers"},
	{Name: "help", Description: "Show help information"},
}

// RegisterSlashCommands registers all slash commands globally
func RegisterSlashCommands(s *discordgo.Session, logger logging.Logger) error {
	logger.Info("Registering global slash commands", logging.Int("count", len(SlashCommands)))

	for _, cmd := range SlashCommands {
		if _, err := s.ApplicationCommandCreate(s.State.User.ID, "", cmd); err != nil {
			logger.Error("Error creating command", logging.String("command", cmd.Name), logging.Error(err))
			return err
		}
		logger.Debug("Registered command", logging.String("command", cmd.Name))
	}

	logger.Info("All slash commands registered successfully")
	return nil
}

// DeleteAllSlashCommands deletes all global slash commands
func DeleteAllSlashCommands(s *discordgo.Session, logger logging.Logger) error {
	logger.Info("Deleting all global slash commands")

	registered, err := s.ApplicationCommands(s.State.User.ID, "")
	if err != nil {
		logger.Error("Error fetching commands", logging.Error(err))
		return err
	}

	for _, cmd := range registered {
		if err := s.ApplicationCommandDelete(s.State.User.ID, "", cmd.ID); err != nil {
			logger.Error("Error deleting command", logging.String("command", cmd.Name), logging.Error(err))
			return err
		}
		logger.Debug("Deleted command", logging.String("command", cmd.Name))
	}

	logger.Info("All slash commands deleted successfully")
	return nil
}
