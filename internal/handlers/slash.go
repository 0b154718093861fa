package handlers

import (
	"strconv"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/internal/commands"
	"github.com/latoulicious/nekobeat/pkg/logging"
)

// SlashCommandHandler returns the handler for slash command interactions
func SlashCommandHandler(bot *commands.Bot, logger logging.Logger) func(*discordgo.Session, *discordgo.InteractionCreate) {
	if logger == nil {
		logger = logging.NullLogger()
	}
	logger = logger.With(logging.String("component", "slash"))

	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		// slash commands are guild only; DMs carry no member
		if i.Member == nil || i.Member.User == nil || i.Member.User.Bot {
			return
		}

		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			handleApplicationCommand(bot, s, i, logger)
		case discordgo.InteractionApplicationCommandAutocomplete:
			handleAutocomplete(s, i, logger)
		default:
			logger.Debug("Unknown interaction type", logging.Int("type", int(i.Type)))
		}
	}
}

// handleApplicationCommand acknowledges the interaction and runs the text
// command of the same name. The command posts its own embed to the channel.
func handleApplicationCommand(bot *commands.Bot, s *discordgo.Session, i *discordgo.InteractionCreate, logger logging.Logger) {
	data := i.ApplicationCommandData()

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		logger.Warn("Error acknowledging interaction", logging.Error(err))
		return
	}

	// Create a mock message for compatibility with the text commands
	mockMessage := &discordgo.MessageCreate{
		Message: &discordgo.Message{
			GuildID:   i.GuildID,
			ChannelID: i.ChannelID,
			Author:    i.Member.User,
		},
	}

	response := "✅ Done!"
	if !Dispatch(bot, s, mockMessage, data.Name, SlashArgs(data)) {
		response = "❌ Unknown command."
	}

	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &response}); err != nil {
		logger.Warn("Error sending interaction response", logging.Error(err))
	}
}

// SlashArgs flattens interaction options into text command arguments
func SlashArgs(data discordgo.ApplicationCommandInteractionData) []string {
	var action, index string
	var args []string
	for _, option := range data.Options {
		switch option.Type {
		case discordgo.ApplicationCommandOptionInteger:
			index = strconv.FormatInt(option.IntValue(), 10)
		default:
			if option.Name == "action" {
				action = option.StringValue()
				continue
			}
			args = append(args, option.StringValue())
		}
	}

	if action != "" {
		args = append([]string{action}, args...)
	}
	if index != "" {
		args = append(args, index)
	}
	return args
}

func handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate, logger logging.Logger) {
	data := i.ApplicationCommandData()

	var choices []*discordgo.ApplicationCommandOptionChoice
	switch data.Name {
	case "play":
		choices = []*discordgo.ApplicationCommandOptionChoice{
			{Name: "YouTube URL", Value: "https://youtube.com/watch?v="},
		}
	case "queue":
		choices = []*discordgo.ApplicationCommandOptionChoice{
			{Name: "list", Value: "list"},
			{Name: "remove", Value: "remove"},
			{Name: "clear", Value: "clear"},
		}
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		logger.Warn("Error sending autocomplete response", logging.Error(err))
	}
}
