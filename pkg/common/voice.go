package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/pkg/logging"
)

// ErrNotInVoice is returned when the requesting user is not in a voice channel
var ErrNotInVoice = errors.New("you must be in a voice channel to play music")

const (
	joinAttempts     = 3
	readyTimeout     = 10 * time.Second
	readyPollPeriod  = 100 * time.Millisecond
	joinBackoffUnits = time.Second
)

// UserVoiceChannel returns the voice channel userID is connected to in guildID
func UserVoiceChannel(s *discordgo.Session, guildID, userID string) (string, error) {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("could not find guild: %w", err)
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, nil
		}
	}
	return "", ErrNotInVoice
}

// JoinVoiceChannel joins channelID with retry and waits for the connection to
// become ready. listen keeps the bot undeafened so voice commands can be heard.
func JoinVoiceChannel(ctx context.Context, s *discordgo.Session, guildID, channelID string, listen bool, logger logging.Logger) (*discordgo.VoiceConnection, error) {
	if logger == nil {
		logger = logging.NullLogger()
	}
	logger = logger.With(logging.String("guild_id", guildID), logging.String("channel_id", channelID))

	channelName := "Unknown"
	if channel, err := s.State.Channel(channelID); err == nil {
		channelName = channel.Name
	}
	logger.Info("Joining voice channel", logging.String("channel", channelName), logging.Bool("listen", listen))

	var vc *discordgo.VoiceConnection
	var err error
	for i := 0; i < joinAttempts; i++ {
		vc, err = s.ChannelVoiceJoin(guildID, channelID, false, !listen)
		if err == nil {
			break
		}

		logger.Warn("Voice join attempt failed",
			logging.Int("attempt", i+1),
			logging.Int("max_attempts", joinAttempts),
			logging.Error(err))
		if i < joinAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i+1) * joinBackoffUnits):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel after %d attempts: %w", joinAttempts, err)
	}

	timeout := time.NewTimer(readyTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(readyPollPeriod)
	defer ticker.Stop()

	for {
		if voiceReady(vc) {
			logger.Info("Voice connection ready")
			return vc, nil
		}
		select {
		case <-ctx.Done():
			_ = vc.Disconnect()
			return nil, ctx.Err()
		case <-timeout.C:
			_ = vc.Disconnect()
			return nil, ErrVoiceNotReady
		case <-ticker.C:
		}
	}
}

// FindAndJoinUserVoiceChannel joins the voice channel of userID
func FindAndJoinUserVoiceChannel(ctx context.Context, s *discordgo.Session, userID, guildID string, listen bool, logger logging.Logger) (*discordgo.VoiceConnection, error) {
	channelID, err := UserVoiceChannel(s, guildID, userID)
	if err != nil {
		return nil, err
	}
	return JoinVoiceChannel(ctx, s, guildID, channelID, listen, logger)
}

// DisconnectFromVoiceChannel leaves the voice channel of guildID, if any
func DisconnectFromVoiceChannel(s *discordgo.Session, guildID string, logger logging.Logger) error {
	s.RLock()
	vc, ok := s.VoiceConnections[guildID]
	s.RUnlock()
	if !ok {
		return nil
	}
	if err := vc.Disconnect(); err != nil {
		return fmt.Errorf("disconnect voice: %w", err)
	}
	if logger != nil {
		logger.Info("Disconnected from voice channel", logging.String("guild_id", guildID))
	}
	return nil
}

func voiceReady(vc *discordgo.VoiceConnection) bool {
	vc.RLock()
	defer vc.RUnlock()
	return vc.Ready
}
