// Package commands implements the text commands of the bot.
package commands

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/internal/config"
	"github.com/latoulicious/nekobeat/internal/guild"
	"github.com/latoulicious/nekobeat/pkg/common"
	"github.com/latoulicious/nekobeat/pkg/cron"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/pool"
	"github.com/latoulicious/nekobeat/pkg/stats"
	"github.com/latoulicious/nekobeat/pkg/voice"
)

// Embed colors
const (
	colorSuccess = 0x00ff00
	colorError   = 0xff0000
	colorWarning = 0xffa500
	colorIdle    = 0x808080
	colorInfo    = 0x7289DA
)

const (
	footerText  = "nekobeat"
	joinTimeout = 15 * time.Second
)

// Workers is the part of the worker pool the admin commands use
type Workers interface {
	GetAllInstances() []pool.InstanceSnapshot
	GetInstanceByID(id string) (pool.InstanceSnapshot, error)
	Restart(ctx context.Context, id string) error
}

// PlaybackStats exposes the playback counters
type PlaybackStats interface {
	GetStats() stats.Snapshot
	GetErrorMetrics() stats.ErrorMetrics
}

// Deps are the subsystems commands operate on. Workers, Voice and Scheduler may be nil.
type Deps struct {
	Config    *config.Config
	Guilds    *guild.Registry
	Resolver  guild.Resolver
	Stats     PlaybackStats
	Workers   Workers
	Voice     *voice.Manager
	Scheduler *cron.Scheduler
	Announcer *Announcer
	Logger    logging.Logger
}

// Bot runs commands against its dependencies
type Bot struct {
	Deps
	startTime time.Time

	mu       sync.Mutex
	captures map[string]context.CancelFunc
}

// NewBot creates a bot
func NewBot(deps Deps) *Bot {
	if deps.Logger == nil {
		deps.Logger = logging.NullLogger()
	}
	deps.Logger = deps.Logger.With(logging.String("component", "commands"))
	return &Bot{
		Deps:      deps,
		startTime: time.Now(),
		captures:  make(map[string]context.CancelFunc),
	}
}

// Prefix returns the command prefix
func (b *Bot) Prefix() string {
	if b.Config == nil || b.Config.CommandPrefix == "" {
		return config.DefaultCommandPrefix
	}
	return b.Config.CommandPrefix
}

func (b *Bot) listening() bool {
	return b.Voice != nil && b.Voice.Enabled()
}

// connect joins the author's voice channel unless the guild already has a
// sink, and starts voice capture when voice commands are enabled.
func (b *Bot) connect(s *discordgo.Session, m *discordgo.MessageCreate) (*guild.Tenant, error) {
	if t, ok := b.Guilds.Get(m.GuildID); ok && t.Connected() {
		return t, nil
	}

	listen := b.listening()
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	vc, err := common.FindAndJoinUserVoiceChannel(ctx, s, m.Author.ID, m.GuildID, listen, b.Logger)
	if err != nil {
		return nil, err
	}

	sink := common.NewAudioPipeline(vc, b.Logger)
	tenant, pipeline, err := b.Guilds.Connect(m.GuildID, sink, listen)
	if err != nil {
		b.Logger.Warn("Voice commands unavailable", logging.String("guild_id", m.GuildID), logging.Error(err))
	}
	if pipeline != nil {
		b.startCapture(s, vc)
	}
	return tenant, nil
}

func (b *Bot) startCapture(s *discordgo.Session, vc *discordgo.VoiceConnection) {
	ctx, cancel := context.WithCancel(context.Background())

	b.mu.Lock()
	if prev, ok := b.captures[vc.GuildID]; ok {
		prev()
	}
	b.captures[vc.GuildID] = cancel
	b.mu.Unlock()

	capture := common.NewCapture(vc, s.State.User.ID, b.Config.Voice.SegmentDuration, b.Voice, b.Logger)
	go capture.Run(ctx)
}

func (b *Bot) stopCapture(guildID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.captures[guildID]; ok {
		cancel()
		delete(b.captures, guildID)
	}
}

func (b *Bot) stopAllCaptures() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, cancel := range b.captures {
		cancel()
		delete(b.captures, id)
	}
}

// disconnect ends the guild session and leaves the voice channel
func (b *Bot) disconnect(s *discordgo.Session, guildID string) {
	b.stopCapture(guildID)
	b.Guilds.Disconnect(guildID)
	if err := common.DisconnectFromVoiceChannel(s, guildID, b.Logger); err != nil {
		b.Logger.Warn("Failed to leave voice channel", logging.String("guild_id", guildID), logging.Error(err))
	}
	if b.Announcer != nil {
		b.Announcer.Forget(guildID)
	}
}

// Shutdown stops every capture and guild session
func (b *Bot) Shutdown(s *discordgo.Session) {
	b.stopAllCaptures()
	for _, id := range b.Guilds.Guilds() {
		b.disconnect(s, id)
	}
}

func (b *Bot) requireOwner(s *discordgo.Session, m *discordgo.MessageCreate) bool {
	if b.Config == nil || b.Config.OwnerID == "" {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Not Configured", "Bot owner ID not configured.", colorError)
		return false
	}
	if !b.Config.IsOwner(m.Author.ID) {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Permission Denied", "This command is restricted to the bot owner.", colorError)
		return false
	}
	return true
}

// tenant returns the guild session or tells the user nothing is playing
func (b *Bot) tenant(s *discordgo.Session, m *discordgo.MessageCreate) (*guild.Tenant, bool) {
	t, ok := b.Guilds.Get(m.GuildID)
	if !ok {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Error", "Nothing is playing in this server.", colorError)
		return nil, false
	}
	if b.Announcer != nil {
		b.Announcer.Remember(m.GuildID, m.ChannelID)
	}
	return t, true
}

func (b *Bot) sendEmbedMessage(s *discordgo.Session, channelID, title, description string, color int) {
	b.sendEmbed(s, channelID, &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
	})
}

func (b *Bot) sendEmbed(s *discordgo.Session, channelID string, embed *discordgo.MessageEmbed) {
	if _, err := s.ChannelMessageSendEmbed(channelID, embed); err != nil {
		b.Logger.Warn("Error sending message",
			logging.String("channel_id", channelID),
			logging.String("title", embed.Title),
			logging.Error(err))
	}
}

// hasAdminPermissions checks if a user has a role with administrator permission
func hasAdminPermissions(s *discordgo.Session, guildID, userID string) bool {
	member, err := s.GuildMember(guildID, userID)
	if err != nil {
		return false
	}

	for _, roleID := range member.Roles {
		role, err := s.State.Role(guildID, roleID)
		if err != nil {
			continue
		}
		if role.Permissions&discordgo.PermissionAdministrator != 0 {
			return true
		}
	}
	return false
}
