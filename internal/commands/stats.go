package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/pkg/failure"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/pool"
	"github.com/latoulicious/nekobeat/pkg/stats"
	"github.com/latoulicious/nekobeat/pkg/voice"
	"github.com/samber/lo"
)

const (
	restartTimeout = 30 * time.Second
	recentShown    = 5
)

// StatsCommand shows playback counters and recent failures
func (b *Bot) StatsCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	if b.Stats == nil {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Error", "Playback statistics are not available.", colorError)
		return
	}
	s.ChannelMessageSendEmbed(m.ChannelID, statsEmbed(b.Stats.GetStats(), b.Stats.GetErrorMetrics()))
}

func statsEmbed(snap stats.Snapshot, errs stats.ErrorMetrics) *discordgo.MessageEmbed {
	kinds := make([]string, 0, len(failure.Kinds))
	for _, kind := range failure.Kinds {
		kinds = append(kinds, fmt.Sprintf("`%s`: %d", kind, errs.Counts[kind.String()]))
	}

	embed := &discordgo.MessageEmbed{
		Title:     "📊 Playback Statistics",
		Color:     colorInfo,
		Timestamp: snap.TakenAt.Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: footerText},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Direct", Value: fmt.Sprintf("%d / %d (%s)", snap.DirectSuccesses, snap.DirectAttempts, percent(snap.DirectSuccesses, snap.DirectAttempts)), Inline: true},
			{Name: "Fallback", Value: fmt.Sprintf("%d / %d (%s)", snap.FallbackSuccesses, snap.FallbackAttempts, percent(snap.FallbackSuccesses, snap.FallbackAttempts)), Inline: true},
			{Name: "Cancelled", Value: strconv.FormatInt(snap.Cancellations, 10), Inline: true},
			{Name: fmt.Sprintf("Failures (%d)", errs.Total), Value: strings.Join(kinds, "\n"), Inline: false},
		},
	}

	if len(errs.Recent) > 0 {
		recent := errs.Recent
		if len(recent) > recentShown {
			recent = recent[len(recent)-recentShown:]
		}
		lines := lo.Map(recent, func(r stats.FailureRecord, _ int) string {
			title := r.Title
			if title == "" {
				title = r.TrackID
			}
			return fmt.Sprintf("<t:%d:R> **%s** via %s: `%s`", r.Timestamp.Unix(), title, r.Method, r.Kind)
		})
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Recent Failures",
			Value: strings.Join(lines, "\n"),
		})
	}
	return embed
}

func percent(n, total int64) string {
	if total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.0f%%", float64(n)*100/float64(total))
}

// NekoCommand lists the fallback workers, or restarts one with `neko restart <id>`
func (b *Bot) NekoCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if b.Workers == nil {
		b.sendEmbedMessage(s, m.ChannelID, "🐱 Neko Workers", "No fallback workers are configured.", colorIdle)
		return
	}

	if len(args) > 0 && strings.ToLower(args[0]) == "restart" {
		b.restartWorker(s, m, args[1:])
		return
	}
	if len(args) > 0 {
		instance, err := b.Workers.GetInstanceByID(args[0])
		if err != nil {
			b.sendEmbedMessage(s, m.ChannelID, "❌ Error", fmt.Sprintf("Unknown worker `%s`.", args[0]), colorError)
			return
		}
		s.ChannelMessageSendEmbed(m.ChannelID, instancesEmbed([]pool.InstanceSnapshot{instance}))
		return
	}

	s.ChannelMessageSendEmbed(m.ChannelID, instancesEmbed(b.Workers.GetAllInstances()))
}

func (b *Bot) restartWorker(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if !b.requireOwner(s, m) {
		return
	}
	if len(args) < 1 {
		b.sendEmbedMessage(s, m.ChannelID, "❌ Usage Error", fmt.Sprintf("Usage: `%sneko restart <id>`", b.Prefix()), colorError)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), restartTimeout)
	defer cancel()

	id := args[0]
	if err := b.Workers.Restart(ctx, id); err != nil {
		if errors.Is(err, pool.ErrUnknownWorker) {
			b.sendEmbedMessage(s, m.ChannelID, "❌ Error", fmt.Sprintf("Unknown worker `%s`.", id), colorError)
			return
		}
		b.Logger.Warn("Worker restart failed", logging.String("worker_id", id), logging.Error(err))
		b.sendEmbedMessage(s, m.ChannelID, "❌ Restart Failed", fmt.Sprintf("Worker `%s` did not come back: %v", id, err), colorError)
		return
	}
	b.sendEmbedMessage(s, m.ChannelID, "🔄 Worker Restarted", fmt.Sprintf("Worker `%s` restarted.", id), colorSuccess)
}

func instancesEmbed(instances []pool.InstanceSnapshot) *discordgo.MessageEmbed {
	sort.Slice(instances, func(i, j int) bool { return instances[i].ID < instances[j].ID })

	embed := &discordgo.MessageEmbed{
		Title:     "🐱 Neko Workers",
		Color:     colorInfo,
		Timestamp: time.Now().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: footerText},
	}
	if len(instances) == 0 {
		embed.Description = "No fallback workers are configured."
		return embed
	}

	for _, in := range instances {
		lines := []string{
			fmt.Sprintf("State: **%s**", in.State),
			fmt.Sprintf("Authenticated: %t", in.Authenticated),
			fmt.Sprintf("Claims: %d, restarts: %d", in.Claims, in.Restarts),
		}
		if in.Claimed {
			lines = append(lines, "🎧 In use")
		}
		if in.CurrentURL != "" {
			lines = append(lines, fmt.Sprintf("Playing: %s", in.CurrentURL))
		}
		if in.LastError != "" {
			lines = append(lines, fmt.Sprintf("Last error: `%s`", in.LastError))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "`" + in.ID + "`",
			Value:  strings.Join(lines, "\n"),
			Inline: true,
		})
	}
	return embed
}

// VoiceCommand toggles voice commands with `voice on|off`
func (b *Bot) VoiceCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if b.Voice == nil {
		b.sendEmbedMessage(s, m.ChannelID, "🎙️ Voice Commands", "Voice commands are not configured.", colorIdle)
		return
	}
	if len(args) < 1 {
		state := "off"
		if b.Voice.Enabled() {
			state = "on"
		}
		b.sendEmbedMessage(s, m.ChannelID, "🎙️ Voice Commands", fmt.Sprintf("Voice commands are **%s**.", state), colorInfo)
		return
	}
	if !b.requireOwner(s, m) {
		return
	}

	switch strings.ToLower(args[0]) {
	case "on":
		b.Voice.SetEnabled(true)
		b.sendEmbedMessage(s, m.ChannelID, "🎙️ Voice Commands Enabled",
			"I'll listen for commands the next time I join a voice channel.", colorSuccess)
	case "off":
		b.Voice.SetEnabled(false)
		b.stopAllCaptures()
		b.sendEmbedMessage(s, m.ChannelID, "🔇 Voice Commands Disabled", "I've stopped listening in every server.", colorWarning)
	default:
		b.sendEmbedMessage(s, m.ChannelID, "❌ Usage Error", fmt.Sprintf("Usage: `%svoice on|off`", b.Prefix()), colorError)
	}
}

// CostCommand shows the estimated recognition spend, or resets it with `cost reset`
func (b *Bot) CostCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if b.Voice == nil {
		b.sendEmbedMessage(s, m.ChannelID, "💸 Recognition Cost", "Voice commands are not configured.", colorIdle)
		return
	}
	if len(args) > 0 && strings.ToLower(args[0]) == "reset" {
		if !b.requireOwner(s, m) {
			return
		}
		b.Voice.ResetCost()
		b.sendEmbedMessage(s, m.ChannelID, "💸 Recognition Cost", "Cost tracking has been reset.", colorSuccess)
		return
	}
	s.ChannelMessageSendEmbed(m.ChannelID, costEmbed(b.Voice.Cost(), b.Voice.RecognitionsInFlight()))
}

func costEmbed(cost voice.CostSnapshot, inFlight int64) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:     "💸 Recognition Cost",
		Color:     colorInfo,
		Timestamp: time.Now().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%s | Since %s", footerText, cost.Since.Format("Jan 2, 2006 3:04 PM"))},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Calls", Value: strconv.FormatInt(cost.Calls, 10), Inline: true},
			{Name: "Audio Processed", Value: formatDuration(cost.Processed.Round(time.Second)), Inline: true},
			{Name: "Estimated Cost", Value: fmt.Sprintf("$%.4f", cost.EstimatedCost), Inline: true},
			{Name: "Rate", Value: fmt.Sprintf("$%.4f / min", cost.RatePerMinute), Inline: true},
			{Name: "In Flight", Value: strconv.FormatInt(inFlight, 10), Inline: true},
		},
	}
}
