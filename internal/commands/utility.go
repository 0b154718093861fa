package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/pkg/cron"
)

// CronCommand shows the housekeeping jobs, or triggers one with `cron run <job>`
func (b *Bot) CronCommand(s *discordgo.Session, m *discordgo.MessageCreate, args []string) {
	if !b.requireOwner(s, m) {
		return
	}
	if b.Scheduler == nil {
		s.ChannelMessageSend(m.ChannelID, "❌ Scheduler not available.")
		return
	}

	if len(args) == 0 {
		b.cronStatus(s, m)
		return
	}

	switch strings.ToLower(args[0]) {
	case "status":
		b.cronStatus(s, m)
	case "run":
		if len(args) < 2 {
			s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("❌ Usage: `%scron run <job>`", b.Prefix()))
			return
		}
		b.cronRun(s, m, args[1])
	default:
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("❌ Unknown subcommand.\n\n**Usage:** `%[1]scron [status|run <job>]`\n**Examples:**\n• `%[1]scron`\n• `%[1]scron run stats-report`", b.Prefix()))
	}
}

func (b *Bot) cronStatus(s *discordgo.Session, m *discordgo.MessageCreate) {
	s.ChannelMessageSendEmbed(m.ChannelID, cronEmbed(b.Scheduler.Jobs()))
}

func cronEmbed(jobs []cron.JobStatus) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "⏰ Cron Job Status",
		Description: "Current status of housekeeping jobs",
		Color:       colorInfo,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText + " | Utility Commands"},
	}

	for _, job := range jobs {
		nextRun := "Not scheduled"
		if !job.NextRun.IsZero() {
			nextRun = job.NextRun.Format("2006-01-02 15:04:05")
		}
		lines := []string{
			fmt.Sprintf("📅 Schedule: `%s`", job.Schedule),
			fmt.Sprintf("⏭️ Next Run: %s", nextRun),
			fmt.Sprintf("🔁 Runs: %d", job.Runs),
			fmt.Sprintf("🏃 Currently Running: %t", job.IsRunning),
		}
		if job.LastError != "" {
			lines = append(lines, fmt.Sprintf("🔧 Last Error: `%s`", job.LastError))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   job.Name,
			Value:  strings.Join(lines, "\n"),
			Inline: true,
		})
	}
	return embed
}

func (b *Bot) cronRun(s *discordgo.Session, m *discordgo.MessageCreate, name string) {
	msg, _ := s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("🔄 Manually triggering `%s`...", name))

	err := b.Scheduler.RunNow(name)
	if err == nil {
		for _, job := range b.Scheduler.Jobs() {
			if job.Name == name && job.LastError != "" {
				err = errors.New(job.LastError)
			}
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:     "✅ Job Complete",
		Color:     colorSuccess,
		Timestamp: time.Now().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: footerText + " | Utility Commands"},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Job", Value: name, Inline: true},
			{Name: "⏰ Ran At", Value: time.Now().Format("2006-01-02 15:04:05"), Inline: true},
		},
	}
	if err != nil {
		embed.Title = "❌ Job Failed"
		embed.Color = colorError
		if errors.Is(err, cron.ErrUnknownJob) {
			embed.Title = "❌ Unknown Job"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "🔧 Error", Value: err.Error()})
	}

	if msg == nil {
		s.ChannelMessageSendEmbed(m.ChannelID, embed)
		return
	}
	s.ChannelMessageEditEmbed(m.ChannelID, msg.ID, embed)
}
