package commands

import (
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Version is set at build time
var Version = "dev"

// AboutCommand shows version, uptime and runtime details
func (b *Bot) AboutCommand(s *discordgo.Session, m *discordgo.MessageCreate) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryUsage := fmt.Sprintf("%.2f MB", float64(memStats.Alloc)/1024/1024)

	voiceState := "off"
	if b.listening() {
		voiceState = "on"
	}
	workers := 0
	if b.Workers != nil {
		workers = len(b.Workers.GetAllInstances())
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Bot Information",
		Description: "Music with a fallback: YouTube first, Neko workers when YouTube says no.",
		Color:       colorSuccess,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: footerText},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Bot Name & Version", Value: "nekobeat " + Version, Inline: true},
			{Name: "Uptime", Value: formatUptime(time.Since(b.startTime)), Inline: true},
			{Name: "Memory Usage", Value: memoryUsage, Inline: true},
			{Name: "Go Version", Value: runtime.Version(), Inline: true},
			{Name: "Platform", Value: fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), Inline: true},
			{Name: "Goroutines", Value: strconv.Itoa(runtime.NumGoroutine()), Inline: true},
			{Name: "Active Sessions", Value: strconv.Itoa(len(b.Guilds.Guilds())), Inline: true},
			{Name: "Neko Workers", Value: strconv.Itoa(workers), Inline: true},
			{Name: "Voice Commands", Value: voiceState, Inline: true},
		},
	}

	s.ChannelMessageSendEmbed(m.ChannelID, embed)
}

// formatUptime prefixes whole days to formatDuration
func formatUptime(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	const day = 24 * time.Hour
	if d < day {
		return formatDuration(d)
	}
	days := int(d / day)
	if rest := d % day; rest >= time.Second {
		return fmt.Sprintf("%dd %s", days, formatDuration(rest))
	}
	return fmt.Sprintf("%dd", days)
}
