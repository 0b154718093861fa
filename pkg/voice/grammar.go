package voice

import (
	"regexp"
	"strings"
)

// Action is a recognized voice command
type Action int

const (
	ActionPlay Action = iota
	ActionSkip
	ActionStop
	ActionPause
	ActionResume
	ActionShuffle
	ActionLoop
	ActionNowPlaying
)

func (a Action) String() string {
	switch a {
	case ActionPlay:
		return "play"
	case ActionSkip:
		return "skip"
	case ActionStop:
		return "stop"
	case ActionPause:
		return "pause"
	case ActionResume:
		return "resume"
	case ActionShuffle:
		return "shuffle"
	case ActionLoop:
		return "loop"
	case ActionNowPlaying:
		return "nowplaying"
	default:
		return "unknown"
	}
}

// Command is a parsed utterance
type Command struct {
	Action Action
	// Argument is the play query or loop mode
	Argument   string
	Transcript string
}

type rule struct {
	action  Action
	pattern *regexp.Regexp
}

// Grammar matches normalized transcripts against a fixed command set
type Grammar struct {
	wakeWords   []string
	requireWake bool
	rules       []rule
}

var (
	punctuation = regexp.MustCompile(`[^a-z0-9' ]+`)
	spaces      = regexp.MustCompile(`\s+`)
)

// DefaultGrammar understands the playback commands, optionally prefixed by "neko"
func DefaultGrammar() *Grammar {
	return NewGrammar([]string{"hey neko", "ok neko", "neko"}, false)
}

// NewGrammar builds the command grammar. With requireWake set, utterances
// without one of the wake words are ignored.
func NewGrammar(wakeWords []string, requireWake bool) *Grammar {
	return &Grammar{
		wakeWords:   wakeWords,
		requireWake: requireWake,
		rules: []rule{
			{ActionPlay, regexp.MustCompile(`^(?:play|put on|queue)\s+(.+)$`)},
			{ActionSkip, regexp.MustCompile(`^(?:skip|next)(?:\s+(?:this|it|song|track|the song|this song))?$`)},
			{ActionStop, regexp.MustCompile(`^stop(?:\s+(?:playing|the music|music))?$`)},
			{ActionPause, regexp.MustCompile(`^pause(?:\s+(?:the music|music|it))?$`)},
			{ActionResume, regexp.MustCompile(`^(?:resume|unpause|continue)(?:\s+(?:the music|music|playing))?$`)},
			{ActionShuffle, regexp.MustCompile(`^shuffle(?:\s+(?:the queue|queue))?$`)},
			{ActionLoop, regexp.MustCompile(`^loop\s+(off|none|track|song|queue|all)$`)},
			{ActionNowPlaying, regexp.MustCompile(`^(?:what's playing|whats playing|what is playing|now playing|what song is this)$`)},
		},
	}
}

func normalize(text string) string {
	text = strings.ToLower(text)
	text = strings.ReplaceAll(text, "’", "'")
	text = punctuation.ReplaceAllString(text, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
}

// Parse matches a transcript. Unmatched text returns false and is meant to be ignored.
func (g *Grammar) Parse(transcript string) (Command, bool) {
	text := normalize(transcript)

	woke := false
	for _, wake := range g.wakeWords {
		if rest, ok := strings.CutPrefix(text, wake+" "); ok {
			text = rest
			woke = true
			break
		}
	}
	if g.requireWake && !woke {
		return Command{}, false
	}

	for _, r := range g.rules {
		m := r.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		cmd := Command{Action: r.action, Transcript: transcript}
		if len(m) > 1 {
			cmd.Argument = strings.TrimSpace(m[1])
		}
		return cmd, true
	}
	return Command{}, false
}
