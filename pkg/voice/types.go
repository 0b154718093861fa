// Package voice runs the per-guild voice command pipeline: a cheap local
// trigger gates captured speech before it reaches paid recognition, and
// matched commands may be answered with synthesized speech.
package voice

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/faiface/beep"
)

// Pipeline errors
var (
	ErrPipelineStopped = errors.New("voice pipeline stopped")
	ErrVoiceDisabled   = errors.New("voice commands are disabled")
	ErrNoOutput        = errors.New("no audio output for tenant")
)

// Segment is one chunk of captured speech from a single participant
type Segment struct {
	TenantID    string
	Participant string
	ChannelID   string
	// PCM holds interleaved signed 16-bit samples
	PCM        []int16
	SampleRate int
	Channels   int
	CapturedAt time.Time
}

// Frames returns the number of sample frames in the segment
func (s Segment) Frames() int {
	if s.Channels <= 0 {
		return len(s.PCM)
	}
	return len(s.PCM) / s.Channels
}

// Duration returns the playback length of the segment
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return beep.SampleRate(s.SampleRate).D(s.Frames())
}

// TriggerDetector scores a segment locally. It must not perform I/O.
type TriggerDetector interface {
	Evaluate(seg Segment) float64
}

// TriggerFunc adapts a function to TriggerDetector
type TriggerFunc func(seg Segment) float64

func (f TriggerFunc) Evaluate(seg Segment) float64 {
	return f(seg)
}

// Recognizer turns speech into text, usually through a paid remote service
type Recognizer interface {
	Recognize(ctx context.Context, seg Segment) (string, error)
}

// Synthesizer turns reply text into audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// Output plays synthesized audio through the tenant's active voice connection
type Output interface {
	Speak(ctx context.Context, audio io.Reader) error
}

// CommandHandler executes a recognized command and returns an optional spoken reply
type CommandHandler interface {
	HandleVoiceCommand(ctx context.Context, participant string, cmd Command) (reply string, err error)
}

// CommandHandlerFunc adapts a function to CommandHandler
type CommandHandlerFunc func(ctx context.Context, participant string, cmd Command) (string, error)

func (f CommandHandlerFunc) HandleVoiceCommand(ctx context.Context, participant string, cmd Command) (string, error) {
	return f(ctx, participant, cmd)
}
