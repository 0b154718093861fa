package guild

import (
	"context"
	"errors"
	"fmt"

	"github.com/latoulicious/nekobeat/pkg/queue"
	"github.com/latoulicious/nekobeat/pkg/voice"
)

var _ voice.CommandHandler = (*Tenant)(nil)
var _ voice.Output = (*Tenant)(nil)

// HandleVoiceCommand runs a recognized voice command and returns the spoken reply
func (t *Tenant) HandleVoiceCommand(ctx context.Context, participant string, cmd voice.Command) (string, error) {
	switch cmd.Action {
	case voice.ActionPlay:
		if t.resolver == nil {
			return "", errors.New("no resolver configured")
		}
		track, err := t.resolver.Resolve(ctx, cmd.Argument, participant)
		if err != nil {
			return "I couldn't find that.", fmt.Errorf("resolve %q: %w", cmd.Argument, err)
		}
		idle := t.NowPlaying() == nil
		pending, err := t.Enqueue(track)
		if err != nil {
			return "", err
		}
		if idle && pending == 1 {
			return fmt.Sprintf("Playing %s.", track.Title), nil
		}
		return fmt.Sprintf("Queued %s.", track.Title), nil

	case voice.ActionSkip:
		if err := t.Skip(); err != nil {
			return "Nothing is playing.", nil
		}
		return "Skipped.", nil

	case voice.ActionStop:
		t.Stop()
		return "Stopped.", nil

	case voice.ActionPause:
		if err := t.Pause(); err != nil {
			return "Nothing is playing.", nil
		}
		return "", nil

	case voice.ActionResume:
		if err := t.Resume(); err != nil {
			return "Nothing is playing.", nil
		}
		return "", nil

	case voice.ActionShuffle:
		t.queue.Shuffle()
		return "Shuffled.", nil

	case voice.ActionLoop:
		mode, err := queue.ParseLoopMode(cmd.Argument)
		if err != nil {
			return "", err
		}
		t.queue.SetLoop(mode)
		if mode == queue.LoopNone {
			return "Loop off.", nil
		}
		return fmt.Sprintf("Looping the %s.", mode), nil

	case voice.ActionNowPlaying:
		np := t.NowPlaying()
		if np == nil {
			return "Nothing is playing.", nil
		}
		return fmt.Sprintf("Now playing %s.", np.Track.Title), nil

	default:
		return "", fmt.Errorf("unsupported action %s", cmd.Action)
	}
}
