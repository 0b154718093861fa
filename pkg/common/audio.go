package common

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"layeh.com/gopus"
)

// Discord voice format
const (
	SampleRate  = 48000
	Channels    = 2
	FrameSize   = 960 // 20ms at 48kHz
	frameBytes  = FrameSize * Channels * 2
	opusBitrate = 128000
	sendTimeout = 100 * time.Millisecond
)

var (
	ErrAlreadyPlaying = errors.New("pipeline is already playing")
	ErrVoiceNotReady  = errors.New("timeout waiting for voice connection")
)

// AudioPipeline decodes any ffmpeg-readable stream to PCM, encodes it to opus
// and sends it to a voice connection. Music goes through Stream; spoken
// replies go through Speak and hold the connection while they play, which
// stalls the music until the reply is done.
type AudioPipeline struct {
	send     chan<- []byte
	speaking func(bool) error
	ready    func() bool
	ffmpeg   string
	logger   logging.Logger

	// held per music frame and for the whole of a spoken reply
	sendMu sync.Mutex

	mu     sync.Mutex
	paused bool
	resume chan struct{}

	isPlaying     atomic.Bool
	frames        atomic.Int64
	lastFrameTime atomic.Int64
}

// NewAudioPipeline creates a pipeline sending to vc
func NewAudioPipeline(vc *discordgo.VoiceConnection, logger logging.Logger) *AudioPipeline {
	return newAudioPipeline(vc.OpusSend, vc.Speaking, func() bool {
		vc.RLock()
		defer vc.RUnlock()
		return vc.Ready
	}, logger)
}

func newAudioPipeline(send chan<- []byte, speaking func(bool) error, ready func() bool, logger logging.Logger) *AudioPipeline {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &AudioPipeline{
		send:     send,
		speaking: speaking,
		ready:    ready,
		ffmpeg:   "ffmpeg",
		logger:   logger.With(logging.String("component", "audio")),
	}
}

// Stream plays src until it ends or ctx is cancelled. It blocks for the
// duration of the track. A cancelled ctx is not an error.
func (ap *AudioPipeline) Stream(ctx context.Context, src io.Reader) error {
	if !ap.isPlaying.CompareAndSwap(false, true) {
		return ErrAlreadyPlaying
	}
	defer ap.isPlaying.Store(false)

	if err := ap.waitForVoiceReady(ctx); err != nil {
		return err
	}

	pcm, stop, err := ap.decode(ctx, src)
	if err != nil {
		return err
	}
	defer stop()

	encoder, err := newEncoder()
	if err != nil {
		return err
	}

	ap.setSpeaking(true)
	defer ap.setSpeaking(false)

	ap.logger.Debug("Starting audio stream")
	err = ap.sendPCM(ctx, pcm, encoder, true)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Speak plays a short clip, holding the connection until it finishes
func (ap *AudioPipeline) Speak(ctx context.Context, src io.Reader) error {
	if err := ap.waitForVoiceReady(ctx); err != nil {
		return err
	}

	ap.sendMu.Lock()
	defer ap.sendMu.Unlock()

	pcm, stop, err := ap.decode(ctx, src)
	if err != nil {
		return err
	}
	defer stop()

	encoder, err := newEncoder()
	if err != nil {
		return err
	}

	ap.setSpeaking(true)
	defer ap.setSpeaking(ap.isPlaying.Load())
	return ap.sendPCM(ctx, pcm, encoder, false)
}

// Pause holds music frames until Resume
func (ap *AudioPipeline) Pause() {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	if ap.paused {
		return
	}
	ap.paused = true
	ap.resume = make(chan struct{})
}

// Resume releases a paused stream
func (ap *AudioPipeline) Resume() {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	if !ap.paused {
		return
	}
	ap.paused = false
	close(ap.resume)
}

// Paused reports whether music is paused
func (ap *AudioPipeline) Paused() bool {
	ap.mu.Lock()
	defer ap.mu.Unlock()
	return ap.paused
}

// IsPlaying reports whether a stream is active
func (ap *AudioPipeline) IsPlaying() bool {
	return ap.isPlaying.Load()
}

// Frames returns the number of frames sent since creation
func (ap *AudioPipeline) Frames() int64 {
	return ap.frames.Load()
}

// LastFrameTime returns when the last frame was sent
func (ap *AudioPipeline) LastFrameTime() time.Time {
	n := ap.lastFrameTime.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func newEncoder() (*gopus.Encoder, error) {
	encoder, err := gopus.NewEncoder(SampleRate, Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	encoder.SetBitrate(opusBitrate)
	return encoder, nil
}

// decode starts ffmpeg reading src on stdin and returns its PCM output. The
// returned stop func kills the process and reaps it.
func (ap *AudioPipeline) decode(ctx context.Context, src io.Reader) (io.Reader, func(), error) {
	cmd := exec.CommandContext(ctx, ap.ffmpeg,
		"-hide_banner",
		"-loglevel", "warning",
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"pipe:1")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	go ap.consumeStderr(stderr)

	// the copy ends when src is closed by its owner or ffmpeg exits
	go func() {
		defer stdin.Close()
		if _, err := io.Copy(stdin, src); err != nil && ctx.Err() == nil {
			ap.logger.Debug("Audio source copy ended", logging.Error(err))
		}
	}()

	stop := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		_ = cmd.Wait()
	}
	return stdout, stop, nil
}

// sendPCM encodes 20ms frames from pcm and sends them. A short final frame is
// padded with silence.
func (ap *AudioPipeline) sendPCM(ctx context.Context, pcm io.Reader, encoder *gopus.Encoder, music bool) error {
	buffer := make([]byte, frameBytes)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := io.ReadFull(pcm, buffer)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("error reading PCM data: %w", err)
		}
		last := err != nil
		if last {
			clear(buffer[n:])
		}

		if music {
			if err := ap.waitWhilePaused(ctx); err != nil {
				return err
			}
		}

		opusData, encErr := encoder.Encode(bytesToInt16(buffer), FrameSize, frameBytes)
		if encErr != nil {
			ap.logger.Warn("Opus encoding error", logging.Error(encErr))
			continue
		}

		if music {
			ap.sendMu.Lock()
		}
		sendErr := ap.sendFrame(ctx, opusData)
		if music {
			ap.sendMu.Unlock()
		}
		if sendErr != nil {
			return sendErr
		}
		if last {
			return nil
		}
	}
}

func (ap *AudioPipeline) sendFrame(ctx context.Context, frame []byte) error {
	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()

	select {
	case ap.send <- frame:
		if n := ap.frames.Add(1); n%500 == 0 {
			ap.logger.Debug("Streamed frames", logging.Int64("frames", n))
		}
		ap.lastFrameTime.Store(time.Now().UnixNano())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		ap.logger.Warn("OpusSend channel blocked, skipping frame")
		return nil
	}
}

func (ap *AudioPipeline) waitWhilePaused(ctx context.Context) error {
	ap.mu.Lock()
	paused, resume := ap.paused, ap.resume
	ap.mu.Unlock()
	if !paused {
		return nil
	}

	ap.setSpeaking(false)
	select {
	case <-resume:
		ap.setSpeaking(true)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ap *AudioPipeline) waitForVoiceReady(ctx context.Context) error {
	if ap.ready == nil || ap.ready() {
		return nil
	}

	timeout := time.NewTimer(10 * time.Second)
	defer timeout.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			return ErrVoiceNotReady
		case <-ticker.C:
			if ap.ready() {
				return nil
			}
		}
	}
}

func (ap *AudioPipeline) setSpeaking(on bool) {
	if ap.speaking == nil {
		return
	}
	if err := ap.speaking(on); err != nil {
		ap.logger.Debug("Failed to set speaking state", logging.Bool("speaking", on), logging.Error(err))
	}
}

func (ap *AudioPipeline) consumeStderr(stderr io.ReadCloser) {
	defer stderr.Close()
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		ap.logger.Debug("FFmpeg", logging.String("line", scanner.Text()))
	}
}

func bytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}
