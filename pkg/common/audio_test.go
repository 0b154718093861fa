package common

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmFrames(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n*FrameSize*Channels; i++ {
		_ = binary.Write(&buf, binary.LittleEndian, int16((i%64)*256))
	}
	return buf.Bytes()
}

func TestBytesToInt16(t *testing.T) {
	samples := bytesToInt16([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80})
	assert.Equal(t, []int16{1, -1, -32768}, samples)
}

func TestSendPCMFrames(t *testing.T) {
	send := make(chan []byte, 16)
	var speaking []bool
	ap := newAudioPipeline(send, func(on bool) error {
		speaking = append(speaking, on)
		return nil
	}, nil, nil)

	encoder, err := newEncoder()
	require.NoError(t, err)

	// three full frames and a short tail padded to a fourth
	data := append(pcmFrames(3), make([]byte, 100)...)
	require.NoError(t, ap.sendPCM(context.Background(), bytes.NewReader(data), encoder, true))

	assert.Len(t, send, 4)
	assert.Equal(t, int64(4), ap.Frames())
	assert.False(t, ap.LastFrameTime().IsZero())
	assert.Empty(t, speaking)
}

func TestSendPCMPause(t *testing.T) {
	send := make(chan []byte, 16)
	ap := newAudioPipeline(send, nil, nil, nil)
	encoder, err := newEncoder()
	require.NoError(t, err)

	ap.Pause()
	assert.True(t, ap.Paused())

	done := make(chan error, 1)
	go func() {
		done <- ap.sendPCM(context.Background(), bytes.NewReader(pcmFrames(2)), encoder, true)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, send, "paused music sends nothing")

	ap.Resume()
	require.NoError(t, <-done)
	assert.Len(t, send, 2)
}

func TestSendPCMCancelledWhilePaused(t *testing.T) {
	ap := newAudioPipeline(make(chan []byte, 1), nil, nil, nil)
	encoder, err := newEncoder()
	require.NoError(t, err)
	ap.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ap.sendPCM(ctx, bytes.NewReader(pcmFrames(1)), encoder, true)
	}()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSendFrameSkipsBlockedChannel(t *testing.T) {
	ap := newAudioPipeline(make(chan []byte), nil, nil, nil)
	require.NoError(t, ap.sendFrame(context.Background(), []byte{1}))
	assert.Zero(t, ap.Frames())
}

func TestStreamRejectsConcurrentPlay(t *testing.T) {
	ap := newAudioPipeline(make(chan []byte, 1), nil, nil, nil)
	ap.isPlaying.Store(true)
	assert.ErrorIs(t, ap.Stream(context.Background(), bytes.NewReader(nil)), ErrAlreadyPlaying)
}

func TestWaitForVoiceReadyCancelled(t *testing.T) {
	ap := newAudioPipeline(make(chan []byte, 1), nil, func() bool { return false }, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, ap.waitForVoiceReady(ctx), context.DeadlineExceeded)
}
