package common

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/voice"
	"github.com/smallnest/ringbuffer"
	"layeh.com/gopus"
)

// Capture defaults
const (
	DefaultSegmentDuration = 2 * time.Second
	captureChannels        = 1
	silenceGap             = 300 * time.Millisecond
	minSegment             = 200 * time.Millisecond
	idleCheckPeriod        = 100 * time.Millisecond
)

// SegmentSink receives finished speaker segments
type SegmentSink interface {
	Push(seg voice.Segment) error
}

type speaker struct {
	decoder *gopus.Decoder
	buf     *ringbuffer.RingBuffer
	last    time.Time
}

// Capture turns received opus packets into per-speaker PCM segments. A
// segment ends when the speaker's buffer fills or they stop talking.
type Capture struct {
	guildID      string
	channelID    string
	selfID       string
	recv         <-chan *discordgo.Packet
	sink         SegmentSink
	segmentBytes int
	logger       logging.Logger
	now          func() time.Time

	mu       sync.Mutex
	users    map[uint32]string
	speakers map[uint32]*speaker
}

// NewCapture creates a capture for vc. selfID is the bot's own user id; its
// audio is never captured.
func NewCapture(vc *discordgo.VoiceConnection, selfID string, segment time.Duration, sink SegmentSink, logger logging.Logger) *Capture {
	c := newCapture(vc.GuildID, vc.ChannelID, selfID, vc.OpusRecv, segment, sink, logger)
	vc.AddHandler(func(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
		c.MapSpeaker(uint32(vs.SSRC), vs.UserID)
	})
	return c
}

func newCapture(guildID, channelID, selfID string, recv <-chan *discordgo.Packet, segment time.Duration, sink SegmentSink, logger logging.Logger) *Capture {
	if segment <= 0 {
		segment = DefaultSegmentDuration
	}
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Capture{
		guildID:      guildID,
		channelID:    channelID,
		selfID:       selfID,
		recv:         recv,
		sink:         sink,
		segmentBytes: int(segment.Seconds()*SampleRate) * captureChannels * 2,
		logger:       logger.With(logging.String("component", "capture"), logging.String("guild_id", guildID)),
		now:          time.Now,
		users:        make(map[uint32]string),
		speakers:     make(map[uint32]*speaker),
	}
}

// MapSpeaker associates an SSRC with a user
func (c *Capture) MapSpeaker(ssrc uint32, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[ssrc] = userID
}

// Run consumes packets until ctx is cancelled or the receive channel closes.
// Buffered audio is flushed on return.
func (c *Capture) Run(ctx context.Context) {
	ticker := time.NewTicker(idleCheckPeriod)
	defer ticker.Stop()
	defer c.flushAll()

	c.logger.Info("Voice capture started")
	for {
		select {
		case <-ctx.Done():
			return
		case packet, ok := <-c.recv:
			if !ok {
				return
			}
			c.handlePacket(packet)
		case <-ticker.C:
			c.flushIdle()
		}
	}
}

func (c *Capture) handlePacket(packet *discordgo.Packet) {
	if packet == nil || len(packet.Opus) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	participant := c.participantLocked(packet.SSRC)
	if participant == c.selfID {
		return
	}

	sp, err := c.speakerLocked(packet.SSRC)
	if err != nil {
		c.logger.Warn("Failed to create opus decoder", logging.Error(err))
		return
	}

	pcm, err := sp.decoder.Decode(packet.Opus, FrameSize, false)
	if err != nil {
		c.logger.Debug("Dropping undecodable packet", logging.Error(err))
		return
	}
	sp.last = c.now()

	data := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}

	for len(data) > 0 {
		n, _ := sp.buf.Write(data)
		data = data[n:]
		if sp.buf.IsFull() {
			c.flushLocked(packet.SSRC, sp)
		} else if n == 0 {
			break
		}
	}
}

func (c *Capture) participantLocked(ssrc uint32) string {
	if userID, ok := c.users[ssrc]; ok {
		return userID
	}
	return "ssrc:" + strconv.FormatUint(uint64(ssrc), 10)
}

func (c *Capture) speakerLocked(ssrc uint32) (*speaker, error) {
	if sp, ok := c.speakers[ssrc]; ok {
		return sp, nil
	}
	decoder, err := gopus.NewDecoder(SampleRate, captureChannels)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	sp := &speaker{decoder: decoder, buf: ringbuffer.New(c.segmentBytes)}
	c.speakers[ssrc] = sp
	return sp, nil
}

func (c *Capture) flushIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for ssrc, sp := range c.speakers {
		if !sp.buf.IsEmpty() && now.Sub(sp.last) >= silenceGap {
			c.flushLocked(ssrc, sp)
		}
	}
}

func (c *Capture) flushAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ssrc, sp := range c.speakers {
		c.flushLocked(ssrc, sp)
	}
}

func (c *Capture) flushLocked(ssrc uint32, sp *speaker) {
	size := sp.buf.Length()
	if size == 0 {
		return
	}
	data := make([]byte, size)
	n, _ := sp.buf.Read(data)
	sp.buf.Reset()

	samples := bytesToInt16(data[:n])
	seg := voice.Segment{
		TenantID:    c.guildID,
		Participant: c.participantLocked(ssrc),
		ChannelID:   c.channelID,
		PCM:         samples,
		SampleRate:  SampleRate,
		Channels:    captureChannels,
		CapturedAt:  c.now(),
	}
	if seg.Duration() < minSegment {
		return
	}
	if err := c.sink.Push(seg); err != nil {
		c.logger.Debug("Segment not accepted", logging.String("participant", seg.Participant), logging.Error(err))
	}
}
