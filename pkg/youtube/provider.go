// Package youtube is the direct-stream provider: it opens audio straight from
// YouTube and classifies its failures for the fallback decision.
package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"

	yt "github.com/kkdai/youtube/v2"
	"github.com/latoulicious/nekobeat/pkg/failure"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/samber/lo"
)

// ErrNoAudioFormat is returned when a video has no audio-carrying format
var ErrNoAudioFormat = errors.New("no audio format available")

// Metadata describes a resolved video
type Metadata struct {
	URL      string
	VideoID  string
	Title    string
	Author   string
	Duration time.Duration
}

// Provider streams audio with the kkdai/youtube client
type Provider struct {
	client *yt.Client
	logger logging.Logger
	// searchBinary is the yt-dlp executable used for text searches
	searchBinary string
}

// NewProvider creates a provider. A nil httpClient uses http.DefaultClient.
func NewProvider(httpClient *http.Client, logger logging.Logger) *Provider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Provider{
		client:       &yt.Client{HTTPClient: httpClient},
		logger:       logger.With(logging.String("component", "youtube")),
		searchBinary: "yt-dlp",
	}
}

// Fetch opens the best audio stream of the video at locator. Errors are
// returned already classified.
func (p *Provider) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	video, err := p.client.GetVideoContext(ctx, locator)
	if err != nil {
		return nil, Classify(fmt.Errorf("get video: %w", err))
	}

	format, err := bestAudioFormat(video.Formats)
	if err != nil {
		return nil, failure.New(failure.KindUnknown, "video has no playable audio", err).
			WithDetail("video_id", video.ID)
	}

	stream, _, err := p.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, Classify(fmt.Errorf("open stream: %w", err))
	}

	p.logger.Debug("Opened direct stream",
		logging.String("video_id", video.ID),
		logging.Int("itag", format.ItagNo),
		logging.String("mime", format.MimeType))
	return stream, nil
}

// Resolve looks up title and duration of a video URL
func (p *Provider) Resolve(ctx context.Context, locator string) (Metadata, error) {
	video, err := p.client.GetVideoContext(ctx, locator)
	if err != nil {
		// metadata can still come from yt-dlp when the API path is blocked
		p.logger.Warn("Video lookup failed, trying yt-dlp", logging.Error(err))
		return p.ytdlpLookup(ctx, locator)
	}
	return Metadata{
		URL:      locator,
		VideoID:  video.ID,
		Title:    video.Title,
		Author:   video.Author,
		Duration: video.Duration,
	}, nil
}

// Search returns the first result for a text query
func (p *Provider) Search(ctx context.Context, query string) (Metadata, error) {
	return p.ytdlpLookup(ctx, "ytsearch1:"+query)
}

func (p *Provider) ytdlpLookup(ctx context.Context, target string) (Metadata, error) {
	cmd := exec.CommandContext(ctx, p.searchBinary,
		"--no-playlist",
		"--no-warnings",
		"--print", "webpage_url",
		"--print", "title",
		"--print", "duration",
		"--max-downloads", "1",
		target)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	meta := parseLookupOutput(out.String())

	// yt-dlp exits non-zero after --max-downloads even when it printed a result
	if meta.URL == "" {
		if runErr != nil {
			return Metadata{}, fmt.Errorf("yt-dlp lookup: %w: %s", runErr, strings.TrimSpace(stderr.String()))
		}
		return Metadata{}, fmt.Errorf("no results for %q", strings.TrimPrefix(target, "ytsearch1:"))
	}
	return meta, nil
}

func parseLookupOutput(output string) Metadata {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	var meta Metadata
	if len(lines) >= 1 {
		meta.URL = strings.TrimSpace(lines[0])
		meta.VideoID = ExtractVideoID(meta.URL)
	}
	if len(lines) >= 2 {
		meta.Title = strings.TrimSpace(lines[1])
	}
	if len(lines) >= 3 {
		if seconds, err := strconv.ParseFloat(strings.TrimSpace(lines[2]), 64); err == nil {
			meta.Duration = time.Duration(seconds * float64(time.Second))
		}
	}
	if meta.URL != "" && meta.Title == "" {
		meta.Title = "Unknown Title"
	}
	return meta
}

// bestAudioFormat prefers audio-only formats, then the highest bitrate
func bestAudioFormat(formats yt.FormatList) (*yt.Format, error) {
	withAudio := formats.WithAudioChannels()
	if len(withAudio) == 0 {
		return nil, ErrNoAudioFormat
	}

	audioOnly := lo.Filter(withAudio, func(f yt.Format, _ int) bool {
		return strings.HasPrefix(f.MimeType, "audio/")
	})
	if len(audioOnly) > 0 {
		withAudio = audioOnly
	}

	best := lo.MaxBy(withAudio, func(a, b yt.Format) bool {
		return a.Bitrate > b.Bitrate
	})
	return &best, nil
}

// Classify maps YouTube client errors onto the playback taxonomy. Throttling
// and bot checks are recoverable through a logged-in worker.
func Classify(err error) *failure.ErrorInfo {
	if err == nil {
		return nil
	}

	var info *failure.ErrorInfo
	if errors.As(err, &info) {
		return info
	}

	if errors.Is(err, yt.ErrLoginRequired) || errors.Is(err, yt.ErrVideoPrivate) {
		return failure.New(failure.KindAuthRequired, "youtube requires a signed-in session", err)
	}

	var status yt.ErrUnexpectedStatusCode
	if errors.As(err, &status) {
		code := int(status)
		switch {
		case code == http.StatusTooManyRequests:
			return failure.New(failure.KindRateLimited, "youtube is throttling requests", err).
				WithDetail("status", strconv.Itoa(code))
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return failure.New(failure.KindAuthRequired, "youtube refused the request", err).
				WithDetail("status", strconv.Itoa(code))
		}
	}

	if playStatus, reason, ok := playabilityOf(err); ok {
		reason = strings.ToLower(reason)
		if strings.Contains(reason, "sign in") || strings.Contains(reason, "login") ||
			strings.Contains(reason, "bot") || strings.Contains(reason, "age") {
			return failure.New(failure.KindAuthRequired, "youtube requires a signed-in session", err).
				WithDetail("status", playStatus)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return failure.Classify(err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests"):
		return failure.New(failure.KindRateLimited, "youtube is throttling requests", err)
	case strings.Contains(msg, "confirm you") && strings.Contains(msg, "bot"):
		return failure.New(failure.KindAuthRequired, "youtube requires a signed-in session", err)
	}
	return failure.New(failure.KindUnknown, "youtube stream failed", err)
}

func playabilityOf(err error) (status, reason string, ok bool) {
	var ptr *yt.ErrPlayabiltyStatus
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Status, ptr.Reason, true
	}
	var val yt.ErrPlayabiltyStatus
	if errors.As(err, &val) {
		return val.Status, val.Reason, true
	}
	return "", "", false
}
