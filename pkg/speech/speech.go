// Package speech implements the voice pipeline's recognizer and synthesizer
// against OpenAI-compatible HTTP endpoints.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/voice"
)

// Defaults for OpenAI-compatible services
const (
	DefaultSTTModel = "whisper-1"
	DefaultTTSModel = "tts-1"
	DefaultVoice    = "alloy"
	DefaultTimeout  = 20 * time.Second
)

// ErrEmptySegment is returned when a segment carries no audio
var ErrEmptySegment = errors.New("segment has no audio")

// Config points the providers at their endpoints
type Config struct {
	STTURL   string
	TTSURL   string
	APIKey   string
	STTModel string
	TTSModel string
	Voice    string
	Language string
	Timeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.STTModel == "" {
		c.STTModel = DefaultSTTModel
	}
	if c.TTSModel == "" {
		c.TTSModel = DefaultTTSModel
	}
	if c.Voice == "" {
		c.Voice = DefaultVoice
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// APIError is a non-2xx answer from a speech service
type APIError struct {
	Service string
	Code    int
	Body    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.Code, e.Body)
}

func apiError(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &APIError{Service: service, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// Recognizer uploads segments as WAV to a transcription endpoint
type Recognizer struct {
	config     Config
	httpClient *http.Client
	logger     logging.Logger
}

var _ voice.Recognizer = (*Recognizer)(nil)

// NewRecognizer creates a recognizer. A nil httpClient uses a default client.
func NewRecognizer(config Config, httpClient *http.Client, logger logging.Logger) *Recognizer {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Recognizer{
		config:     config.withDefaults(),
		httpClient: httpClient,
		logger:     logger.With(logging.String("component", "stt")),
	}
}

type transcription struct {
	Text string `json:"text"`
}

func (r *Recognizer) Recognize(ctx context.Context, seg voice.Segment) (string, error) {
	wavData, err := EncodeWAV(seg)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "segment.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	fields := map[string]string{"model": r.config.STTModel, "response_format": "json"}
	if r.config.Language != "" {
		fields["language"] = r.config.Language
	}
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return "", fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.STTURL, &body)
	if err != nil {
		return "", fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	setAuth(req, r.config.APIKey)

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError("stt", resp)
	}

	var out transcription
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}

	r.logger.Debug("Segment transcribed",
		logging.String("participant", seg.Participant),
		logging.Duration("audio", seg.Duration()),
		logging.Duration("latency", time.Since(start)))
	return strings.TrimSpace(out.Text), nil
}

// Synthesizer requests speech audio for reply text
type Synthesizer struct {
	config     Config
	httpClient *http.Client
	logger     logging.Logger
}

var _ voice.Synthesizer = (*Synthesizer)(nil)

// NewSynthesizer creates a synthesizer. A nil httpClient uses a default client.
func NewSynthesizer(config Config, httpClient *http.Client, logger logging.Logger) *Synthesizer {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Synthesizer{
		config:     config.withDefaults(),
		httpClient: httpClient,
		logger:     logger.With(logging.String("component", "tts")),
	}
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Synthesize returns the encoded reply audio. The caller closes the stream.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	payload, err := json.Marshal(speechRequest{
		Model:          s.config.TTSModel,
		Input:          text,
		Voice:          s.config.Voice,
		ResponseFormat: "opus",
	})
	if err != nil {
		return nil, fmt.Errorf("encode speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.TTSURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req, s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apiError("tts", resp)
	}
	return resp.Body, nil
}

func setAuth(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

// EncodeWAV renders a segment as a 16-bit PCM WAV file
func EncodeWAV(seg voice.Segment) ([]byte, error) {
	if len(seg.PCM) == 0 {
		return nil, ErrEmptySegment
	}
	channels := seg.Channels
	if channels <= 0 {
		channels = 1
	}

	// the encoder seeks back to patch the header, so it needs a real file
	f, err := os.CreateTemp("", "nekobeat-segment-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp wav: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	data := make([]int, len(seg.PCM))
	for i, s := range seg.PCM {
		data[i] = int(s)
	}
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: channels, SampleRate: seg.SampleRate},
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(f, seg.SampleRate, 16, channels, 1)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize wav: %w", err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind wav: %w", err)
	}
	return io.ReadAll(f)
}
