package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/spf13/viper"
)

// Keys
const (
	KeyDiscordToken         = "DISCORD_TOKEN"
	KeyCommandPrefix        = "COMMAND_PREFIX"
	KeyOwnerID              = "BOT_OWNER_ID"
	KeyNekoURLs             = "NEKO_URLS"
	KeyPoolCapacity         = "POOL_CAPACITY"
	KeyNekoUsername         = "NEKO_USERNAME"
	KeyNekoPassword         = "NEKO_PASSWORD"
	KeyDirectStreamDeadline = "DIRECT_STREAM_DEADLINE"
	KeyFallbackReadyTimeout = "FALLBACK_READY_TIMEOUT"
	KeyVoiceEnabled         = "VOICE_COMMANDS_ENABLED"
	KeyVoiceIdleTimeout     = "VOICE_IDLE_TIMEOUT"
	KeyVoiceQueueCapacity   = "VOICE_QUEUE_CAPACITY"
	KeyRecognitionLimit     = "RECOGNITION_CONCURRENCY"
	KeyTriggerThreshold     = "TRIGGER_THRESHOLD"
	KeySegmentDuration      = "VOICE_SEGMENT_DURATION"
	KeyRecognitionCost      = "RECOGNITION_COST_PER_MINUTE"
	KeyReplyRate            = "REPLY_RATE_PER_MINUTE"
	KeyRecentFailures       = "RECENT_FAILURES_CAPACITY"
	KeySTTURL               = "STT_URL"
	KeySTTModel             = "STT_MODEL"
	KeyTTSURL               = "TTS_URL"
	KeyTTSModel             = "TTS_MODEL"
	KeyTTSVoice             = "TTS_VOICE"
	KeySpeechAPIKey         = "SPEECH_API_KEY"
	KeyStatusAddr           = "STATUS_ADDR"
	KeySentryDSN            = "SENTRY_DSN"
	KeyLogLevel             = "LOG_LEVEL"
	KeyLogFormat            = "LOG_FORMAT"
)

// DefaultCommandPrefix is used when COMMAND_PREFIX is unset
const DefaultCommandPrefix = "!"

// Config is the resolved bot configuration
type Config struct {
	DiscordToken  string
	CommandPrefix string
	OwnerID       string

	Pool     PoolConfig
	Playback PlaybackConfig
	Voice    VoiceConfig
	Speech   SpeechConfig

	StatusAddr string
	SentryDSN  string
	Logging    logging.LoggingConfig
}

// PoolConfig configures the Neko worker pool
type PoolConfig struct {
	URLs     []string
	Capacity int
	Username string
	Password string
}

// PlaybackConfig configures the orchestrator
type PlaybackConfig struct {
	DirectDeadline       time.Duration
	FallbackReadyTimeout time.Duration
	RecentFailures       int
}

// VoiceConfig configures voice commands
type VoiceConfig struct {
	Enabled          bool
	IdleTimeout      time.Duration
	QueueCapacity    int
	Concurrency      int
	TriggerThreshold float64
	SegmentDuration  time.Duration
	CostPerMinute    float64
	ReplyPerMinute   float64
}

// SpeechConfig points at the speech services
type SpeechConfig struct {
	STTURL   string
	STTModel string
	TTSURL   string
	TTSModel string
	Voice    string
	APIKey   string
}

// SetDefaults registers the default of every key on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyCommandPrefix, DefaultCommandPrefix)
	v.SetDefault(KeyPoolCapacity, 2)
	v.SetDefault(KeyDirectStreamDeadline, "10s")
	v.SetDefault(KeyFallbackReadyTimeout, "20s")
	v.SetDefault(KeyVoiceEnabled, false)
	v.SetDefault(KeyVoiceIdleTimeout, "5m")
	v.SetDefault(KeyVoiceQueueCapacity, 5)
	v.SetDefault(KeyRecognitionLimit, 2)
	v.SetDefault(KeyTriggerThreshold, 0.6)
	v.SetDefault(KeySegmentDuration, "2s")
	v.SetDefault(KeyRecognitionCost, 0.006)
	v.SetDefault(KeyReplyRate, 6)
	v.SetDefault(KeyRecentFailures, 50)
	v.SetDefault(KeySTTURL, "https://api.openai.com/v1/audio/transcriptions")
	v.SetDefault(KeyTTSURL, "https://api.openai.com/v1/audio/speech")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
}

// LoadEnvFile loads .env into the process environment. A missing file is not an error.
func LoadEnvFile(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// New returns a viper instance reading the environment with defaults set
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return v
}

// LoadConfig loads .env and resolves the configuration from the environment
func LoadConfig() (*Config, error) {
	if err := LoadEnvFile(); err != nil {
		return nil, err
	}
	return FromViper(New())
}

// FromViper resolves and validates the configuration held by v
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DiscordToken:  v.GetString(KeyDiscordToken),
		CommandPrefix: v.GetString(KeyCommandPrefix),
		OwnerID:       v.GetString(KeyOwnerID),
		Pool: PoolConfig{
			URLs:     splitList(v.GetString(KeyNekoURLs)),
			Capacity: v.GetInt(KeyPoolCapacity),
			Username: v.GetString(KeyNekoUsername),
			Password: v.GetString(KeyNekoPassword),
		},
		Playback: PlaybackConfig{
			DirectDeadline:       v.GetDuration(KeyDirectStreamDeadline),
			FallbackReadyTimeout: v.GetDuration(KeyFallbackReadyTimeout),
			RecentFailures:       v.GetInt(KeyRecentFailures),
		},
		Voice: VoiceConfig{
			Enabled:          v.GetBool(KeyVoiceEnabled),
			IdleTimeout:      v.GetDuration(KeyVoiceIdleTimeout),
			QueueCapacity:    v.GetInt(KeyVoiceQueueCapacity),
			Concurrency:      v.GetInt(KeyRecognitionLimit),
			TriggerThreshold: v.GetFloat64(KeyTriggerThreshold),
			SegmentDuration:  v.GetDuration(KeySegmentDuration),
			CostPerMinute:    v.GetFloat64(KeyRecognitionCost),
			ReplyPerMinute:   v.GetFloat64(KeyReplyRate),
		},
		Speech: SpeechConfig{
			STTURL:   v.GetString(KeySTTURL),
			STTModel: v.GetString(KeySTTModel),
			TTSURL:   v.GetString(KeyTTSURL),
			TTSModel: v.GetString(KeyTTSModel),
			Voice:    v.GetString(KeyTTSVoice),
			APIKey:   v.GetString(KeySpeechAPIKey),
		},
		StatusAddr: v.GetString(KeyStatusAddr),
		SentryDSN:  v.GetString(KeySentryDSN),
		Logging: logging.LoggingConfig{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}

	if cfg.DiscordToken == "" {
		return nil, ErrDiscordTokenNotSet
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid value at once
func (c *Config) Validate() error {
	var errs []string

	if c.CommandPrefix == "" {
		errs = append(errs, "command prefix cannot be empty")
	}
	if c.Pool.Capacity <= 0 {
		errs = append(errs, fmt.Sprintf("%s must be positive, got %d", KeyPoolCapacity, c.Pool.Capacity))
	}
	if c.Playback.DirectDeadline <= 0 {
		errs = append(errs, fmt.Sprintf("%s must be positive", KeyDirectStreamDeadline))
	}
	if c.Playback.FallbackReadyTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("%s must be positive", KeyFallbackReadyTimeout))
	}
	if c.Playback.RecentFailures <= 0 {
		errs = append(errs, fmt.Sprintf("%s must be positive", KeyRecentFailures))
	}
	if c.Voice.QueueCapacity <= 0 {
		errs = append(errs, fmt.Sprintf("%s must be positive", KeyVoiceQueueCapacity))
	}
	if c.Voice.Concurrency <= 0 {
		errs = append(errs, fmt.Sprintf("%s must be positive", KeyRecognitionLimit))
	}
	if c.Voice.TriggerThreshold < 0 || c.Voice.TriggerThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("%s must be in [0, 1), got %g", KeyTriggerThreshold, c.Voice.TriggerThreshold))
	}
	if c.Voice.IdleTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("%s must be positive", KeyVoiceIdleTimeout))
	}
	if c.Voice.SegmentDuration <= 0 || c.Voice.SegmentDuration > 30*time.Second {
		errs = append(errs, fmt.Sprintf("%s must be between 0 and 30s", KeySegmentDuration))
	}
	if c.Voice.CostPerMinute < 0 {
		errs = append(errs, fmt.Sprintf("%s cannot be negative", KeyRecognitionCost))
	}
	if c.Voice.ReplyPerMinute < 0 {
		errs = append(errs, fmt.Sprintf("%s cannot be negative", KeyReplyRate))
	}
	if c.Voice.Enabled && c.Speech.STTURL == "" {
		errs = append(errs, fmt.Sprintf("%s is required when voice commands are enabled", KeySTTURL))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// IsOwner reports whether userID may run admin commands. With no owner
// configured nobody can.
func (c *Config) IsOwner(userID string) bool {
	return c.OwnerID != "" && c.OwnerID == userID
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
