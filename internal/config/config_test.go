package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testViper(values map[string]any) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := FromViper(testViper(map[string]any{KeyDiscordToken: "token"}))
	require.NoError(t, err)

	assert.Equal(t, "!", cfg.CommandPrefix)
	assert.Equal(t, 2, cfg.Pool.Capacity)
	assert.Empty(t, cfg.Pool.URLs)
	assert.Equal(t, 10*time.Second, cfg.Playback.DirectDeadline)
	assert.Equal(t, 20*time.Second, cfg.Playback.FallbackReadyTimeout)
	assert.Equal(t, 50, cfg.Playback.RecentFailures)
	assert.False(t, cfg.Voice.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Voice.IdleTimeout)
	assert.Equal(t, 5, cfg.Voice.QueueCapacity)
	assert.Equal(t, 2, cfg.Voice.Concurrency)
	assert.Equal(t, 0.6, cfg.Voice.TriggerThreshold)
	assert.Equal(t, 2*time.Second, cfg.Voice.SegmentDuration)
	assert.Equal(t, 0.006, cfg.Voice.CostPerMinute)
	assert.Equal(t, float64(6), cfg.Voice.ReplyPerMinute)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.StatusAddr)
}

func TestMissingToken(t *testing.T) {
	_, err := FromViper(testViper(nil))
	assert.ErrorIs(t, err, ErrDiscordTokenNotSet)
}

func TestOverrides(t *testing.T) {
	cfg, err := FromViper(testViper(map[string]any{
		KeyDiscordToken:         "token",
		KeyNekoURLs:             " http://neko-1:8080 ,http://neko-2:8080,, ",
		KeyPoolCapacity:         "3",
		KeyDirectStreamDeadline: "4s",
		KeyVoiceEnabled:         "true",
		KeyTriggerThreshold:     "0.75",
		KeyStatusAddr:           ":9090",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"http://neko-1:8080", "http://neko-2:8080"}, cfg.Pool.URLs)
	assert.Equal(t, 3, cfg.Pool.Capacity)
	assert.Equal(t, 4*time.Second, cfg.Playback.DirectDeadline)
	assert.True(t, cfg.Voice.Enabled)
	assert.Equal(t, 0.75, cfg.Voice.TriggerThreshold)
	assert.Equal(t, ":9090", cfg.StatusAddr)
}

func TestValidateCollectsErrors(t *testing.T) {
	_, err := FromViper(testViper(map[string]any{
		KeyDiscordToken:       "token",
		KeyPoolCapacity:       0,
		KeyTriggerThreshold:   1.5,
		KeyVoiceQueueCapacity: -1,
	}))
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), KeyPoolCapacity)
	assert.Contains(t, err.Error(), KeyTriggerThreshold)
	assert.Contains(t, err.Error(), KeyVoiceQueueCapacity)
}

func TestVoiceRequiresRecognizer(t *testing.T) {
	_, err := FromViper(testViper(map[string]any{
		KeyDiscordToken: "token",
		KeyVoiceEnabled: true,
		KeySTTURL:       "",
	}))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NEKOBEAT_TEST_VALUE=meow\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("NEKOBEAT_TEST_VALUE") })

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "meow", os.Getenv("NEKOBEAT_TEST_VALUE"))
}

func TestIsOwner(t *testing.T) {
	assert.False(t, (&Config{}).IsOwner(""))
	assert.True(t, (&Config{OwnerID: "42"}).IsOwner("42"))
	assert.False(t, (&Config{OwnerID: "42"}).IsOwner("7"))
}
