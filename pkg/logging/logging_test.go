package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
	}{
		{"json production", LoggingConfig{Level: "debug", Format: "json"}},
		{"console development", LoggingConfig{Level: "warn", Format: "console"}},
		{"unknown values fall back", LoggingConfig{Level: "loud", Format: "yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel(""))
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := Wrap(zap.New(core)).With(String("component", "pool"))

	logger.Warn("claim denied", Int("capacity", 2), Error(errors.New("exhausted")))

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "pool", ctx["component"])
	assert.Equal(t, int64(2), ctx["capacity"])
	assert.Equal(t, "exhausted", ctx["error"])
}

func TestNullLoggerDiscards(t *testing.T) {
	logger := NullLogger()
	logger.Info("nothing to see", Bool("ok", true))
	logger.With(Float64("x", 1)).Error("still nothing")
}
