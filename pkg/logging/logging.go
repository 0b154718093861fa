package logging

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field represents a structured logging field
type Field = zap.Field

// String creates a string field
func String(key, value string) Field {
	return zap.String(key, value)
}

// Int creates an integer field
func Int(key string, value int) Field {
	return zap.Int(key, value)
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return zap.Int64(key, value)
}

// Float64 creates a float64 field
func Float64(key string, value float64) Field {
	return zap.Float64(key, value)
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return zap.Bool(key, value)
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return zap.Duration(key, value)
}

// Error creates an error field
func Error(err error) Field {
	return zap.Error(err)
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return zap.Any(key, value)
}

// LoggingConfig contains configuration for logging
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// ZapLogger implements Logger on top of a zap logger
type ZapLogger struct {
	z *zap.Logger
}

// NewLogger creates a logger from the given configuration
func NewLogger(config LoggingConfig) (*ZapLogger, error) {
	var zc zap.Config
	switch strings.ToLower(config.Format) {
	case "text", "console":
		zc = zap.NewDevelopmentConfig()
	default:
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "timestamp"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(parseLogLevel(config.Level))

	z, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{z: z}, nil
}

// Wrap adapts an existing zap logger
func Wrap(z *zap.Logger) *ZapLogger {
	return &ZapLogger{z: z}
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *ZapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *ZapLogger) Info(msg string, fields ...Field) { l.z.Info(msg, fields...) }
func (l *ZapLogger) Warn(msg string, fields ...Field) { l.z.Warn(msg, fields...) }
func (l *ZapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

// With creates a new logger with additional fields
func (l *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{z: l.z.With(fields...)}
}

// Sync flushes buffered log entries
func (l *ZapLogger) Sync() error {
	return l.z.Sync()
}

// DefaultLogger creates a console logger at info level
func DefaultLogger() Logger {
	logger, err := NewLogger(LoggingConfig{Level: "info", Format: "console"})
	if err != nil {
		return NullLogger()
	}
	return logger
}

// NullLogger creates a logger that discards all output (useful for testing)
func NullLogger() Logger {
	return &ZapLogger{z: zap.NewNop()}
}
