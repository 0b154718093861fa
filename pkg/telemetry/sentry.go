// Package telemetry reports unclassified playback failures to Sentry.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/latoulicious/nekobeat/pkg/failure"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/stats"
)

// Config configures the Sentry client
type Config struct {
	DSN         string
	Environment string
	Release     string
	// Transport overrides the HTTP transport, used by tests
	Transport sentry.Transport
}

// Reporter forwards failures of kind unknown. Known kinds are expected
// operating conditions and are only counted.
type Reporter struct {
	hub    *sentry.Hub
	logger logging.Logger
}

// NewReporter creates a reporter. It returns nil, nil when no DSN or
// transport is configured; a nil Reporter is a valid no-op.
func NewReporter(config Config, logger logging.Logger) (*Reporter, error) {
	if config.DSN == "" && config.Transport == nil {
		return nil, nil
	}
	if logger == nil {
		logger = logging.NullLogger()
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              config.DSN,
		Environment:      config.Environment,
		Release:          config.Release,
		Transport:        config.Transport,
		AttachStacktrace: true,
		SampleRate:       1.0,
	})
	if err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}

	scope := sentry.NewScope()
	scope.SetTag("app", "nekobeat")
	return &Reporter{
		hub:    sentry.NewHub(client, scope),
		logger: logger.With(logging.String("component", "telemetry")),
	}, nil
}

// Attach registers the reporter as a failure hook on registry
func (r *Reporter) Attach(registry *stats.Registry) {
	if r == nil {
		return
	}
	registry.OnFailure(r.Report)
}

// Report captures record when its kind is unknown
func (r *Reporter) Report(record stats.FailureRecord, info *failure.ErrorInfo) {
	if r == nil || (info != nil && info.Kind != failure.KindUnknown) {
		return
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("method", record.Method)
		scope.SetTag("kind", record.Kind)
		if record.GuildID != "" {
			scope.SetTag("guild_id", record.GuildID)
		}
		scope.SetContext("track", map[string]any{
			"id":    record.TrackID,
			"title": record.Title,
		})
		if len(record.Detail) > 0 {
			detail := make(map[string]any, len(record.Detail))
			for k, v := range record.Detail {
				detail[k] = v
			}
			scope.SetContext("detail", detail)
		}
		scope.SetFingerprint([]string{"playback", record.Method, record.Kind})

		event := sentry.NewEvent()
		event.Level = sentry.LevelError
		event.Message = record.Message
		event.Timestamp = record.Timestamp
		event.Exception = []sentry.Exception{{
			Type:  "playback failure",
			Value: record.Message,
		}}
		r.hub.CaptureEvent(event)
	})

	r.logger.Debug("Reported playback failure",
		logging.String("guild_id", record.GuildID),
		logging.String("method", record.Method))
}

// Flush waits for queued events
func (r *Reporter) Flush(timeout time.Duration) bool {
	if r == nil {
		return true
	}
	return r.hub.Flush(timeout)
}
