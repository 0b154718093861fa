package cron

import (
	"context"

	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/pool"
	"github.com/latoulicious/nekobeat/pkg/stats"
	"github.com/samber/lo"
)

// SessionSweeper removes idle voice sessions
type SessionSweeper interface {
	SweepSessions() int
}

// StatsSource reports playback counters
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// InstanceSource reports worker states
type InstanceSource interface {
	GetAllInstances() []pool.InstanceSnapshot
}

// SessionSweepJob deletes idle voice sessions every minute
func SessionSweepJob(sweeper SessionSweeper, logger logging.Logger) Job {
	return Job{
		Name:     "voice-session-sweep",
		Schedule: SessionSweepSchedule,
		Run: func(context.Context) error {
			if n := sweeper.SweepSessions(); n > 0 {
				logger.Info("Swept idle voice sessions", logging.Int("sessions", n))
			}
			return nil
		},
	}
}

// StatsReportJob logs the playback counters and worker states every five
// minutes. instances may be nil when no pool is configured.
func StatsReportJob(source StatsSource, instances InstanceSource, logger logging.Logger) Job {
	return Job{
		Name:     "stats-report",
		Schedule: StatsReportSchedule,
		Run: func(context.Context) error {
			snap := source.Snapshot()
			fields := []logging.Field{
				logging.Int64("direct_attempts", snap.DirectAttempts),
				logging.Int64("direct_successes", snap.DirectSuccesses),
				logging.Int64("fallback_attempts", snap.FallbackAttempts),
				logging.Int64("fallback_successes", snap.FallbackSuccesses),
				logging.Int64("cancellations", snap.Cancellations),
				logging.Any("error_counts", snap.ErrorCounts),
			}
			if instances != nil {
				states := lo.CountValuesBy(instances.GetAllInstances(), func(i pool.InstanceSnapshot) string {
					return i.State
				})
				fields = append(fields, logging.Any("worker_states", states))
			}
			logger.Info("Playback stats", fields...)
			return nil
		},
	}
}
