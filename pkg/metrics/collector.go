// Package metrics exposes playback, pool and voice counters to Prometheus.
// Values are read from their owners at scrape time.
package metrics

import (
	"github.com/latoulicious/nekobeat/pkg/pool"
	"github.com/latoulicious/nekobeat/pkg/stats"
	"github.com/latoulicious/nekobeat/pkg/voice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
)

const namespace = "nekobeat"

// StatsSource reports playback counters
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// PoolSource reports worker states
type PoolSource interface {
	GetAllInstances() []pool.InstanceSnapshot
}

// VoiceSource reports voice pipeline usage
type VoiceSource interface {
	Cost() voice.CostSnapshot
	TenantStats() map[string]voice.PipelineStats
	RecognitionsInFlight() int64
}

var workerStates = []pool.WorkerState{
	pool.StateIdle,
	pool.StateAuthenticating,
	pool.StateReady,
	pool.StatePlaying,
	pool.StateError,
}

// Collector implements prometheus.Collector. Nil sources are skipped.
type Collector struct {
	stats StatsSource
	pool  PoolSource
	voice VoiceSource

	attempts       *prometheus.Desc
	successes      *prometheus.Desc
	cancellations  *prometheus.Desc
	failures       *prometheus.Desc
	workers        *prometheus.Desc
	claimed        *prometheus.Desc
	recognitions   *prometheus.Desc
	processed      *prometheus.Desc
	estimatedCost  *prometheus.Desc
	inFlight       *prometheus.Desc
	segmentsDrop   *prometheus.Desc
	voiceCommands  *prometheus.Desc
	queuedSegments *prometheus.Desc
}

// NewCollector creates a collector over the given sources
func NewCollector(statsSource StatsSource, poolSource PoolSource, voiceSource VoiceSource) *Collector {
	return &Collector{
		stats: statsSource,
		pool:  poolSource,
		voice: voiceSource,

		attempts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "playback", "attempts_total"),
			"Playback attempts by method",
			[]string{"method"}, nil),
		successes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "playback", "successes_total"),
			"Successful playbacks by method",
			[]string{"method"}, nil),
		cancellations: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "playback", "cancellations_total"),
			"Playbacks cancelled by skip or disconnect",
			nil, nil),
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "playback", "failures_total"),
			"Playback failures by error kind",
			[]string{"kind"}, nil),
		workers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "workers"),
			"Pool workers by state",
			[]string{"state"}, nil),
		claimed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "claimed_workers"),
			"Pool workers currently leased",
			nil, nil),
		recognitions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "voice", "recognition_calls_total"),
			"Speech recognition calls since the last cost reset",
			nil, nil),
		processed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "voice", "processed_seconds_total"),
			"Audio seconds sent to speech recognition since the last cost reset",
			nil, nil),
		estimatedCost: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "voice", "estimated_cost"),
			"Estimated speech recognition cost since the last cost reset",
			nil, nil),
		inFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "voice", "recognitions_in_flight"),
			"Speech recognition calls in flight across all guilds",
			nil, nil),
		segmentsDrop: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "voice", "segments_dropped_total"),
			"Segments dropped by a full voice queue",
			[]string{"guild_id"}, nil),
		voiceCommands: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "voice", "commands_total"),
			"Voice commands recognized",
			[]string{"guild_id"}, nil),
		queuedSegments: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "voice", "queued_segments"),
			"Segments waiting for recognition",
			[]string{"guild_id"}, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.attempts, c.successes, c.cancellations, c.failures,
		c.workers, c.claimed,
		c.recognitions, c.processed, c.estimatedCost, c.inFlight,
		c.segmentsDrop, c.voiceCommands, c.queuedSegments,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.stats != nil {
		c.collectPlayback(ch)
	}
	if c.pool != nil {
		c.collectPool(ch)
	}
	if c.voice != nil {
		c.collectVoice(ch)
	}
}

func (c *Collector) collectPlayback(ch chan<- prometheus.Metric) {
	snap := c.stats.Snapshot()
	direct := stats.MethodDirect.String()
	fallback := stats.MethodPooledFallback.String()

	ch <- prometheus.MustNewConstMetric(c.attempts, prometheus.CounterValue, float64(snap.DirectAttempts), direct)
	ch <- prometheus.MustNewConstMetric(c.attempts, prometheus.CounterValue, float64(snap.FallbackAttempts), fallback)
	ch <- prometheus.MustNewConstMetric(c.successes, prometheus.CounterValue, float64(snap.DirectSuccesses), direct)
	ch <- prometheus.MustNewConstMetric(c.successes, prometheus.CounterValue, float64(snap.FallbackSuccesses), fallback)
	ch <- prometheus.MustNewConstMetric(c.cancellations, prometheus.CounterValue, float64(snap.Cancellations))
	for kind, n := range snap.ErrorCounts {
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(n), kind)
	}
}

func (c *Collector) collectPool(ch chan<- prometheus.Metric) {
	instances := c.pool.GetAllInstances()
	byState := lo.CountValuesBy(instances, func(i pool.InstanceSnapshot) string { return i.State })
	for _, state := range workerStates {
		name := state.String()
		ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(byState[name]), name)
	}
	claimed := lo.CountBy(instances, func(i pool.InstanceSnapshot) bool { return i.Claimed })
	ch <- prometheus.MustNewConstMetric(c.claimed, prometheus.GaugeValue, float64(claimed))
}

func (c *Collector) collectVoice(ch chan<- prometheus.Metric) {
	cost := c.voice.Cost()
	ch <- prometheus.MustNewConstMetric(c.recognitions, prometheus.CounterValue, float64(cost.Calls))
	ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, cost.Processed.Seconds())
	ch <- prometheus.MustNewConstMetric(c.estimatedCost, prometheus.GaugeValue, cost.EstimatedCost)
	ch <- prometheus.MustNewConstMetric(c.inFlight, prometheus.GaugeValue, float64(c.voice.RecognitionsInFlight()))

	for guildID, s := range c.voice.TenantStats() {
		ch <- prometheus.MustNewConstMetric(c.segmentsDrop, prometheus.CounterValue, float64(s.Dropped), guildID)
		ch <- prometheus.MustNewConstMetric(c.voiceCommands, prometheus.CounterValue, float64(s.Commands), guildID)
		ch <- prometheus.MustNewConstMetric(c.queuedSegments, prometheus.GaugeValue, float64(s.Queued), guildID)
	}
}
