package voice

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/latoulicious/nekobeat/pkg/logging"
	"golang.org/x/time/rate"
)

// Pipeline defaults
const (
	DefaultQueueCapacity    = 5
	DefaultTriggerThreshold = 0.6
	DefaultReplyPerMinute   = 6
)

// PipelineConfig holds the per-tenant knobs
type PipelineConfig struct {
	TenantID string
	// QueueCapacity bounds the segments waiting for the consumer. The consumer
	// holds one more while it waits for a recognition slot.
	QueueCapacity int
	// TriggerThreshold is the confidence a segment must exceed. Zero passes
	// any non-zero confidence; a negative value selects the default.
	TriggerThreshold float64
	// ReplyPerMinute limits spoken replies; zero disables replies
	ReplyPerMinute float64
}

// Dependencies are the collaborators a pipeline calls into. Limiter, Sessions
// and Cost are shared across tenants.
type Dependencies struct {
	Trigger     TriggerDetector
	Recognizer  Recognizer
	Synthesizer Synthesizer
	Output      Output
	Handler     CommandHandler
	Grammar     *Grammar
	Limiter     *Limiter
	Sessions    *Sessions
	Cost        *CostTracker
}

// PipelineStats are the per-tenant pipeline counters
type PipelineStats struct {
	Segments            int64 `json:"segments"`
	Triggered           int64 `json:"triggered"`
	Dropped             int64 `json:"dropped"`
	Queued              int   `json:"queued"`
	Recognized          int64 `json:"recognized"`
	RecognitionFailures int64 `json:"recognition_failures"`
	Discarded           int64 `json:"discarded"`
	Commands            int64 `json:"commands"`
	Unmatched           int64 `json:"unmatched"`
	Replies             int64 `json:"replies"`
	RepliesSkipped      int64 `json:"replies_skipped"`
	SynthesisFailures   int64 `json:"synthesis_failures"`
}

type pipelineCounters struct {
	segments            atomic.Int64
	triggered           atomic.Int64
	recognized          atomic.Int64
	recognitionFailures atomic.Int64
	discarded           atomic.Int64
	commands            atomic.Int64
	unmatched           atomic.Int64
	replies             atomic.Int64
	repliesSkipped      atomic.Int64
	synthesisFailures   atomic.Int64
}

// Pipeline is one tenant's capture → trigger → queue → recognition → command →
// reply chain. Push is called by the capture side; a single consumer goroutine
// drains the queue.
type Pipeline struct {
	config PipelineConfig
	deps   Dependencies
	queue  *SegmentQueue
	cost   *CostTracker
	reply  *rate.Limiter
	logger logging.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	start    sync.Once
	stop     sync.Once
	stopped  atomic.Bool
	counters pipelineCounters
}

// NewPipeline creates a pipeline. Call Start to begin consuming.
func NewPipeline(config PipelineConfig, deps Dependencies, logger logging.Logger) *Pipeline {
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = DefaultQueueCapacity
	}
	if config.TriggerThreshold < 0 {
		config.TriggerThreshold = DefaultTriggerThreshold
	}
	if deps.Trigger == nil {
		deps.Trigger = DefaultEnergyTrigger()
	}
	if deps.Grammar == nil {
		deps.Grammar = DefaultGrammar()
	}
	if deps.Limiter == nil {
		deps.Limiter = NewLimiter(1)
	}
	if deps.Sessions == nil {
		deps.Sessions = NewSessions(DefaultIdleTimeout)
	}
	if logger == nil {
		logger = logging.NullLogger()
	}

	var reply *rate.Limiter
	if config.ReplyPerMinute > 0 {
		burst := int(config.ReplyPerMinute)
		if burst < 1 {
			burst = 1
		}
		reply = rate.NewLimiter(rate.Limit(config.ReplyPerMinute/60), burst)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		config: config,
		deps:   deps,
		queue:  NewSegmentQueue(config.QueueCapacity),
		cost:   NewCostTracker(costRate(deps.Cost)),
		reply:  reply,
		logger: logger.With(logging.String("component", "voice"), logging.String("guild_id", config.TenantID)),
		ctx:    ctx,
		cancel: cancel,
	}
}

func costRate(shared *CostTracker) float64 {
	if shared == nil {
		return DefaultCostPerMinute
	}
	return shared.Snapshot().RatePerMinute
}

// TenantID returns the owning tenant
func (p *Pipeline) TenantID() string {
	return p.config.TenantID
}

// Start launches the consumer. It is a no-op after the first call or after Stop.
func (p *Pipeline) Start() {
	p.start.Do(func() {
		if p.stopped.Load() {
			return
		}
		p.wg.Add(1)
		go p.consume()
		p.logger.Info("Voice pipeline started",
			logging.Int("queue_capacity", p.queue.Cap()),
			logging.Float64("trigger_threshold", p.config.TriggerThreshold))
	})
}

// Stop ends the consumer and waits for it. A recognition call in flight is
// cancelled and its result discarded. Safe to call concurrently and repeatedly.
func (p *Pipeline) Stop() {
	p.stop.Do(func() {
		p.stopped.Store(true)
		p.cancel()
		p.wg.Wait()
		drained := p.queue.Drain()
		p.logger.Info("Voice pipeline stopped", logging.Int("drained", drained))
	})
}

// Push runs the trigger filter on seg and enqueues it when it passes. It never
// blocks: a full queue drops its oldest segment.
func (p *Pipeline) Push(seg Segment) error {
	if p.stopped.Load() {
		return ErrPipelineStopped
	}
	p.counters.segments.Add(1)

	confidence := p.deps.Trigger.Evaluate(seg)
	if confidence <= p.config.TriggerThreshold {
		return nil
	}
	p.counters.triggered.Add(1)

	if seg.TenantID == "" {
		seg.TenantID = p.config.TenantID
	}
	if seg.CapturedAt.IsZero() {
		seg.CapturedAt = time.Now()
	}
	if _, created := p.deps.Sessions.Touch(p.config.TenantID, seg.Participant, seg.ChannelID, seg.CapturedAt); created {
		p.logger.Debug("Voice session opened", logging.String("participant", seg.Participant))
	}

	if p.queue.Push(seg) {
		p.logger.Debug("Voice queue full, dropped oldest segment",
			logging.String("participant", seg.Participant))
	}
	return nil
}

func (p *Pipeline) consume() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case seg := <-p.queue.C():
			p.process(seg)
		}
	}
}

func (p *Pipeline) process(seg Segment) {
	logger := p.logger.With(logging.String("participant", seg.Participant))

	if p.deps.Recognizer == nil {
		p.counters.discarded.Add(1)
		return
	}
	if err := p.deps.Limiter.Acquire(p.ctx); err != nil {
		p.counters.discarded.Add(1)
		return
	}
	text, err := p.deps.Recognizer.Recognize(p.ctx, seg)
	p.deps.Limiter.Release()

	duration := seg.Duration()
	p.cost.Add(duration)
	if p.deps.Cost != nil {
		p.deps.Cost.Add(duration)
	}

	if p.ctx.Err() != nil {
		p.counters.discarded.Add(1)
		return
	}
	if err != nil {
		p.counters.recognitionFailures.Add(1)
		logger.Warn("Speech recognition failed, dropping segment", logging.Error(err))
		return
	}
	p.counters.recognized.Add(1)

	cmd, ok := p.deps.Grammar.Parse(text)
	if !ok {
		p.counters.unmatched.Add(1)
		logger.Debug("Transcript did not match a command", logging.String("transcript", text))
		return
	}
	p.counters.commands.Add(1)
	logger.Info("Voice command recognized",
		logging.String("action", cmd.Action.String()),
		logging.String("argument", cmd.Argument))

	if p.deps.Handler == nil {
		return
	}
	reply, err := p.deps.Handler.HandleVoiceCommand(p.ctx, seg.Participant, cmd)
	if err != nil {
		logger.Warn("Voice command failed",
			logging.String("action", cmd.Action.String()),
			logging.Error(err))
	}
	if reply != "" {
		p.speak(reply, logger)
	}
}

func (p *Pipeline) speak(text string, logger logging.Logger) {
	if p.deps.Synthesizer == nil || p.deps.Output == nil {
		return
	}
	if p.reply == nil || !p.reply.Allow() {
		p.counters.repliesSkipped.Add(1)
		logger.Debug("Reply rate exceeded, skipping spoken reply")
		return
	}

	audio, err := p.deps.Synthesizer.Synthesize(p.ctx, text)
	if err != nil {
		p.counters.synthesisFailures.Add(1)
		logger.Warn("Speech synthesis failed, skipping reply", logging.Error(err))
		return
	}
	defer audio.Close()

	if err := p.deps.Output.Speak(p.ctx, audio); err != nil {
		logger.Warn("Failed to play spoken reply", logging.Error(err))
		return
	}
	p.counters.replies.Add(1)
}

// Stats returns the pipeline counters
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Segments:            p.counters.segments.Load(),
		Triggered:           p.counters.triggered.Load(),
		Dropped:             p.queue.Dropped(),
		Queued:              p.queue.Len(),
		Recognized:          p.counters.recognized.Load(),
		RecognitionFailures: p.counters.recognitionFailures.Load(),
		Discarded:           p.counters.discarded.Load(),
		Commands:            p.counters.commands.Load(),
		Unmatched:           p.counters.unmatched.Load(),
		Replies:             p.counters.replies.Load(),
		RepliesSkipped:      p.counters.repliesSkipped.Load(),
		SynthesisFailures:   p.counters.synthesisFailures.Load(),
	}
}

// Cost returns this tenant's recognition usage
func (p *Pipeline) Cost() CostSnapshot {
	return p.cost.Snapshot()
}

// ResetCost zeroes this tenant's recognition usage
func (p *Pipeline) ResetCost() {
	p.cost.Reset()
}
