package voice

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/samber/lo"
)

// ManagerConfig configures voice handling for every tenant
type ManagerConfig struct {
	Enabled          bool
	QueueCapacity    int
	TriggerThreshold float64
	IdleTimeout      time.Duration
	Concurrency      int
	CostPerMinute    float64
	// ReplyPerMinute limits spoken replies per tenant; zero disables them
	ReplyPerMinute float64
}

// Providers are the speech services shared by all pipelines
type Providers struct {
	Trigger     TriggerDetector
	Recognizer  Recognizer
	Synthesizer Synthesizer
	Grammar     *Grammar
}

// Manager owns one pipeline per tenant plus the cross-tenant limiter, session
// registry and cost tracker.
type Manager struct {
	config    ManagerConfig
	providers Providers
	limiter   *Limiter
	sessions  *Sessions
	cost      *CostTracker
	enabled   atomic.Bool
	logger    logging.Logger

	mu        sync.RWMutex
	pipelines map[string]*Pipeline
}

// NewManager creates a manager. Voice starts enabled only if config.Enabled is set.
func NewManager(config ManagerConfig, providers Providers, logger logging.Logger) *Manager {
	if config.Concurrency <= 0 {
		config.Concurrency = 2
	}
	if config.CostPerMinute <= 0 {
		config.CostPerMinute = DefaultCostPerMinute
	}
	if providers.Grammar == nil {
		providers.Grammar = DefaultGrammar()
	}
	if logger == nil {
		logger = logging.NullLogger()
	}

	m := &Manager{
		config:    config,
		providers: providers,
		limiter:   NewLimiter(config.Concurrency),
		sessions:  NewSessions(config.IdleTimeout),
		cost:      NewCostTracker(config.CostPerMinute),
		logger:    logger.With(logging.String("component", "voice")),
		pipelines: make(map[string]*Pipeline),
	}
	m.enabled.Store(config.Enabled)
	return m
}

// Enabled reports whether new pipelines may start
func (m *Manager) Enabled() bool {
	return m.enabled.Load()
}

// SetEnabled toggles voice commands. Disabling stops every running pipeline.
func (m *Manager) SetEnabled(enabled bool) {
	if m.enabled.Swap(enabled) == enabled {
		return
	}
	m.logger.Info("Voice commands toggled", logging.Bool("enabled", enabled))
	if !enabled {
		for _, id := range m.Tenants() {
			m.StopTenant(id)
		}
	}
}

// StartTenant starts (or returns the running) pipeline of a tenant
func (m *Manager) StartTenant(tenantID string, output Output, handler CommandHandler) (*Pipeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Enabled() {
		return nil, ErrVoiceDisabled
	}
	if p, ok := m.pipelines[tenantID]; ok {
		return p, nil
	}

	p := NewPipeline(PipelineConfig{
		TenantID:         tenantID,
		QueueCapacity:    m.config.QueueCapacity,
		TriggerThreshold: m.config.TriggerThreshold,
		ReplyPerMinute:   m.config.ReplyPerMinute,
	}, Dependencies{
		Trigger:     m.providers.Trigger,
		Recognizer:  m.providers.Recognizer,
		Synthesizer: m.providers.Synthesizer,
		Output:      output,
		Handler:     handler,
		Grammar:     m.providers.Grammar,
		Limiter:     m.limiter,
		Sessions:    m.sessions,
		Cost:        m.cost,
	}, m.logger)
	p.Start()
	m.pipelines[tenantID] = p
	return p, nil
}

// Pipeline returns the running pipeline of a tenant
func (m *Manager) Pipeline(tenantID string) (*Pipeline, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pipelines[tenantID]
	return p, ok
}

// Push forwards a captured segment to its tenant's pipeline
func (m *Manager) Push(seg Segment) error {
	p, ok := m.Pipeline(seg.TenantID)
	if !ok {
		return ErrPipelineStopped
	}
	return p.Push(seg)
}

// StopTenant stops a tenant's pipeline and evicts its sessions
func (m *Manager) StopTenant(tenantID string) {
	m.mu.Lock()
	p, ok := m.pipelines[tenantID]
	delete(m.pipelines, tenantID)
	m.mu.Unlock()

	if ok {
		p.Stop()
	}
	if n := m.sessions.EvictTenant(tenantID); n > 0 {
		m.logger.Debug("Evicted voice sessions",
			logging.String("guild_id", tenantID),
			logging.Int("sessions", n))
	}
}

// Tenants lists tenants with a running pipeline
func (m *Manager) Tenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Keys(m.pipelines)
}

// TenantStats returns the counters of every running pipeline
func (m *Manager) TenantStats() map[string]PipelineStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.MapValues(m.pipelines, func(p *Pipeline, _ string) PipelineStats {
		return p.Stats()
	})
}

// RecognitionsInFlight reports recognition calls currently holding the limiter
func (m *Manager) RecognitionsInFlight() int64 {
	return m.limiter.InFlight()
}

// SweepSessions deletes idle sessions and returns how many were removed
func (m *Manager) SweepSessions() int {
	return m.sessions.DeleteExpired()
}

// Sessions exposes the shared session registry
func (m *Manager) Sessions() *Sessions {
	return m.sessions
}

// Limiter exposes the shared recognition limiter
func (m *Manager) Limiter() *Limiter {
	return m.limiter
}

// Cost returns the recognition usage across all tenants
func (m *Manager) Cost() CostSnapshot {
	return m.cost.Snapshot()
}

// ResetCost zeroes the global usage counters and every tenant's
func (m *Manager) ResetCost() {
	m.cost.Reset()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pipelines {
		p.ResetCost()
	}
}

// Shutdown stops every pipeline
func (m *Manager) Shutdown() {
	for _, id := range m.Tenants() {
		m.StopTenant(id)
	}
}
