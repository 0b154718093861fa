package guild

import (
	"errors"
	"sync"

	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/voice"
	"github.com/samber/lo"
)

// VoiceManager starts and stops per-guild voice pipelines
type VoiceManager interface {
	StartTenant(tenantID string, output voice.Output, handler voice.CommandHandler) (*voice.Pipeline, error)
	StopTenant(tenantID string)
}

// Registry owns every guild session
type Registry struct {
	player   Player
	resolver Resolver
	voice    VoiceManager
	events   Events
	logger   logging.Logger

	mu      sync.RWMutex
	tenants map[string]*Tenant
}

// NewRegistry creates a registry. voiceManager may be nil.
func NewRegistry(player Player, resolver Resolver, voiceManager VoiceManager, events Events, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Registry{
		player:   player,
		resolver: resolver,
		voice:    voiceManager,
		events:   events,
		logger:   logger,
		tenants:  make(map[string]*Tenant),
	}
}

// Get returns the session of a guild
func (r *Registry) Get(guildID string) (*Tenant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[guildID]
	return t, ok
}

// GetOrCreate returns the session of a guild, creating it if needed
func (r *Registry) GetOrCreate(guildID string) *Tenant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tenants[guildID]; ok {
		return t
	}
	t := NewTenant(guildID, r.player, r.resolver, r.events, r.logger)
	r.tenants[guildID] = t
	return t
}

// Connect attaches sink to the guild session and starts its voice pipeline
// when voice commands are enabled. listen is false when the bot joined deafened.
func (r *Registry) Connect(guildID string, sink Sink, listen bool) (*Tenant, *voice.Pipeline, error) {
	t := r.GetOrCreate(guildID)
	t.Attach(sink)

	if r.voice == nil || !listen {
		return t, nil, nil
	}
	p, err := r.voice.StartTenant(guildID, t, t)
	if errors.Is(err, voice.ErrVoiceDisabled) {
		return t, nil, nil
	}
	if err != nil {
		return t, nil, err
	}
	return t, p, nil
}

// Disconnect stops the voice pipeline, cancels playback and forgets the
// guild. Worker leases held by the guild are released.
func (r *Registry) Disconnect(guildID string) {
	r.mu.Lock()
	t, ok := r.tenants[guildID]
	delete(r.tenants, guildID)
	r.mu.Unlock()

	if r.voice != nil {
		r.voice.StopTenant(guildID)
	}
	if ok {
		t.Close()
	}
}

// Guilds lists guilds with a session
func (r *Registry) Guilds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.tenants)
}

// Playing returns the active track of every guild that has one
func (r *Registry) Playing() map[string]*NowPlaying {
	r.mu.RLock()
	tenants := lo.Values(r.tenants)
	r.mu.RUnlock()

	out := make(map[string]*NowPlaying)
	for _, t := range tenants {
		if np := t.NowPlaying(); np != nil {
			out[t.GuildID()] = np
		}
	}
	return out
}

// Shutdown disconnects every guild
func (r *Registry) Shutdown() {
	for _, id := range r.Guilds() {
		r.Disconnect(id)
	}
}
