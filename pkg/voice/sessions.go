package voice

import (
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/samber/lo"
)

// DefaultIdleTimeout is how long a participant session survives without triggered speech
const DefaultIdleTimeout = 5 * time.Minute

// Session tracks one participant speaking to the bot in a tenant
type Session struct {
	TenantID     string    `json:"tenant_id"`
	Participant  string    `json:"participant"`
	ChannelID    string    `json:"channel_id"`
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
	Segments     int       `json:"segments"`
}

// Sessions holds voice sessions keyed by (tenant, participant). Expired
// entries are invisible to readers and removed by DeleteExpired; there is no
// background janitor.
type Sessions struct {
	mu    sync.Mutex
	items *cache.Cache
	idle  time.Duration
}

// NewSessions creates a registry whose sessions expire after idle
func NewSessions(idle time.Duration) *Sessions {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Sessions{items: cache.New(idle, 0), idle: idle}
}

func sessionKey(tenantID, participant string) string {
	return tenantID + "/" + participant
}

// Touch records triggered speech and reports whether a new session was created
func (s *Sessions) Touch(tenantID, participant, channelID string, at time.Time) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(tenantID, participant)
	session := Session{
		TenantID:    tenantID,
		Participant: participant,
		ChannelID:   channelID,
		StartedAt:   at,
	}
	created := true
	if v, ok := s.items.Get(key); ok {
		session = v.(Session)
		created = false
		if channelID != "" {
			session.ChannelID = channelID
		}
	}
	session.LastActivity = at
	session.Segments++
	s.items.Set(key, session, cache.DefaultExpiration)
	return session, created
}

// Get returns a live session
func (s *Sessions) Get(tenantID, participant string) (Session, bool) {
	v, ok := s.items.Get(sessionKey(tenantID, participant))
	if !ok {
		return Session{}, false
	}
	return v.(Session), true
}

// ForTenant returns the live sessions of one tenant
func (s *Sessions) ForTenant(tenantID string) []Session {
	prefix := tenantID + "/"
	items := s.items.Items()
	out := make([]Session, 0)
	for key, item := range items {
		if strings.HasPrefix(key, prefix) {
			out = append(out, item.Object.(Session))
		}
	}
	return out
}

// EvictTenant removes every session of a tenant and returns how many were removed
func (s *Sessions) EvictTenant(tenantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := tenantID + "/"
	keys := lo.Filter(lo.Keys(s.items.Items()), func(key string, _ int) bool {
		return strings.HasPrefix(key, prefix)
	})
	for _, key := range keys {
		s.items.Delete(key)
	}
	return len(keys)
}

// DeleteExpired removes idle sessions and returns how many were removed
func (s *Sessions) DeleteExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.items.ItemCount()
	s.items.DeleteExpired()
	return before - s.items.ItemCount()
}

// Len returns the number of stored sessions, including expired ones not yet swept
func (s *Sessions) Len() int {
	return s.items.ItemCount()
}

// IdleTimeout returns the configured expiry
func (s *Sessions) IdleTimeout() time.Duration {
	return s.idle
}
