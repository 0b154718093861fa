package pool

import (
	"errors"
	"time"
)

// WorkerState is the lifecycle state of a pooled worker
type WorkerState int

const (
	StateIdle WorkerState = iota
	StateAuthenticating
	StateReady
	StatePlaying
	StateError
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Pool errors
var (
	ErrCapacityExhausted = errors.New("no ready worker available")
	ErrUnknownWorker     = errors.New("unknown worker")
	ErrStaleLease        = errors.New("lease no longer held")
	ErrLeaseTerminated   = errors.New("lease terminated")
	ErrInvalidCapacity   = errors.New("pool capacity must be positive")
	ErrDuplicateWorker   = errors.New("duplicate worker id")
)

// InstanceSnapshot is a read-only view of one worker for status reporting
type InstanceSnapshot struct {
	ID             string    `json:"id"`
	State          string    `json:"state"`
	Authenticated  bool      `json:"authenticated"`
	CurrentURL     string    `json:"current_url,omitempty"`
	Claimed        bool      `json:"claimed"`
	LeaseID        string    `json:"lease_id,omitempty"`
	LastUsed       time.Time `json:"last_used"`
	Claims         int64     `json:"claims"`
	Restarts       int64     `json:"restarts"`
	SessionCookies int       `json:"session_cookies"`
	LastError      string    `json:"last_error,omitempty"`
}
