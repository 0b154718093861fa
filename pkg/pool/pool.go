package pool

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/latoulicious/nekobeat/pkg/failure"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/samber/lo"
)

// entry is the pool's record of one worker. All mutable fields are guarded by mu;
// worker I/O never happens while mu is held.
type entry struct {
	id     string
	worker Worker

	mu            sync.RWMutex
	state         WorkerState
	authenticated bool
	current       string
	session       AuthSession
	lease         *Lease
	lastUsed      time.Time
	lastErr       string
	claims        int64
	restarts      int64
	generation    uint64
}

func (e *entry) setCurrent(l *Lease, url string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lease == l {
		e.current = url
	}
}

func (e *entry) snapshot() InstanceSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := InstanceSnapshot{
		ID:             e.id,
		State:          e.state.String(),
		Authenticated:  e.authenticated,
		CurrentURL:     e.current,
		Claimed:        e.lease != nil,
		LastUsed:       e.lastUsed,
		Claims:         e.claims,
		Restarts:       e.restarts,
		SessionCookies: len(e.session.Cookies),
		LastError:      e.lastErr,
	}
	if e.lease != nil {
		snap.LeaseID = e.lease.id
	}
	return snap
}

// Pool is a fixed set of stateful fallback workers. Entries are created once in
// New and never added or removed, so lookups need no pool-wide lock.
type Pool struct {
	entries []*entry
	byID    map[string]*entry
	logger  logging.Logger
	now     func() time.Time
}

// New builds a pool holding at most capacity workers. Workers beyond capacity are ignored.
func New(workers []Worker, capacity int, logger logging.Logger) (*Pool, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if logger == nil {
		logger = logging.NullLogger()
	}
	logger = logger.With(logging.String("component", "pool"))

	if len(workers) > capacity {
		logger.Warn("More workers configured than pool capacity, ignoring extras",
			logging.Int("configured", len(workers)),
			logging.Int("capacity", capacity))
		workers = workers[:capacity]
	}

	p := &Pool{
		entries: make([]*entry, 0, len(workers)),
		byID:    make(map[string]*entry, len(workers)),
		logger:  logger,
		now:     time.Now,
	}
	for _, w := range workers {
		id := w.ID()
		if _, exists := p.byID[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWorker, id)
		}
		e := &entry{id: id, worker: w, state: StateIdle}
		p.entries = append(p.entries, e)
		p.byID[id] = e
	}
	return p, nil
}

// Size returns the number of workers in the pool
func (p *Pool) Size() int {
	return len(p.entries)
}

// Start authenticates every worker concurrently and waits for all of them
func (p *Pool) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range p.entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			if err := p.authenticate(ctx, e); err != nil {
				p.logger.Warn("Worker failed to authenticate",
					logging.String("worker_id", e.id),
					logging.Error(err))
			}
		}(e)
	}
	wg.Wait()

	ready := lo.CountBy(p.GetAllInstances(), func(s InstanceSnapshot) bool {
		return s.State == StateReady.String()
	})
	p.logger.Info("Worker pool started",
		logging.Int("workers", len(p.entries)),
		logging.Int("ready", ready))
}

// authenticate moves a worker through Authenticating, restoring its preserved
// session first. It gives up silently if the worker was restarted meanwhile.
func (p *Pool) authenticate(ctx context.Context, e *entry) error {
	e.mu.Lock()
	if e.lease != nil {
		e.mu.Unlock()
		return nil
	}
	e.state = StateAuthenticating
	gen := e.generation
	session := e.session.clone()
	e.mu.Unlock()

	if live := session.Live(p.now()); !live.Empty() {
		if err := e.worker.RestoreSession(ctx, live); err != nil {
			p.fail(e, gen, fmt.Errorf("restore session: %w", err))
			return err
		}
	}

	ok, err := e.worker.Authenticated(ctx)
	if err != nil {
		p.fail(e, gen, fmt.Errorf("auth probe: %w", err))
		return err
	}
	if ok {
		fresh, err := e.worker.GetAuthCookies(ctx)
		if err != nil {
			p.logger.Warn("Could not read worker session",
				logging.String("worker_id", e.id),
				logging.Error(err))
		} else if !fresh.Empty() {
			session = fresh.clone()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen {
		return nil
	}
	e.authenticated = ok
	e.session = session
	e.lastErr = ""
	if ok {
		e.state = StateReady
	} else {
		e.state = StateIdle
	}
	return nil
}

func (p *Pool) fail(e *entry, gen uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen {
		return
	}
	e.state = StateError
	e.lastErr = err.Error()
}

// Claim hands out the least recently used Ready, authenticated worker. It never
// blocks waiting for one: ErrCapacityExhausted is returned when none qualifies.
func (p *Pool) Claim(ctx context.Context) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type candidate struct {
		entry    *entry
		lastUsed time.Time
	}
	candidates := lo.FilterMap(p.entries, func(e *entry, _ int) (candidate, bool) {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return candidate{entry: e, lastUsed: e.lastUsed}, e.claimableLocked()
	})
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return a.lastUsed.Compare(b.lastUsed)
	})

	// Another caller may win the race for a candidate between the scan and the
	// claim, so each one is re-checked under its own lock.
	for _, c := range candidates {
		if lease := p.tryClaim(c.entry); lease != nil {
			p.logger.Debug("Worker claimed",
				logging.String("worker_id", c.entry.id),
				logging.String("lease_id", lease.id))
			return lease, nil
		}
	}
	return nil, ErrCapacityExhausted
}

func (e *entry) claimableLocked() bool {
	return e.state == StateReady && e.authenticated && e.lease == nil
}

func (p *Pool) tryClaim(e *entry) *Lease {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.claimableLocked() {
		return nil
	}
	lease := newLease(e)
	e.lease = lease
	e.state = StatePlaying
	e.claims++
	e.lastUsed = p.now()
	return lease
}

// Release returns a leased worker to the pool. Releasing a lease that was
// already released or invalidated returns ErrStaleLease.
func (p *Pool) Release(lease *Lease) error {
	if lease == nil {
		return ErrStaleLease
	}
	e := lease.entry

	e.mu.Lock()
	if e.lease != lease {
		e.mu.Unlock()
		lease.terminate(ReasonReleased)
		return ErrStaleLease
	}
	e.lease = nil
	e.current = ""
	e.lastUsed = p.now()
	if e.state == StatePlaying {
		if e.authenticated {
			e.state = StateReady
		} else {
			e.state = StateIdle
		}
	}
	e.mu.Unlock()

	lease.terminate(ReasonReleased)
	p.logger.Debug("Worker released",
		logging.String("worker_id", e.id),
		logging.String("lease_id", lease.id))
	return nil
}

// MarkAuthFailed records that the leased worker lost its login. The worker
// moves to Error, its session payload is discarded and the lease ends.
func (p *Pool) MarkAuthFailed(lease *Lease, cause error) error {
	if lease == nil {
		return ErrStaleLease
	}
	e := lease.entry

	e.mu.Lock()
	if e.lease != lease {
		e.mu.Unlock()
		return ErrStaleLease
	}
	e.lease = nil
	e.current = ""
	e.state = StateError
	e.authenticated = false
	e.session = AuthSession{}
	e.lastErr = "authentication failed"
	if cause != nil {
		e.lastErr = cause.Error()
	}
	e.mu.Unlock()

	lease.terminate(ReasonAuthFailed)
	p.logger.Warn("Worker authentication invalidated",
		logging.String("worker_id", e.id),
		logging.Error(cause))
	return nil
}

// Restart forcibly resets one worker. Any outstanding lease on it is terminated
// before the worker restarts; the preserved session is restored afterwards.
func (p *Pool) Restart(ctx context.Context, id string) error {
	e, ok := p.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}

	e.mu.Lock()
	e.generation++
	gen := e.generation
	lease := e.lease
	e.lease = nil
	e.current = ""
	e.state = StateIdle
	e.restarts++
	e.mu.Unlock()

	if lease != nil {
		lease.terminate(ReasonRestarted)
		p.logger.Info("Terminated lease for restart",
			logging.String("worker_id", id),
			logging.String("lease_id", lease.id))
	}

	if err := e.worker.Restart(ctx); err != nil {
		wrapped := fmt.Errorf("restart worker %s: %w", id, err)
		p.fail(e, gen, wrapped)
		return wrapped
	}
	return p.authenticate(ctx, e)
}

// GetAllInstances returns a snapshot of every worker in pool order
func (p *Pool) GetAllInstances() []InstanceSnapshot {
	return lo.Map(p.entries, func(e *entry, _ int) InstanceSnapshot {
		return e.snapshot()
	})
}

// GetInstanceByID returns a snapshot of one worker
func (p *Pool) GetInstanceByID(id string) (InstanceSnapshot, error) {
	e, ok := p.byID[id]
	if !ok {
		return InstanceSnapshot{}, fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	return e.snapshot(), nil
}

// SessionOf returns a copy of the session payload preserved for a worker
func (p *Pool) SessionOf(id string) (AuthSession, error) {
	e, ok := p.byID[id]
	if !ok {
		return AuthSession{}, fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session.clone(), nil
}

// IsAuthFailure reports whether a worker error means the worker lost its login
func IsAuthFailure(err error) bool {
	return errors.Is(err, failure.ErrAuthRequired)
}
