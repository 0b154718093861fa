package pool

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// TerminationReason explains why a lease ended
type TerminationReason int32

const (
	ReasonNone TerminationReason = iota
	ReasonReleased
	ReasonRestarted
	ReasonAuthFailed
)

func (r TerminationReason) String() string {
	switch r {
	case ReasonReleased:
		return "released"
	case ReasonRestarted:
		return "restarted"
	case ReasonAuthFailed:
		return "auth-failed"
	default:
		return "active"
	}
}

// Lease is exclusive, temporary use of one pooled worker. The pool keeps
// ownership of the worker; the lease only forwards playback operations while
// it is active.
type Lease struct {
	id     string
	entry  *entry
	done   chan struct{}
	once   sync.Once
	reason atomic.Int32
}

func newLease(e *entry) *Lease {
	return &Lease{
		id:    uuid.NewString(),
		entry: e,
		done:  make(chan struct{}),
	}
}

// ID returns the unique lease identifier
func (l *Lease) ID() string {
	return l.id
}

// WorkerID returns the id of the leased worker
func (l *Lease) WorkerID() string {
	return l.entry.id
}

// Done is closed once the lease is released or invalidated
func (l *Lease) Done() <-chan struct{} {
	return l.done
}

// Active reports whether the lease still grants use of the worker
func (l *Lease) Active() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Reason returns why the lease ended, ReasonNone while active
func (l *Lease) Reason() TerminationReason {
	return TerminationReason(l.reason.Load())
}

func (l *Lease) terminate(reason TerminationReason) {
	l.once.Do(func() {
		l.reason.Store(int32(reason))
		close(l.done)
	})
}

// PlayVideo starts playback of url on the leased worker
func (l *Lease) PlayVideo(ctx context.Context, url string) error {
	if !l.Active() {
		return ErrLeaseTerminated
	}
	if err := l.entry.worker.PlayVideo(ctx, url); err != nil {
		return err
	}
	l.entry.setCurrent(l, url)
	return nil
}

// Pause pauses the leased worker
func (l *Lease) Pause(ctx context.Context) error {
	if !l.Active() {
		return ErrLeaseTerminated
	}
	return l.entry.worker.Pause(ctx)
}

// Resume resumes the leased worker
func (l *Lease) Resume(ctx context.Context) error {
	if !l.Active() {
		return ErrLeaseTerminated
	}
	return l.entry.worker.Resume(ctx)
}

// SeekTo seeks the leased worker to the given offset
func (l *Lease) SeekTo(ctx context.Context, seconds float64) error {
	if !l.Active() {
		return ErrLeaseTerminated
	}
	return l.entry.worker.SeekTo(ctx, seconds)
}

// AudioFeed opens the worker's audio. Reads fail with ErrLeaseTerminated
// once the lease ends.
func (l *Lease) AudioFeed(ctx context.Context) (io.ReadCloser, error) {
	if !l.Active() {
		return nil, ErrLeaseTerminated
	}
	feed, err := l.entry.worker.AudioFeed(ctx)
	if err != nil {
		return nil, err
	}
	return &leasedFeed{lease: l, rc: feed}, nil
}

// leasedFeed stops delivering audio as soon as its lease is terminated
type leasedFeed struct {
	lease *Lease
	rc    io.ReadCloser
}

func (f *leasedFeed) Read(p []byte) (int, error) {
	if !f.lease.Active() {
		return 0, ErrLeaseTerminated
	}
	n, err := f.rc.Read(p)
	if err == nil && !f.lease.Active() {
		return n, ErrLeaseTerminated
	}
	return n, err
}

func (f *leasedFeed) Close() error {
	return f.rc.Close()
}
