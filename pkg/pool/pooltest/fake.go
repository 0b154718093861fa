// Package pooltest provides an in-memory pool.Worker for tests.
package pooltest

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/latoulicious/nekobeat/pkg/pool"
)

// FakeWorker records calls and returns configurable errors
type FakeWorker struct {
	id string

	mu            sync.Mutex
	authenticated bool
	session       pool.AuthSession
	restored      []pool.AuthSession
	played        []string
	restarts      int
	feed          []byte

	PlayErr           error
	FeedErr           error
	RestartErr        error
	AuthErr           error
	RestoreErr        error
	LoseAuthOnRestart bool
}

// NewFakeWorker creates an authenticated fake worker holding session
func NewFakeWorker(id string, session pool.AuthSession) *FakeWorker {
	return &FakeWorker{
		id:            id,
		authenticated: true,
		session:       session,
		feed:          []byte("audio"),
	}
}

func (f *FakeWorker) ID() string { return f.id }

func (f *FakeWorker) PlayVideo(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PlayErr != nil {
		return f.PlayErr
	}
	f.played = append(f.played, url)
	return ctx.Err()
}

func (f *FakeWorker) Pause(ctx context.Context) error { return ctx.Err() }
func (f *FakeWorker) Resume(ctx context.Context) error { return ctx.Err() }

func (f *FakeWorker) SeekTo(ctx context.Context, seconds float64) error { return ctx.Err() }

func (f *FakeWorker) AudioFeed(ctx context.Context) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FeedErr != nil {
		return nil, f.FeedErr
	}
	return io.NopCloser(bytes.NewReader(f.feed)), nil
}

func (f *FakeWorker) GetAuthCookies(ctx context.Context) (pool.AuthSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

func (f *FakeWorker) RestoreSession(ctx context.Context, session pool.AuthSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RestoreErr != nil {
		return f.RestoreErr
	}
	f.restored = append(f.restored, session)
	f.session = session
	if !session.Empty() {
		f.authenticated = true
	}
	return nil
}

func (f *FakeWorker) Authenticated(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AuthErr != nil {
		return false, f.AuthErr
	}
	return f.authenticated, nil
}

func (f *FakeWorker) Restart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RestartErr != nil {
		return f.RestartErr
	}
	f.restarts++
	if f.LoseAuthOnRestart {
		f.authenticated = false
		f.session = pool.AuthSession{}
	}
	return nil
}

// SetAuthenticated changes what the auth probe reports
func (f *FakeWorker) SetAuthenticated(ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authenticated = ok
}

// SetFeed replaces the bytes served by AudioFeed
func (f *FakeWorker) SetFeed(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feed = b
}

// Played returns the urls passed to PlayVideo
func (f *FakeWorker) Played() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.played...)
}

// Restored returns every session passed to RestoreSession
func (f *FakeWorker) Restored() []pool.AuthSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pool.AuthSession(nil), f.restored...)
}

// Restarts returns how often Restart succeeded
func (f *FakeWorker) Restarts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarts
}
