package pool

import (
	"context"
	"io"
	"time"
)

// Worker is the capability set every pooled fallback player implements
type Worker interface {
	ID() string
	PlayVideo(ctx context.Context, url string) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	SeekTo(ctx context.Context, seconds float64) error
	// AudioFeed opens the live audio of whatever the worker is playing
	AudioFeed(ctx context.Context) (io.ReadCloser, error)
	GetAuthCookies(ctx context.Context) (AuthSession, error)
	RestoreSession(ctx context.Context, session AuthSession) error
	// Authenticated reports whether the worker currently holds a usable login
	Authenticated(ctx context.Context) (bool, error)
	Restart(ctx context.Context) error
}

// Cookie is one entry of a worker's authentication session
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty"`
}

// Expired reports whether the cookie is past its expiry at t
func (c Cookie) Expired(t time.Time) bool {
	return !c.Expires.IsZero() && t.After(c.Expires)
}

// AuthSession is the opaque login state a worker carries between playback sessions
type AuthSession struct {
	Cookies []Cookie  `json:"cookies"`
	SavedAt time.Time `json:"saved_at"`
}

// Empty reports whether the session holds no cookies
func (s AuthSession) Empty() bool {
	return len(s.Cookies) == 0
}

// Live returns a copy of the session without cookies expired at t
func (s AuthSession) Live(t time.Time) AuthSession {
	out := AuthSession{SavedAt: s.SavedAt}
	for _, c := range s.Cookies {
		if !c.Expired(t) {
			out.Cookies = append(out.Cookies, c)
		}
	}
	return out
}

func (s AuthSession) clone() AuthSession {
	out := AuthSession{SavedAt: s.SavedAt}
	if len(s.Cookies) > 0 {
		out.Cookies = make([]Cookie, len(s.Cookies))
		copy(out.Cookies, s.Cookies)
	}
	return out
}
