// Package neko drives a Neko browser instance over its HTTP control API so it
// can serve as a pooled fallback player.
package neko

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/latoulicious/nekobeat/pkg/failure"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/pool"
)

const defaultTimeout = 15 * time.Second

// Config describes one Neko instance
type Config struct {
	BaseURL  string
	Username string
	Password string
	// Timeout bounds every control call. Audio feeds are bounded only by their context.
	Timeout time.Duration
}

// StatusError is returned when the control API answers with an unexpected status
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("neko %s: status %d: %s", e.Op, e.Code, e.Body)
	}
	return fmt.Sprintf("neko %s: status %d", e.Op, e.Code)
}

// Client implements pool.Worker for a single Neko instance
type Client struct {
	id         string
	config     Config
	httpClient *http.Client
	logger     logging.Logger
}

var _ pool.Worker = (*Client)(nil)

// New creates a client. A nil httpClient uses a fresh client without a global timeout.
func New(id string, config Config, httpClient *http.Client, logger logging.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Client{
		id:         id,
		config:     config,
		httpClient: httpClient,
		logger:     logger.With(logging.String("component", "neko"), logging.String("worker_id", id)),
	}
}

func (c *Client) ID() string {
	return c.id
}

type playRequest struct {
	URL string `json:"url"`
}

type seekRequest struct {
	Seconds float64 `json:"seconds"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionStatus struct {
	Authenticated bool `json:"authenticated"`
}

func (c *Client) PlayVideo(ctx context.Context, url string) error {
	return c.call(ctx, http.MethodPost, "/api/player/play", playRequest{URL: url}, nil)
}

func (c *Client) Pause(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/api/player/pause", nil, nil)
}

func (c *Client) Resume(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/api/player/resume", nil, nil)
}

func (c *Client) SeekTo(ctx context.Context, seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("neko seek: negative offset %.2f", seconds)
	}
	return c.call(ctx, http.MethodPost, "/api/player/seek", seekRequest{Seconds: seconds}, nil)
}

func (c *Client) Restart(ctx context.Context) error {
	c.logger.Info("Restarting browser session")
	return c.call(ctx, http.MethodPost, "/api/restart", nil, nil)
}

func (c *Client) GetAuthCookies(ctx context.Context) (pool.AuthSession, error) {
	var session pool.AuthSession
	if err := c.call(ctx, http.MethodGet, "/api/session/cookies", nil, &session); err != nil {
		return pool.AuthSession{}, err
	}
	if session.SavedAt.IsZero() {
		session.SavedAt = time.Now()
	}
	return session, nil
}

func (c *Client) RestoreSession(ctx context.Context, session pool.AuthSession) error {
	return c.call(ctx, http.MethodPost, "/api/session/cookies", session, nil)
}

// Authenticated probes the login state and logs in with the configured
// credentials when the instance is logged out.
func (c *Client) Authenticated(ctx context.Context) (bool, error) {
	var status sessionStatus
	if err := c.call(ctx, http.MethodGet, "/api/session", nil, &status); err != nil {
		return false, err
	}
	if status.Authenticated || c.config.Username == "" {
		return status.Authenticated, nil
	}

	c.logger.Info("Instance logged out, logging in")
	login := loginRequest{Username: c.config.Username, Password: c.config.Password}
	if err := c.call(ctx, http.MethodPost, "/api/login", login, &status); err != nil {
		if failure.KindOf(err) == failure.KindAuthRequired {
			c.logger.Warn("Login rejected", logging.Error(err))
			return false, nil
		}
		return false, err
	}
	return status.Authenticated, nil
}

// AudioFeed opens the instance's live audio stream
func (c *Client) AudioFeed(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/api/audio", nil)
	if err != nil {
		return nil, fmt.Errorf("create audio request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("neko audio: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError("audio", resp)
	}
	return resp.Body, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, payload)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("neko %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(strings.TrimPrefix(path, "/api/"), resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// statusError maps a failed response onto the taxonomy where it matters: a
// worker that has lost its login reports auth-required.
func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	serr := &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return failure.New(failure.KindAuthRequired, "worker session not authenticated", serr)
	case http.StatusTooManyRequests:
		return failure.New(failure.KindRateLimited, "worker throttled", serr)
	default:
		return serr
	}
}
