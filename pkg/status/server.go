// Package status serves the read-only reporting endpoints.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/latoulicious/nekobeat/pkg/pool"
	"github.com/latoulicious/nekobeat/pkg/stats"
	"github.com/latoulicious/nekobeat/pkg/voice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsSource reports playback counters and failures
type StatsSource interface {
	GetStats() stats.Snapshot
	GetErrorMetrics() stats.ErrorMetrics
}

// PoolSource reports worker instances
type PoolSource interface {
	GetAllInstances() []pool.InstanceSnapshot
	GetInstanceByID(id string) (pool.InstanceSnapshot, error)
}

// VoiceSource reports voice pipeline usage
type VoiceSource interface {
	Enabled() bool
	Cost() voice.CostSnapshot
	TenantStats() map[string]voice.PipelineStats
}

// Sources are the components the server reads from. Pool and Voice may be nil.
type Sources struct {
	Stats    StatsSource
	Pool     PoolSource
	Voice    VoiceSource
	Gatherer prometheus.Gatherer
}

// VoiceReport is the body of /status/voice
type VoiceReport struct {
	Enabled bool                           `json:"enabled"`
	Cost    voice.CostSnapshot             `json:"cost"`
	Tenants map[string]voice.PipelineStats `json:"tenants"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Server wraps the echo instance
type Server struct {
	echo    *echo.Echo
	sources Sources
	logger  logging.Logger
}

// NewServer builds the routes
func NewServer(sources Sources, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NullLogger()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		sources: sources,
		logger:  logger.With(logging.String("component", "status")),
	}

	g := e.Group("/status")
	g.GET("/stats", s.getStats)
	g.GET("/errors", s.getErrors)
	g.GET("/instances", s.getInstances)
	g.GET("/instances/:id", s.getInstance)
	g.GET("/voice", s.getVoice)

	if sources.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(sources.Gatherer, promhttp.HandlerOpts{})))
	}
	return s
}

// Handler exposes the router, used by tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown
func (s *Server) Start(addr string) error {
	s.logger.Info("Status server listening", logging.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

func (s *Server) getStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sources.Stats.GetStats())
}

func (s *Server) getErrors(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sources.Stats.GetErrorMetrics())
}

func (s *Server) getInstances(c echo.Context) error {
	if s.sources.Pool == nil {
		return c.JSON(http.StatusOK, []pool.InstanceSnapshot{})
	}
	return c.JSON(http.StatusOK, s.sources.Pool.GetAllInstances())
}

func (s *Server) getInstance(c echo.Context) error {
	if s.sources.Pool == nil {
		return c.JSON(http.StatusNotFound, errorBody{Error: pool.ErrUnknownWorker.Error()})
	}
	instance, err := s.sources.Pool.GetInstanceByID(c.Param("id"))
	if errors.Is(err, pool.ErrUnknownWorker) {
		return c.JSON(http.StatusNotFound, errorBody{Error: err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, instance)
}

func (s *Server) getVoice(c echo.Context) error {
	if s.sources.Voice == nil {
		return c.JSON(http.StatusOK, VoiceReport{Tenants: map[string]voice.PipelineStats{}})
	}
	return c.JSON(http.StatusOK, VoiceReport{
		Enabled: s.sources.Voice.Enabled(),
		Cost:    s.sources.Voice.Cost(),
		Tenants: s.sources.Voice.TenantStats(),
	})
}
