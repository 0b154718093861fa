package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/latoulicious/nekobeat/pkg/logging"
	"github.com/robfig/cron/v3"
)

// Default schedules for the housekeeping jobs
const (
	SessionSweepSchedule = "0 * * * * *"   // every minute
	StatsReportSchedule  = "0 */5 * * * *" // every 5 minutes
)

var (
	ErrDuplicateJob = errors.New("job already registered")
	ErrUnknownJob   = errors.New("unknown job")
)

// Job is a named periodic task
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

type scheduledJob struct {
	job       Job
	entry     cron.EntryID
	mutex     sync.Mutex
	isRunning bool
	runs      int
	lastErr   error
}

// JobStatus describes a registered job
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	NextRun   time.Time `json:"next_run"`
	Runs      int       `json:"runs"`
	IsRunning bool      `json:"is_running"`
	LastError string    `json:"last_error,omitempty"`
}

// Scheduler runs housekeeping jobs on cron schedules. A job never overlaps
// with itself: a tick that fires while the previous run is active is skipped.
type Scheduler struct {
	cron   *cron.Cron
	logger logging.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mutex sync.RWMutex
	jobs  map[string]*scheduledJob
}

// NewScheduler creates a stopped scheduler
func NewScheduler(logger logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger.With(logging.String("component", "scheduler")),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*scheduledJob),
	}
}

// Add registers a job
func (s *Scheduler) Add(job Job) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, job.Name)
	}

	sj := &scheduledJob{job: job}
	entryID, err := s.cron.AddFunc(job.Schedule, func() { s.run(sj) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name, err)
	}
	sj.entry = entryID
	s.jobs[job.Name] = sj

	s.logger.Info("Scheduled job",
		logging.String("job", job.Name),
		logging.String("schedule", job.Schedule))
	return nil
}

// RunNow runs a job immediately, honoring the overlap guard
func (s *Scheduler) RunNow(name string) error {
	s.mutex.RLock()
	sj, ok := s.jobs[name]
	s.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	s.run(sj)
	return nil
}

func (s *Scheduler) run(sj *scheduledJob) {
	sj.mutex.Lock()
	if sj.isRunning {
		sj.mutex.Unlock()
		s.logger.Debug("Job already in progress, skipping", logging.String("job", sj.job.Name))
		return
	}
	sj.isRunning = true
	sj.mutex.Unlock()

	start := time.Now()
	err := sj.job.Run(s.ctx)

	sj.mutex.Lock()
	sj.isRunning = false
	sj.runs++
	sj.lastErr = err
	sj.mutex.Unlock()

	if err != nil {
		s.logger.Warn("Job failed",
			logging.String("job", sj.job.Name),
			logging.Error(err))
		return
	}
	s.logger.Debug("Job completed",
		logging.String("job", sj.job.Name),
		logging.Duration("took", time.Since(start)))
}

// Start begins firing jobs
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Jobs reports every registered job
func (s *Scheduler) Jobs() []JobStatus {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, sj := range s.jobs {
		sj.mutex.Lock()
		status := JobStatus{
			Name:      sj.job.Name,
			Schedule:  sj.job.Schedule,
			NextRun:   s.cron.Entry(sj.entry).Next,
			Runs:      sj.runs,
			IsRunning: sj.isRunning,
		}
		if sj.lastErr != nil {
			status.LastError = sj.lastErr.Error()
		}
		sj.mutex.Unlock()
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}
