// Package scheduler runs periodic jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Job represents a scheduled task
type Job func(ctx context.Context) error

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name     string
	Schedule string
	NextRun  time.Time
	LastRun  time.Time
}

type entry struct {
	id       cron.EntryID
	schedule string
}

// Scheduler manages periodic tasks. A job never overlaps itself.
type Scheduler struct {
	cron     *cron.Cron
	mu       sync.Mutex
	jobs     map[string]entry
	timezone *time.Location
}

// New creates a new scheduler in the given location. A nil loc means UTC.
func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)
	return &Scheduler{
		cron:     c,
		jobs:     make(map[string]entry),
		timezone: loc,
	}
}

// AddJob adds a job with a standard five-field cron schedule. Each run gets
// a context that expires after timeout; zero means no deadline.
func (s *Scheduler) AddJob(name, schedule string, timeout time.Duration, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		_ = run(name, timeout, job)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entry{id: entryID, schedule: schedule}
	log.Info().Str("job", name).Str("schedule", schedule).Str("tz", s.timezone.String()).Msg("Scheduled job")
	return nil
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.jobs[name]; ok {
		s.cron.Remove(e.id)
		delete(s.jobs, name)
		log.Info().Str("job", name).Msg("Removed job")
	}
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	log.Info().Int("jobs", len(s.jobs)).Msg("Starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	log.Info().Msg("Stopping scheduler")
	return s.cron.Stop()
}

// RunNow immediately executes a job outside the schedule.
func (s *Scheduler) RunNow(name string, timeout time.Duration, job Job) error {
	return run(name, timeout, job)
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, e := range s.jobs {
		ce := s.cron.Entry(e.id)
		infos = append(infos, JobInfo{
			Name:     name,
			Schedule: e.schedule,
			NextRun:  ce.Next,
			LastRun:  ce.Prev,
		})
	}
	return infos
}

func run(name string, timeout time.Duration, job Job) error {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log.Info().Str("job", name).Msg("Starting job")
	start := time.Now()

	if err := job(ctx); err != nil {
		log.Error().Err(err).Str("job", name).Dur("elapsed", time.Since(start)).Msg("Job failed")
		return err
	}
	log.Info().Str("job", name).Dur("elapsed", time.Since(start)).Msg("Job completed")
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
