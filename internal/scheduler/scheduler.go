// Package scheduler provides scheduled job execution for volwatch.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Job represents a scheduled job.
type Job struct {
	Name     string
	Schedule Schedule
	Handler  func(ctx context.Context) error

	// Restrict the job to the scheduler's active hours.
	ActiveHoursOnly bool

	LastRun   time.Time
	NextRun   time.Time
	LastError string
	Runs      int
	Skipped   int
}

// Schedule defines when a job should run.
type Schedule struct {
	// For fixed-interval jobs
	Interval time.Duration

	// For time-of-day jobs (in UTC)
	Hour   int
	Minute int

	Type ScheduleType
}

// ScheduleType defines the type of schedule.
type ScheduleType string

const (
	ScheduleInterval ScheduleType = "interval"
	ScheduleDaily    ScheduleType = "daily"
)

// ErrUnknownJob is returned by RunJobNow for an unregistered name.
var ErrUnknownJob = fmt.Errorf("unknown job")

// Options configures a Scheduler.
type Options struct {
	// How often due jobs are checked. Defaults to one second.
	CheckInterval time.Duration
	// Per-run timeout. Defaults to two minutes.
	JobTimeout  time.Duration
	ActiveHours *ActiveHours
	Now         func() time.Time
}

// Scheduler manages scheduled jobs.
type Scheduler struct {
	opts Options

	jobs    []*Job
	jobsMux sync.RWMutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler.
func NewScheduler(opts Options) *Scheduler {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = time.Second
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 2 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		opts:   opts,
		jobs:   make([]*Job, 0),
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddJob adds a job to the scheduler. Interval jobs are due immediately.
func (s *Scheduler) AddJob(job *Job) {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	now := s.opts.Now().UTC()
	if job.Schedule.Type == ScheduleInterval {
		job.NextRun = now
	} else {
		job.NextRun = calculateNextRun(job.Schedule, now)
	}
	s.jobs = append(s.jobs, job)

	log.Info().
		Str("job", job.Name).
		Time("next_run", job.NextRun).
		Bool("active_hours_only", job.ActiveHoursOnly).
		Msg("Job registered")
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	log.Info().Int("jobs", len(s.jobs)).Msg("Starting scheduler")

	s.wg.Add(1)
	go s.jobLoop()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler")
	s.cancel()
	s.wg.Wait()
}

// jobLoop checks and runs scheduled jobs.
func (s *Scheduler) jobLoop() {
	defer s.wg.Done()

	s.checkAndRunJobs()

	ticker := time.NewTicker(s.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRunJobs()
		}
	}
}

// checkAndRunJobs runs any jobs that are due.
func (s *Scheduler) checkAndRunJobs() {
	now := s.opts.Now().UTC()

	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	for _, job := range s.jobs {
		if now.Before(job.NextRun) {
			continue
		}
		job.NextRun = calculateNextRun(job.Schedule, now)

		if job.ActiveHoursOnly && !s.opts.ActiveHours.Contains(now) {
			job.Skipped++
			log.Debug().Str("job", job.Name).Msg("Outside active hours, skipping")
			continue
		}

		job.LastRun = now
		job.Runs++
		s.wg.Add(1)
		go s.runJob(job)
	}
}

// runJob executes a job.
func (s *Scheduler) runJob(job *Job) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.JobTimeout)
	defer cancel()

	log.Debug().Str("job", job.Name).Msg("Running job")

	err := job.Handler(ctx)

	s.jobsMux.Lock()
	if err != nil {
		job.LastError = err.Error()
	} else {
		job.LastError = ""
	}
	s.jobsMux.Unlock()

	if err != nil {
		log.Error().Err(err).Str("job", job.Name).Msg("Job failed")
	} else {
		log.Debug().Str("job", job.Name).Msg("Job completed")
	}
}

// calculateNextRun calculates the next run time for a schedule.
func calculateNextRun(schedule Schedule, now time.Time) time.Time {
	switch schedule.Type {
	case ScheduleInterval:
		return now.Add(schedule.Interval)

	case ScheduleDaily:
		next := time.Date(now.Year(), now.Month(), now.Day(),
			schedule.Hour, schedule.Minute, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		return next

	default:
		return now.Add(time.Hour)
	}
}

// RunJobNow runs a specific job immediately by name, ignoring active hours.
func (s *Scheduler) RunJobNow(name string) error {
	s.jobsMux.Lock()
	defer s.jobsMux.Unlock()

	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}

	for _, job := range s.jobs {
		if job.Name == name {
			job.LastRun = s.opts.Now().UTC()
			job.Runs++
			s.wg.Add(1)
			go s.runJob(job)
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

// JobStatus is a read-only view of a job.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	LastRun   time.Time `json:"last_run"`
	NextRun   time.Time `json:"next_run"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
	Skipped   int       `json:"skipped"`
}

// GetJobStatus returns the status of all jobs.
func (s *Scheduler) GetJobStatus() []JobStatus {
	s.jobsMux.RLock()
	defer s.jobsMux.RUnlock()

	status := make([]JobStatus, len(s.jobs))
	for i, job := range s.jobs {
		status[i] = JobStatus{
			Name:      job.Name,
			Schedule:  describe(job.Schedule),
			LastRun:   job.LastRun,
			NextRun:   job.NextRun,
			LastError: job.LastError,
			Runs:      job.Runs,
			Skipped:   job.Skipped,
		}
	}
	return status
}

func describe(s Schedule) string {
	switch s.Type {
	case ScheduleInterval:
		return "every " + s.Interval.String()
	case ScheduleDaily:
		return fmt.Sprintf("daily %02d:%02d UTC", s.Hour, s.Minute)
	default:
		return string(s.Type)
	}
}
