// Package scheduler runs Valet's background jobs: the reminder sweep, the
// inbox poll, and the daily digest. Each job gets its own goroutine loop;
// cron expressions use the standard five-field syntax.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/valet-hq/valet/internal/logging"
)

// JobHandler is the function executed for a job.
type JobHandler func(ctx context.Context) error

// Schedule defines when a job runs.
type Schedule struct {
	Interval time.Duration // fixed interval, when non-zero
	Cron     string        // standard cron expression, when Interval is zero
}

// Job is one registered background job.
type Job struct {
	ID       string
	Schedule Schedule
	Handler  JobHandler
	Timeout  time.Duration

	cronSched cron.Schedule

	mu         sync.Mutex
	lastRun    time.Time
	runCount   int64
	errorCount int64
	lastError  string
}

// Stats is a point-in-time view of one job.
type Stats struct {
	ID         string    `json:"id"`
	LastRun    time.Time `json:"lastRun"`
	RunCount   int64     `json:"runCount"`
	ErrorCount int64     `json:"errorCount"`
	LastError  string    `json:"lastError,omitempty"`
}

// Scheduler owns the job table and their loops.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New creates a scheduler.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   make(map[string]*Job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Every registers a fixed-interval job.
func (s *Scheduler) Every(id string, interval time.Duration, handler JobHandler) error {
	return s.register(&Job{ID: id, Schedule: Schedule{Interval: interval}, Handler: handler})
}

// Cron registers a job on a standard five-field cron expression.
func (s *Scheduler) Cron(id, expr string, handler JobHandler) error {
	return s.register(&Job{ID: id, Schedule: Schedule{Cron: expr}, Handler: handler})
}

func (s *Scheduler) register(job *Job) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if job.Handler == nil {
		return fmt.Errorf("job handler is required")
	}
	if job.Timeout == 0 {
		job.Timeout = 5 * time.Minute
	}
	if job.Schedule.Interval <= 0 {
		sched, err := cron.ParseStandard(job.Schedule.Cron)
		if err != nil {
			return fmt.Errorf("job %s: bad cron expression %q: %w", job.ID, job.Schedule.Cron, err)
		}
		job.cronSched = sched
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already registered", job.ID)
	}
	s.jobs[job.ID] = job
	if s.started {
		s.startJob(job)
	}
	return nil
}

// Start launches all registered job loops.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	for _, job := range s.jobs {
		s.startJob(job)
	}
	return nil
}

// Stop cancels all job loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
}

// RunNow executes a job immediately, outside its schedule. The run counts
// toward the wait group, so Stop blocks until it finishes.
func (s *Scheduler) RunNow(id string) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job not found: %s", id)
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.execute(s.ctx, job)
	}()
	return nil
}

// JobStats returns a snapshot of every job.
func (s *Scheduler) JobStats() []Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Stats, 0, len(s.jobs))
	for _, job := range s.jobs {
		job.mu.Lock()
		out = append(out, Stats{
			ID:         job.ID,
			LastRun:    job.lastRun,
			RunCount:   job.runCount,
			ErrorCount: job.errorCount,
			LastError:  job.lastError,
		})
		job.mu.Unlock()
	}
	return out
}

func (s *Scheduler) startJob(job *Job) {
	s.wg.Add(1)
	go s.runLoop(s.ctx, job)
}

func (s *Scheduler) runLoop(ctx context.Context, job *Job) {
	defer s.wg.Done()

	for {
		wait := job.nextWait(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			s.execute(ctx, job)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job *Job) {
	execCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	job.mu.Lock()
	job.lastRun = time.Now()
	job.runCount++
	job.mu.Unlock()

	err := job.Handler(execCtx)

	job.mu.Lock()
	if err != nil {
		job.errorCount++
		job.lastError = err.Error()
		logging.Warn("job %s failed: %v", job.ID, err)
	} else {
		job.lastError = ""
	}
	job.mu.Unlock()
}

func (j *Job) nextWait(now time.Time) time.Duration {
	if j.Schedule.Interval > 0 {
		return j.Schedule.Interval
	}
	return j.cronSched.Next(now).Sub(now)
}
