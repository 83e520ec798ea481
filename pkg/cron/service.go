package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrStopped is returned once Stop has been called
	ErrStopped = errors.New("scheduler is stopped")
	// ErrJobNotFound is returned for an unknown job ID
	ErrJobNotFound = errors.New("job not found")
)

// Service runs maintenance jobs on timers. Jobs live in memory and are
// registered by the application at start-up.
type Service struct {
	jobs    map[string]*Job
	timers  map[string]*time.Timer
	options ServiceOptions
	mu      sync.RWMutex
	wg      sync.WaitGroup
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewService creates a new scheduler
func NewService(opts ServiceOptions) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		jobs:    make(map[string]*Job),
		timers:  make(map[string]*time.Timer),
		options: opts,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddJob registers and schedules a job
func (s *Service) AddJob(params AddParams) (*Job, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("job name is required")
	}
	if params.Run == nil {
		return nil, fmt.Errorf("job %s has no run function", params.Name)
	}

	nextRunAtMs, err := CalculateNextRun(params.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, ErrStopped
	}

	job := &Job{
		ID:          uuid.New().String(),
		Name:        params.Name,
		Description: params.Description,
		Enabled:     params.Enabled,
		CreatedAtMs: Now(),
		Schedule:    params.Schedule,
		State: JobState{
			NextRunAtMs: Int64Ptr(nextRunAtMs),
		},
		run: params.Run,
	}
	s.jobs[job.ID] = job

	if job.Enabled {
		s.scheduleJobLocked(job)
	}

	log.Info().
		Str("jobId", job.ID).
		Str("name", job.Name).
		Bool("enabled", job.Enabled).
		Time("nextRun", time.UnixMilli(nextRunAtMs)).
		Msg("Job created")

	s.emit(Event{Action: EventActionAdded, JobID: job.ID, JobName: job.Name})

	return job.snapshot(), nil
}

// RemoveJob deletes a job
func (s *Service) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	s.cancelJobLocked(id)
	delete(s.jobs, id)

	log.Info().Str("jobId", id).Str("name", job.Name).Msg("Job removed")

	s.emit(Event{Action: EventActionDeleted, JobID: id, JobName: job.Name})
	return nil
}

// RunJob executes a job now, outside its schedule. It runs in the
// background like a timer firing.
func (s *Service) RunJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.executeJob(job, false)
	}()
	return nil
}

// ListJobs returns snapshots of all jobs ordered by creation time
func (s *Service) ListJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.snapshot())
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAtMs != jobs[j].CreatedAtMs {
			return jobs[i].CreatedAtMs < jobs[j].CreatedAtMs
		}
		return jobs[i].Name < jobs[j].Name
	})
	return jobs
}

// GetJob returns a snapshot of a job, or nil
func (s *Service) GetJob(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if job, ok := s.jobs[id]; ok {
		return job.snapshot()
	}
	return nil
}

// Stop cancels all timers and waits for running jobs to return
func (s *Service) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancel()
	for id := range s.timers {
		s.cancelJobLocked(id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Info().Msg("Scheduler stopped")
}

// scheduleJobLocked arms the job's timer (must hold lock)
func (s *Service) scheduleJobLocked(job *Job) {
	if job.State.NextRunAtMs == nil {
		log.Warn().Str("jobId", job.ID).Msg("Cannot schedule job without next run time")
		return
	}

	delay := *job.State.NextRunAtMs - Now()
	if delay < 0 {
		delay = 0
	}

	s.timers[job.ID] = time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()

		defer s.wg.Done()
		s.executeJob(job, true)
	})

	log.Debug().
		Str("jobId", job.ID).
		Int64("delayMs", delay).
		Msg("Job scheduled")
}

// cancelJobLocked stops a job's timer (must hold lock)
func (s *Service) cancelJobLocked(id string) {
	if timer, exists := s.timers[id]; exists {
		timer.Stop()
		delete(s.timers, id)
	}
}

// executeJob runs a job once. Scheduled runs re-arm the timer afterwards.
func (s *Service) executeJob(job *Job, scheduled bool) {
	s.mu.Lock()
	current, exists := s.jobs[job.ID]
	if !exists {
		s.mu.Unlock()
		log.Debug().Str("jobId", job.ID).Msg("Job no longer exists, skipping execution")
		return
	}
	if current.State.RunningAtMs != nil {
		s.mu.Unlock()
		log.Debug().Str("jobId", job.ID).Msg("Job already running, skipping execution")
		return
	}
	startMs := Now()
	current.State.RunningAtMs = Int64Ptr(startMs)
	run := current.run
	s.mu.Unlock()

	log.Debug().Str("jobId", job.ID).Str("name", job.Name).Msg("Executing job")

	err := runSafely(s.ctx, run)

	s.mu.Lock()
	defer s.mu.Unlock()

	durationMs := Now() - startMs
	current.State.RunningAtMs = nil
	current.State.LastRunAtMs = Int64Ptr(startMs)
	current.State.LastDurationMs = Int64Ptr(durationMs)

	if err != nil {
		current.State.LastStatus = "error"
		current.State.LastError = err.Error()
		current.State.ConsecutiveErrors++

		log.Error().
			Str("jobId", job.ID).
			Str("name", job.Name).
			Err(err).
			Int("consecutiveErrors", current.State.ConsecutiveErrors).
			Msg("Job execution failed")
	} else {
		current.State.LastStatus = "ok"
		current.State.LastError = ""
		current.State.ConsecutiveErrors = 0

		log.Info().
			Str("jobId", job.ID).
			Str("name", job.Name).
			Int64("durationMs", durationMs).
			Msg("Job execution completed")
	}

	if scheduled {
		nextRunAtMs, calcErr := CalculateNextRun(current.Schedule)
		if calcErr != nil {
			log.Error().Str("jobId", job.ID).Err(calcErr).Msg("Failed to calculate next run")
		} else {
			current.State.NextRunAtMs = Int64Ptr(nextRunAtMs)
			if current.Enabled && !s.stopped {
				if _, stillThere := s.jobs[job.ID]; stillThere {
					s.scheduleJobLocked(current)
				}
			}
		}
	}

	s.emit(Event{
		Action:      EventActionFinished,
		JobID:       job.ID,
		JobName:     job.Name,
		Status:      current.State.LastStatus,
		Error:       current.State.LastError,
		DurationMs:  Int64Ptr(durationMs),
		NextRunAtMs: current.State.NextRunAtMs,
	})
}

func runSafely(ctx context.Context, run JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return run(ctx)
}

func (s *Service) emit(evt Event) {
	if s.options.OnEvent != nil {
		s.options.OnEvent(evt)
	}
}

func (j *Job) snapshot() *Job {
	c := *j
	c.run = nil
	return &c
}
