package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/restodash/backend/internal/domain/pnl"
	"go.uber.org/zap"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// Job is one refresh of a location-month summary.
type Job struct {
	ID          uuid.UUID
	Scope       pnl.Scope
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time
}

// NewJob creates a pending job for scope.
func NewJob(scope pnl.Scope, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Scope:      scope,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry
func (j *Job) ScheduleRetry(delay time.Duration) {
	j.RetryCount++
	j.Status = JobStatusPending
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

// JobExecutor runs a single job.
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled           bool
	MaxConcurrentJobs int
	QueueSize         int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:           true,
		MaxConcurrentJobs: 3,
		QueueSize:         100,
		JobTimeout:        30 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        5 * time.Minute,
	}
}

// Scheduler runs refresh jobs on a fixed pool of workers.
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	logger   *zap.Logger
	onDone   func(Job)

	jobs      chan *Job
	pending   map[pnl.Scope]uuid.UUID
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	retries   sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger) *Scheduler {
	if config.MaxConcurrentJobs <= 0 {
		config.MaxConcurrentJobs = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *Job, config.QueueSize),
		pending:  make(map[pnl.Scope]uuid.UUID),
	}
}

// OnJobDone registers fn to receive a copy of every job that reaches a
// terminal state. Must be called before Start.
func (s *Scheduler) OnJobDone(fn func(Job)) {
	s.onDone = fn
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Aggregation scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	close(s.jobs)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.retries.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Aggregation scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Aggregation scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the scheduler accepts jobs.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// SubmitJob submits a job for execution
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("scope", job.Scope.String()),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// ScheduleRefresh queues a refresh of scope. At most one refresh per scope
// is outstanding; a second request returns ErrRefreshPending.
func (s *Scheduler) ScheduleRefresh(scope pnl.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	job := NewJob(scope, s.config.RetryAttempts)

	s.mu.Lock()
	if _, busy := s.pending[scope]; busy {
		s.mu.Unlock()
		return ErrRefreshPending
	}
	s.pending[scope] = job.ID
	s.mu.Unlock()

	if err := s.SubmitJob(job); err != nil {
		s.release(job)
		return err
	}
	return nil
}

// Pending returns the number of scopes with an outstanding refresh.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) release(job *Job) {
	s.mu.Lock()
	if s.pending[job.Scope] == job.ID {
		delete(s.pending, job.Scope)
	}
	s.mu.Unlock()
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
			return
		case job, ok := <-s.jobs:
			if !ok {
				s.logger.Debug("Job channel closed", zap.Int("worker_id", workerID))
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	job.Start()
	logger := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("location_id", job.Scope.LocationID),
		zap.Int("year", job.Scope.Year),
		zap.Int("month", job.Scope.Month),
	)
	logger.Info("Processing job", zap.Int("retry_count", job.RetryCount))

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	err := s.executor.Execute(jobCtx, job)
	if err == nil {
		job.Complete()
		logger.Info("Job completed successfully")
		s.finish(job)
		return
	}

	job.Fail(err.Error())
	logger.Error("Job failed", zap.Error(err))

	if IsPermanent(err) || ctx.Err() != nil || !job.ShouldRetry() {
		s.finish(job)
		return
	}

	job.ScheduleRetry(s.config.RetryDelay)
	logger.Info("Job scheduled for retry",
		zap.Int("retry_count", job.RetryCount),
		zap.Int("max_retries", job.MaxRetries),
		zap.Timep("next_retry_at", job.NextRetryAt),
	)
	s.requeueAfter(ctx, job, s.config.RetryDelay)
}

// requeueAfter resubmits job once delay has passed, unless the scheduler stops first.
func (s *Scheduler) requeueAfter(ctx context.Context, job *Job, delay time.Duration) {
	s.retries.Add(1)
	go func() {
		defer s.retries.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			job.Fail("scheduler stopped before retry")
			s.finish(job)
		case <-timer.C:
			if err := s.SubmitJob(job); err != nil {
				s.logger.Warn("Failed to re-queue job for retry",
					zap.String("job_id", job.ID.String()),
					zap.Error(err),
				)
				job.Fail(err.Error())
				s.finish(job)
			}
		}
	}()
}

func (s *Scheduler) finish(job *Job) {
	s.release(job)
	if s.onDone != nil {
		s.onDone(*job)
	}
}
