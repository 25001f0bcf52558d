// Package scheduler runs daily coin distribution for a set of family members
// on a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/famcoin/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusSkipped JobStatus = "SKIPPED" // already distributed for the day
	JobStatusFailed  JobStatus = "FAILED"
)

// Member is one user whose daily coins are distributed on schedule
type Member struct {
	FamilyID string `json:"familyId"`
	UserID   string `json:"userId"`
	Timezone string `json:"timezone"`
}

// ParseMember parses "family:user" or "family:user:Area/City"
func ParseMember(s string) (Member, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Member{}, fmt.Errorf("%w %q: want family:user[:timezone]", ErrInvalidMember, s)
	}
	m := Member{FamilyID: parts[0], UserID: parts[1], Timezone: "UTC"}
	if len(parts) == 3 && parts[2] != "" {
		m.Timezone = parts[2]
	}
	return m, nil
}

func (m Member) String() string {
	return m.FamilyID + ":" + m.UserID
}

// Job is one distribution run for one member
type Job struct {
	ID          uuid.UUID  `json:"id"`
	Member      Member     `json:"member"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	RetryCount  int        `json:"retryCount"`
	MaxRetries  int        `json:"-"`
	NextRetryAt *time.Time `json:"-"`
	permanent   bool
}

// NewJob creates a new job instance
func NewJob(member Member, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Member:     member,
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

// Skip marks the job as a no-op because the day was already distributed
func (j *Job) Skip() {
	now := time.Now()
	j.Status = JobStatusSkipped
	j.CompletedAt = &now
}

// Fail marks the job as failed. Permanent failures are never retried.
func (j *Job) Fail(err error) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err.Error()
	j.permanent = shared.IsBusinessError(err)
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && !j.permanent && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry
func (j *Job) ScheduleRetry(delay time.Duration) {
	j.RetryCount++
	j.Status = JobStatusPending
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

// JobExecutor runs the distribution of one job
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// ExecutorFunc adapts a function to JobExecutor
type ExecutorFunc func(ctx context.Context, job *Job) error

// Execute calls f
func (f ExecutorFunc) Execute(ctx context.Context, job *Job) error {
	return f(ctx, job)
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	MaxConcurrentJobs int
	QueueSize         int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrentJobs: 3,
		QueueSize:         100,
		JobTimeout:        time.Minute,
		RetryAttempts:     3,
		RetryDelay:        30 * time.Second,
	}
}

// Scheduler manages distribution jobs
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup // workers
	pending   sync.WaitGroup // submitted jobs not yet finished
	mu        sync.Mutex
	isRunning bool
	finished  []Job
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger) *Scheduler {
	defaults := DefaultSchedulerConfig()
	if config.MaxConcurrentJobs <= 0 {
		config.MaxConcurrentJobs = defaults.MaxConcurrentJobs
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = defaults.JobTimeout
	}
	if config.RetryAttempts < 0 {
		config.RetryAttempts = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *Job, config.QueueSize),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	s.isRunning = true
	ctx, s.cancel = context.WithCancel(ctx)

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Distribution scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)
	return nil
}

// Stop cancels running jobs and waits for the workers to exit.
// Jobs still queued are dropped.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Distribution scheduler stop timed out")
		return ctx.Err()
	}

	for {
		select {
		case job := <-s.jobs:
			s.logger.Warn("Dropping queued job", zap.String("job_id", job.ID.String()))
			s.pending.Done()
		default:
			s.logger.Info("Distribution scheduler stopped gracefully")
			return nil
		}
	}
}

// SubmitJob submits a job for execution
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	// counted before the send; a worker may receive and drop the job at once
	s.pending.Add(1)
	select {
	case s.jobs <- job:
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("member", job.Member.String()),
		)
		return nil
	default:
		s.pending.Done()
		return ErrJobQueueFull
	}
}

// ScheduleMembers submits one job per member. It stops at the first rejected submission.
func (s *Scheduler) ScheduleMembers(members []Member) error {
	for _, m := range members {
		if err := s.SubmitJob(NewJob(m, s.config.RetryAttempts)); err != nil {
			return fmt.Errorf("schedule %s: %w", m, err)
		}
	}
	return nil
}

// Wait blocks until every submitted job has finished or ctx is done
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finished returns a snapshot of the jobs that reached a final state, in completion order
func (s *Scheduler) Finished() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, len(s.finished))
	copy(out, s.finished)
	return out
}

// worker processes jobs from the queue
func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
			return
		case job := <-s.jobs:
			if ctx.Err() != nil {
				s.logger.Warn("Dropping queued job", zap.String("job_id", job.ID.String()))
				s.pending.Done()
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	job.Start()
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", job.ID.String()),
		zap.String("family_id", job.Member.FamilyID),
		zap.String("user_id", job.Member.UserID),
	)
	log.Debug("Processing job")

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	err := s.executor.Execute(jobCtx, job)
	cancel()

	switch {
	case err == nil:
		job.Complete()
		log.Info("Job completed successfully")
	case errors.Is(err, shared.ErrAlreadyExists):
		job.Skip()
		log.Debug("Job skipped, already distributed")
	default:
		job.Fail(err)
		if job.ShouldRetry() {
			job.ScheduleRetry(s.config.RetryDelay)
			log.Warn("Job failed, scheduled for retry",
				zap.Int("retry_count", job.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
				zap.Error(err),
			)
			s.requeueAfter(job, s.config.RetryDelay)
			return
		}
		log.Error("Job failed", zap.Int("retry_count", job.RetryCount), zap.Error(err))
	}
	s.finish(job)
}

// requeueAfter puts a retried job back on the queue once delay has passed.
// The job stays pending until it is requeued or dropped.
func (s *Scheduler) requeueAfter(job *Job, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		requeued := false
		if s.isRunning {
			select {
			case s.jobs <- job:
				requeued = true
			default:
			}
		}
		s.mu.Unlock()
		if requeued {
			return
		}
		s.logger.Warn("Failed to re-queue job for retry", zap.String("job_id", job.ID.String()))
		s.pending.Done()
	})
}

func (s *Scheduler) finish(job *Job) {
	s.mu.Lock()
	s.finished = append(s.finished, *job)
	s.mu.Unlock()
	s.pending.Done()
}
