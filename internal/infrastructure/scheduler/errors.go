package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when trying to submit a job to a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrJobQueueFull is returned when the job queue is full
	ErrJobQueueFull = errors.New("job queue is full")

	// ErrInvalidMember is returned for a member string that cannot be parsed
	ErrInvalidMember = errors.New("invalid member")

	// ErrInvalidSchedule is returned for a daily schedule outside 00:00-23:59
	ErrInvalidSchedule = errors.New("invalid schedule")
)
