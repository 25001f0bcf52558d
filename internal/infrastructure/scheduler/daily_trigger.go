package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/famcoin/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// MemberProvider lists the members due a daily distribution
type MemberProvider interface {
	Members(ctx context.Context) ([]Member, error)
}

// StaticMembers is a fixed member list, usually read from configuration
type StaticMembers []Member

// Members returns the list
func (m StaticMembers) Members(context.Context) ([]Member, error) {
	return m, nil
}

// DailyTriggerConfig holds configuration for the daily trigger
type DailyTriggerConfig struct {
	// Hour and Minute of the wall clock (in Location) after which the day's run fires
	Hour     int
	Minute   int
	Location *time.Location

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration
}

// DefaultDailyTriggerConfig returns default daily trigger configuration
func DefaultDailyTriggerConfig() DailyTriggerConfig {
	return DailyTriggerConfig{
		Hour:          0,
		Minute:        5,
		Location:      time.UTC,
		CheckInterval: time.Minute,
	}
}

// ParseDailyTime parses "HH:MM" in 24h format
func ParseDailyTime(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w %q: want HH:MM", ErrInvalidSchedule, s)
	}
	if hour, err = strconv.Atoi(h); err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w %q: hour must be 0-23", ErrInvalidSchedule, s)
	}
	if minute, err = strconv.Atoi(m); err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w %q: minute must be 0-59", ErrInvalidSchedule, s)
	}
	return hour, minute, nil
}

// DailyTrigger submits one distribution job per member once a day
type DailyTrigger struct {
	config    DailyTriggerConfig
	scheduler *Scheduler
	members   MemberProvider
	logger    *zap.Logger
	clock     shared.Clock

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string // Track which date we last ran for
}

// NewDailyTrigger creates a new daily trigger
func NewDailyTrigger(
	config DailyTriggerConfig,
	scheduler *Scheduler,
	members MemberProvider,
	logger *zap.Logger,
	clock shared.Clock,
) *DailyTrigger {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	return &DailyTrigger{
		config:    config,
		scheduler: scheduler,
		members:   members,
		logger:    logger,
		clock:     clock,
	}
}

// Start starts the daily trigger. A run due today fires on the first check.
func (c *DailyTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Daily trigger started",
		zap.Int("hour", c.config.Hour),
		zap.Int("minute", c.config.Minute),
		zap.String("location", c.config.Location.String()),
		zap.Duration("check_interval", c.config.CheckInterval),
	)
	return nil
}

// Stop stops the daily trigger
func (c *DailyTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Daily trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop checks periodically if it's time to run
func (c *DailyTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	c.checkAndTrigger(ctx)

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger(ctx)
		}
	}
}

// checkAndTrigger fires at most once per date, at or after the configured time.
// It reports whether a run was triggered.
func (c *DailyTrigger) checkAndTrigger(ctx context.Context) bool {
	now := c.clock().In(c.config.Location)
	currentDate := now.Format("2006-01-02")

	c.mu.Lock()
	if c.lastRunDate == currentDate {
		c.mu.Unlock()
		return false
	}
	due := time.Date(now.Year(), now.Month(), now.Day(), c.config.Hour, c.config.Minute, 0, 0, c.config.Location)
	if now.Before(due) {
		c.mu.Unlock()
		return false
	}
	c.lastRunDate = currentDate
	c.mu.Unlock()

	c.logger.Info("Triggering daily distribution", zap.String("date", currentDate))
	c.trigger(ctx)
	return true
}

// trigger submits a job for every member
func (c *DailyTrigger) trigger(ctx context.Context) {
	members, err := c.members.Members(ctx)
	if err != nil {
		c.logger.Error("Failed to list members for daily distribution", zap.Error(err))
		return
	}

	c.logger.Info("Scheduling daily distribution", zap.Int("member_count", len(members)))

	for _, m := range members {
		if err := c.scheduler.SubmitJob(NewJob(m, c.scheduler.config.RetryAttempts)); err != nil {
			c.logger.Error("Failed to schedule daily distribution",
				zap.String("family_id", m.FamilyID),
				zap.String("user_id", m.UserID),
				zap.Error(err),
			)
		}
	}
}
