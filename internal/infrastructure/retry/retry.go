// Package retry runs optimistic read-modify-commit operations with bounded exponential backoff.
//
// The delay before retry n (n = 1 for the first retry) is 2^n * BaseDelay, so the defaults
// (3 attempts, 100ms) wait 200ms then 400ms. Only write conflicts are retried unless the
// executor is configured with RetryOnAnyError.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/famcoin/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Policy decides which failures are retried
type Policy int

const (
	// RetryOnConflict retries only shared.ErrWriteConflict
	RetryOnConflict Policy = iota
	// RetryOnAnyError retries every failure except cancellation
	RetryOnAnyError
)

func (p Policy) String() string {
	switch p {
	case RetryOnConflict:
		return "conflict"
	case RetryOnAnyError:
		return "any"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps the configuration value ("conflict" or "any") to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "conflict":
		return RetryOnConflict, nil
	case "any":
		return RetryOnAnyError, nil
	default:
		return RetryOnConflict, fmt.Errorf("unknown retry policy %q", s)
	}
}

// Retryable reports whether err is retried under the policy
func (p Policy) Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, shared.ErrCancelled) {
		return false
	}
	if p == RetryOnAnyError {
		return true
	}
	return errors.Is(err, shared.ErrWriteConflict)
}

// Config holds executor settings. MaxAttempts counts the first attempt, so 4 means
// one attempt plus three retries.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Policy      Policy
}

// DefaultConfig returns one attempt plus three retries (waits of 200ms, 400ms, 800ms),
// retrying conflicts only. Four concurrent writers on one record all commit within it.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   100 * time.Millisecond,
		Policy:      RetryOnConflict,
	}
}

// DefaultMaxAttempts is the first attempt plus three retries
const DefaultMaxAttempts = 4

// Observer is told about every scheduled retry
type Observer func(attempt int, err error, delay time.Duration)

// Executor runs operations under a retry policy. It is safe for concurrent use.
type Executor struct {
	cfg      Config
	logger   *zap.Logger
	newTimer func() backoff.Timer
	observer Observer
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the logger used for retry diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithTimer replaces the timer used for backoff sleeps; newTimer is called once per Do
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(e *Executor) {
		e.newTimer = newTimer
	}
}

// WithObserver registers a callback invoked before each retry sleep
func WithObserver(observer Observer) Option {
	return func(e *Executor) {
		e.observer = observer
	}
}

// NewExecutor creates an executor. MaxAttempts below 1 is treated as 1.
func NewExecutor(cfg Config, opts ...Option) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	e := &Executor{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the executor settings
func (e *Executor) Config() Config {
	return e.cfg
}

func (e *Executor) backOff(ctx context.Context) backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     2 * e.cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(math.MaxInt64),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	return backoff.WithMaxRetries(backoff.WithContext(exp, ctx), uint64(e.cfg.MaxAttempts-1))
}

// Do runs op until it succeeds, fails with a non-retryable error, the context ends,
// or the attempts are used up.
//
// Non-retryable errors are returned unchanged. Cancellation yields an error matching
// shared.ErrCancelled and the context error. Exhaustion yields *shared.RetriesExhaustedError
// wrapping the last failure.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var (
		result    T
		attempts  int
		permanent bool
		cancelled error
	)

	operation := func() error {
		if err := ctx.Err(); err != nil {
			cancelled = err
			return backoff.Permanent(err)
		}
		attempts++
		value, err := op(ctx)
		if err == nil {
			result = value
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			cancelled = ctxErr
			return backoff.Permanent(err)
		}
		if !e.cfg.Policy.Retryable(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		e.logger.Debug("Retrying after failure",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", e.cfg.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if e.observer != nil {
			e.observer(attempts, err, delay)
		}
	}

	var timer backoff.Timer
	if e.newTimer != nil {
		timer = e.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, e.backOff(ctx), notify, timer)
	switch {
	case err == nil:
		return result, nil
	case cancelled != nil:
		return result, fmt.Errorf("%w: %w", shared.ErrCancelled, cancelled)
	case permanent:
		return result, err
	case ctx.Err() != nil:
		// context ended during a backoff sleep
		return result, fmt.Errorf("%w: %w", shared.ErrCancelled, ctx.Err())
	default:
		e.logger.Warn("Retries exhausted",
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return result, &shared.RetriesExhaustedError{Attempts: attempts, Err: err}
	}
}

// Run is Do for operations without a result
func Run(ctx context.Context, e *Executor, op func(ctx context.Context) error) error {
	_, err := Do(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
