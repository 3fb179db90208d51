// ABOUTME: Retry executor with fixed or exponential backoff
// ABOUTME: Wraps one fallible operation with a bounded attempt budget
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Default retry configuration values
const (
	DefaultTimes    = 3
	DefaultInterval = time.Second
	DefaultBackoff  = true
)

// ErrRetryExhausted matches every *ExhaustedError.
var ErrRetryExhausted = errors.New("retry exhausted")

// Config holds retry behavior.
type Config struct {
	Times    int           // Total attempts, at least 1
	Interval time.Duration // Base delay between attempts
	Backoff  bool          // Double the delay after every failure
}

// DefaultConfig returns {3, 1s, backoff}.
func DefaultConfig() Config {
	return Config{
		Times:    DefaultTimes,
		Interval: DefaultInterval,
		Backoff:  DefaultBackoff,
	}
}

// Normalize clamps Times to >= 1 and Interval to >= 0.
func (c Config) Normalize() Config {
	if c.Times < 1 {
		c.Times = 1
	}
	if c.Interval < 0 {
		c.Interval = 0
	}
	return c
}

// ExhaustedError wraps the last failure once the budget is spent.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Is reports ErrRetryExhausted as a match.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// OnRetry is called before each wait with the 1-based failure count.
type OnRetry func(attempt int, err error)

// Strategy runs one retry sequence at a time. Concurrent sequences need their
// own Strategy.
type Strategy struct {
	config  Config
	attempt int
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a Strategy from a normalized copy of config.
func New(config Config) *Strategy {
	return &Strategy{
		config: config.Normalize(),
		sleep:  sleepContext,
	}
}

// Config returns the normalized configuration.
func (s *Strategy) Config() Config {
	return s.config
}

// Attempt returns the number of failures in the current sequence.
func (s *Strategy) Attempt() int {
	return s.attempt
}

// Reset clears the attempt counter.
func (s *Strategy) Reset() {
	s.attempt = 0
}

// Delay returns the wait before the next attempt after the given failure.
func (s *Strategy) Delay(attempt int) time.Duration {
	if !s.config.Backoff {
		return s.config.Interval
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(s.config.Interval) * math.Pow(2, float64(attempt-1))
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Do runs op until it succeeds or the budget is spent.
func (s *Strategy) Do(ctx context.Context, op func(ctx context.Context) error, onRetry OnRetry) error {
	_, err := Execute(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, onRetry)
	return err
}

// Execute runs op with s and returns its first successful result.
func Execute[T any](ctx context.Context, s *Strategy, op func(ctx context.Context) (T, error), onRetry OnRetry) (T, error) {
	s.attempt = 0

	for {
		result, err := op(ctx)
		if err == nil {
			s.attempt = 0
			return result, nil
		}

		s.attempt++

		if s.attempt >= s.config.Times {
			var zero T
			return zero, &ExhaustedError{Attempts: s.attempt, Err: err}
		}

		if onRetry != nil {
			onRetry(s.attempt, err)
		}

		if werr := s.sleep(ctx, s.Delay(s.attempt)); werr != nil {
			var zero T
			return zero, werr
		}
	}
}

// sleepContext blocks for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
