package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/johnayoung/go-oilprice-trend/internal/config"
)

// Retrier executes operations under a retry policy.
// A policy with MaxAttempts <= 1 runs the operation exactly once.
type Retrier struct {
	policy config.RetryPolicyConfig
	logger *slog.Logger
}

// NewRetrier creates a new retrier for the given policy
func NewRetrier(policy config.RetryPolicyConfig, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{policy: policy, logger: logger}
}

// MaxAttempts returns the number of attempts the policy allows
func (r *Retrier) MaxAttempts() int {
	if r.policy.MaxAttempts < 1 {
		return 1
	}
	return r.policy.MaxAttempts
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// policy is exhausted. Use Permanent to stop early.
func (r *Retrier) Retry(ctx context.Context, operation string, fn func() error) error {
	attempts := 0
	maxAttempts := r.MaxAttempts()

	op := func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return err
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}

		r.logger.Warn("operation failed",
			"operation", operation,
			"attempt", attempts,
			"max_attempts", maxAttempts,
			"error", err.Error())
		return err
	}

	strategy := backoff.WithContext(r.createBackoffStrategy(), ctx)
	err := backoff.Retry(op, strategy)
	if err == nil {
		if attempts > 1 {
			r.logger.Debug("operation succeeded after retry",
				"operation", operation,
				"attempts", attempts)
		}
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	if attempts > 1 {
		return fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
	}
	return err
}

// createBackoffStrategy creates a backoff strategy based on configuration
func (r *Retrier) createBackoffStrategy() backoff.BackOff {
	initialDelay, err := time.ParseDuration(r.policy.InitialDelay)
	if err != nil || initialDelay <= 0 {
		initialDelay = 500 * time.Millisecond
	}
	maxDelay, err := time.ParseDuration(r.policy.MaxDelay)
	if err != nil || maxDelay < initialDelay {
		maxDelay = initialDelay
	}

	var strategy backoff.BackOff

	switch r.policy.BackoffStrategy {
	case "fixed":
		strategy = backoff.NewConstantBackOff(initialDelay)
	case "linear":
		strategy = &LinearBackoff{
			interval: initialDelay,
			max:      maxDelay,
		}
	case "exponential":
		fallthrough
	default:
		exponential := backoff.NewExponentialBackOff()
		exponential.InitialInterval = initialDelay
		exponential.MaxInterval = maxDelay
		exponential.MaxElapsedTime = 0
		if !r.policy.Jitter {
			exponential.RandomizationFactor = 0
		}
		exponential.Reset()
		strategy = exponential
	}

	return backoff.WithMaxRetries(strategy, uint64(r.MaxAttempts()-1))
}

// LinearBackoff implements a simple linear backoff strategy
type LinearBackoff struct {
	interval time.Duration
	max      time.Duration
	current  time.Duration
}

// NextBackOff returns the next backoff interval
func (lb *LinearBackoff) NextBackOff() time.Duration {
	if lb.current == 0 {
		lb.current = lb.interval
	} else {
		lb.current += lb.interval
	}

	if lb.current > lb.max {
		lb.current = lb.max
	}

	return lb.current
}

// Reset resets the backoff to its initial state
func (lb *LinearBackoff) Reset() {
	lb.current = 0
}

// RetryableError marks an error as safe to retry.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so the Retrier will try again.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Permanent wraps err so the Retrier stops immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsRetryable checks if an error is retryable.
// Explicitly marked errors and network failures qualify; context errors never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}

	return isNetworkError(err)
}

// isNetworkError checks if the error is network-related
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"no route to host",
		"host unreachable",
		"network unreachable",
		"eof",
	}

	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
