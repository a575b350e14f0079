// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0-1.0; 0.1 spreads each delay by +/-10%

	// OnRetry, when set, is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns 3 retries with 100ms initial delay, capped at 5s, doubling each time, with 10% jitter.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// LLMConfig is tuned for chat completion calls: fewer, longer waits.
func LLMConfig() *Config {
	return &Config{
		MaxRetries:   2,
		InitialDelay: time.Second,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// applyJitter returns delay +/- (delay * jitterFactor * random(-1 to +1)).
func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// run is the shared backoff loop. shouldRetry decides whether a failed attempt is retried.
func run[T any](ctx context.Context, cfg *Config, shouldRetry func(error) bool, fn func() (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var result T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return result, lastErr
			}
			return result, err
		}

		r, err := fn()
		if err == nil {
			return r, nil
		}
		result, lastErr = r, err

		if attempt == cfg.MaxRetries || !shouldRetry(err) {
			break
		}

		wait := applyJitter(delay, cfg.JitterFactor)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return result, lastErr
}

func always(error) bool { return true }

// Do executes fn with exponential backoff retry logic.
// Returns nil on success, or the last error after all retries are exhausted.
// Respects context cancellation during wait periods.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := run(ctx, cfg, always, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// DoWithResult executes fn and returns both result and error.
// Useful for constructors that dial a server (pgxpool, redis).
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return run(ctx, cfg, always, fn)
}

// DoIfRetryable only retries transient errors. Permanent errors (auth failures,
// bad requests) are returned immediately.
func DoIfRetryable(ctx context.Context, cfg *Config, fn func() error) error {
	_, err := run(ctx, cfg, IsRetryable, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// DoIfRetryableWithResult is DoIfRetryable for functions that return a value.
func DoIfRetryableWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	return run(ctx, cfg, IsRetryable, fn)
}

// RetryableError is an interface for errors that explicitly declare their retryability.
// LLM errors implement this interface.
type RetryableError interface {
	error
	IsRetryable() bool
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"timeout",
	"timed out",
	"temporary failure",
	"too many connections",
	"network is unreachable",
	"rate limit",
	"service unavailable",
	"too many requests",
}

// IsRetryable determines if an error is transient and worth retrying.
// An error in the chain implementing RetryableError decides for itself;
// otherwise known transient messages are matched.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
