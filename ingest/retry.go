package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry defaults; overridable through the environment (MAX_ATTEMPTS,
// BACKOFF_BASE, BACKOFF_MAX, JITTER).
const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffMax  = 30 * time.Second
	DefaultJitter      = 0.5
)

// RetryConfig tunes the transient-failure retry loop.
type RetryConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Jitter      float64
}

// DefaultRetryConfig returns the production retry knobs.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultMaxAttempts,
		BackoffBase: DefaultBackoffBase,
		BackoffMax:  DefaultBackoffMax,
		Jitter:      DefaultJitter,
	}
}

// PermanentError marks a failure that must not be retried: 4xx status
// (except 429), auth problems, validation and uniqueness violations.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// RateLimitedError is a 429 with an optional server-provided delay.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s)", e.RetryAfter)
}

// classifyStatus converts an HTTP status into a retryable or permanent
// error. 2xx maps to nil.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return fmt.Errorf("server error: status %d", resp.StatusCode)
	default:
		return Permanent(fmt.Errorf("request failed: status %d", resp.StatusCode))
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// withRetry runs op with exponential backoff and jitter. Permanent
// errors and context cancellation stop immediately; a rate-limit
// Retry-After extends the computed wait when longer.
func withRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BackoffBase
	bo.MaxInterval = cfg.BackoffMax
	bo.RandomizationFactor = cfg.Jitter
	bo.MaxElapsedTime = 0
	bo.Reset()

	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil {
			return nil
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		wait := bo.NextBackOff()
		if wait > cfg.BackoffMax {
			wait = cfg.BackoffMax
		}
		var rl *RateLimitedError
		if errors.As(err, &rl) && rl.RetryAfter > wait {
			wait = rl.RetryAfter
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
