package ingest

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
		Jitter:      0,
	}
}

func TestWithRetryTransientEventuallySucceeds(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryExhausted(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), fastRetry(3), func() error {
		calls++
		return errors.New("timeout")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
}

func TestWithRetryPermanentStopsImmediately(t *testing.T) {
	calls := 0
	sentinel := errors.New("bad request")
	err := withRetry(context.Background(), fastRetry(3), func() error {
		calls++
		return Permanent(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestWithRetryContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := fastRetry(5)
	cfg.BackoffBase = time.Hour // the cancel must win the wait
	cfg.BackoffMax = time.Hour

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := withRetry(ctx, cfg, func() error {
		calls++
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithRetryHonoursRetryAfter(t *testing.T) {
	start := time.Now()
	calls := 0
	err := withRetry(context.Background(), fastRetry(2), func() error {
		calls++
		if calls == 1 {
			return &RateLimitedError{RetryAfter: 50 * time.Millisecond}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestClassifyStatus(t *testing.T) {
	mk := func(code int, retryAfter string) *http.Response {
		h := http.Header{}
		if retryAfter != "" {
			h.Set("Retry-After", retryAfter)
		}
		return &http.Response{StatusCode: code, Header: h}
	}

	assert.NoError(t, classifyStatus(mk(200, "")))

	// 5xx is transient: not wrapped as permanent.
	err := classifyStatus(mk(503, ""))
	assert.Error(t, err)
	var perm *PermanentError
	assert.False(t, errors.As(err, &perm))

	// 4xx (except 429) is permanent.
	err = classifyStatus(mk(404, ""))
	assert.True(t, errors.As(err, &perm))
	err = classifyStatus(mk(401, ""))
	assert.True(t, errors.As(err, &perm))

	// 429 carries the Retry-After hint.
	err = classifyStatus(mk(429, "7"))
	var rl *RateLimitedError
	assert.True(t, errors.As(err, &rl))
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 7*time.Second, parseRetryAfter("7"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("nonsense"))
	// HTTP-date in the past clamps to zero.
	assert.Equal(t, time.Duration(0), parseRetryAfter("Mon, 02 Jan 2006 15:04:05 GMT"))
}
