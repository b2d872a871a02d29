package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebridge/core"
)

// captureSleeps replaces the backoff sleep with a recorder for the duration
// of one test.
func captureSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	orig := sleepFn
	sleepFn = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	t.Cleanup(func() { sleepFn = orig })
	return &delays
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	delays := captureSleeps(t)

	calls := 0
	result, err := WithRetry(context.Background(), core.NewNopLogger(), func(attempt int) (string, error) {
		calls++
		if calls <= 2 {
			return "", &core.NetworkError{URL: "http://x", Err: errors.New("refused")}
		}
		return "ok", nil
	}, 5, time.Second)

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestWithRetryExhaustionPropagatesLastError(t *testing.T) {
	delays := captureSleeps(t)

	final := &core.HTTPError{URL: "http://x", StatusCode: 503}
	calls := 0
	_, err := WithRetry(context.Background(), core.NewNopLogger(), func(attempt int) (int, error) {
		calls++
		return 0, final
	}, 3, 100*time.Millisecond)

	assert.Equal(t, 3, calls)
	assert.Same(t, final, err, "final error must propagate unmodified")
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *delays)
}

func TestWithRetryStopsOnNonRetryableError(t *testing.T) {
	delays := captureSleeps(t)

	bad := &core.InvalidResponseError{URL: "http://x", Reason: "missing content"}
	calls := 0
	_, err := WithRetry(context.Background(), core.NewNopLogger(), func(attempt int) (int, error) {
		calls++
		return 0, bad
	}, 3, time.Second)

	assert.Equal(t, 1, calls, "non-retryable error must not consume a retry")
	assert.Same(t, bad, err)
	assert.Empty(t, *delays)
}

func TestWithRetryStopsOnQueueTimeout(t *testing.T) {
	captureSleeps(t)

	calls := 0
	_, err := WithRetry(context.Background(), core.NewNopLogger(), func(attempt int) (int, error) {
		calls++
		return 0, &core.QueueTimeoutError{Waited: 6 * time.Minute}
	}, 3, time.Second)

	assert.Equal(t, 1, calls)
	var qte *core.QueueTimeoutError
	assert.True(t, errors.As(err, &qte))
}

func TestWithRetryContextCancelledDuringBackoff(t *testing.T) {
	orig := sleepFn
	sleepFn = func(ctx context.Context, d time.Duration) error { return context.Canceled }
	t.Cleanup(func() { sleepFn = orig })

	transient := &core.NetworkError{URL: "http://x", Err: errors.New("refused")}
	calls := 0
	_, err := WithRetry(context.Background(), core.NewNopLogger(), func(attempt int) (int, error) {
		calls++
		return 0, transient
	}, 3, time.Second)

	assert.Equal(t, 1, calls)
	assert.Same(t, transient, err, "the attempt's error wins over the sleep interruption")
}

func TestWithRetryAttemptNumbersArePassedThrough(t *testing.T) {
	captureSleeps(t)

	var seen []int
	_, _ = WithRetry(context.Background(), core.NewNopLogger(), func(attempt int) (int, error) {
		seen = append(seen, attempt)
		return 0, &core.HTTPError{URL: "http://x", StatusCode: 500}
	}, 3, time.Millisecond)

	assert.Equal(t, []int{1, 2, 3}, seen)
}
