package transport

import (
	"context"
	"time"

	"voicebridge/core"
)

// sleepFn is swapped out in tests to observe backoff delays.
var sleepFn = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WithRetry runs op up to maxAttempts times with pure exponential backoff:
// the wait before attempt n+1 is baseDelay * 2^(n-1), no jitter. An error
// that is not retryable under the core taxonomy stops the loop immediately,
// and the final error always propagates unmodified. Each attempt is expected
// to acquire its own queue slot and deadline; WithRetry holds nothing
// between attempts.
func WithRetry[T any](ctx context.Context, logger *core.Logger, op func(attempt int) (T, error), maxAttempts int, baseDelay time.Duration) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = core.GetLogger()
	}

	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := op(attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !core.Retryable(err) || attempt == maxAttempts {
			return zero, lastErr
		}

		logger.Debug("retrying after failure", "attempt", attempt, "delay", delay, "error", err)
		if sleepErr := sleepFn(ctx, delay); sleepErr != nil {
			return zero, lastErr
		}
		delay *= 2
	}
	return zero, lastErr
}
