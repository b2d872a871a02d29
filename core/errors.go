package core

import (
	"errors"
	"fmt"
	"time"
)

// NetworkError is a connection-level failure: the request never produced an
// HTTP response (DNS, refused connection, reset, broken pipe).
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError is raised when a call's deadline fires or the call is
// explicitly cancelled before completion. Cancelled distinguishes a bulk
// cancellation (shutdown) from an ordinary deadline expiry.
type TimeoutError struct {
	URL       string
	Deadline  time.Duration
	Cancelled bool
}

func (e *TimeoutError) Error() string {
	if e.Cancelled {
		return fmt.Sprintf("call to %s cancelled", e.URL)
	}
	return fmt.Sprintf("call to %s timed out after %s", e.URL, e.Deadline)
}

// HTTPError is a completed HTTP exchange with a non-2xx status. The body is
// kept (truncated) for diagnostics; it is never treated as a usable result.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d from %s", e.StatusCode, e.URL)
}

// InvalidResponseError marks a 2xx response whose payload fails a structural
// contract check (missing field, empty body). This is a broken contract, not
// a transient blip, so it is never retried.
type InvalidResponseError struct {
	URL    string
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("invalid response from %s: %s", e.URL, e.Reason)
}

// QueueTimeoutError is returned when a queued call waited longer than the
// staleness window for admission. It indicates systemic backlog and is not
// retried: replaying stale calls the instant a service recovers only makes
// the backlog worse.
type QueueTimeoutError struct {
	Waited time.Duration
}

func (e *QueueTimeoutError) Error() string {
	return fmt.Sprintf("request expired after waiting %s in queue", e.Waited.Round(time.Millisecond))
}

// Retryable reports whether err is worth another attempt. Network failures,
// timeouts, and non-2xx statuses are transient; contract violations and
// queue expiry are not.
func Retryable(err error) bool {
	var netErr *NetworkError
	var toErr *TimeoutError
	var httpErr *HTTPError
	switch {
	case errors.As(err, &netErr):
		return true
	case errors.As(err, &toErr):
		// A bulk-cancelled call must not be resurrected by the retry loop.
		return !toErr.Cancelled
	case errors.As(err, &httpErr):
		return true
	}
	return false
}
