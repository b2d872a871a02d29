// Package queue provides FIFO admission control: at most a fixed number of
// calls may be active at once across every logical service, and calls that
// wait longer than a staleness window are rejected instead of executed.
package queue

import (
	"context"
	"sync"
	"time"

	"voicebridge/core"
)

const (
	// DefaultCeiling is the system-wide cap on concurrently active calls.
	DefaultCeiling = 5
	// DefaultStaleness is how long a queued call may wait for admission
	// before it is rejected with a QueueTimeoutError.
	DefaultStaleness = 5 * time.Minute
)

type waiter struct {
	enqueuedAt time.Time
	ready      chan error // nil for admitted, QueueTimeoutError for expired
	cancelled  bool
}

// Queue admits calls under a concurrency ceiling. Waiting callers are
// served strictly in enqueue order.
type Queue struct {
	mu        sync.Mutex
	ceiling   int
	staleness time.Duration
	active    int
	waiting   []*waiter
	draining  bool
	logger    *core.Logger
	now       func() time.Time
}

// New creates a Queue with the given ceiling and staleness window.
// Non-positive arguments fall back to the defaults.
func New(ceiling int, staleness time.Duration, logger *core.Logger) *Queue {
	if ceiling < 1 {
		ceiling = DefaultCeiling
	}
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Queue{
		ceiling:   ceiling,
		staleness: staleness,
		logger:    logger.With(map[string]interface{}{"component": "queue"}),
		now:       time.Now,
	}
}

// Admit blocks until the caller may begin executing, then returns a release
// func that must be called exactly once when the call finishes (any exit
// path). It returns a QueueTimeoutError if the caller sat in the queue past
// the staleness window, or ctx.Err() if the context ends while waiting.
func (q *Queue) Admit(ctx context.Context) (release func(), err error) {
	q.mu.Lock()
	if q.active < q.ceiling && len(q.waiting) == 0 {
		q.active++
		q.mu.Unlock()
		return q.releaseOnce(), nil
	}

	w := &waiter{enqueuedAt: q.now(), ready: make(chan error, 1)}
	q.waiting = append(q.waiting, w)
	depth := len(q.waiting)
	q.mu.Unlock()

	q.logger.Debug("call queued", "depth", depth)

	select {
	case err := <-w.ready:
		if err != nil {
			return nil, err
		}
		return q.releaseOnce(), nil
	case <-ctx.Done():
		q.mu.Lock()
		w.cancelled = true
		q.mu.Unlock()
		// The drain loop may have admitted us in the same instant; if so,
		// hand the slot back so it is not leaked.
		select {
		case err := <-w.ready:
			if err == nil {
				q.release()
			}
		default:
		}
		return nil, ctx.Err()
	}
}

// Active returns the number of currently executing calls.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Waiting returns the number of calls still queued for admission.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

func (q *Queue) releaseOnce() func() {
	var once sync.Once
	return func() {
		once.Do(q.release)
	}
}

func (q *Queue) release() {
	q.mu.Lock()
	q.active--
	q.drainLocked()
	q.mu.Unlock()
}

// drainLocked pops waiters while slots are free. The draining flag makes
// the loop single-flight: a release that lands while another drain is mid
// sequence must not start a second pop/check/admit sequence on the same
// head of the queue. Must be called with q.mu held.
func (q *Queue) drainLocked() {
	if q.draining {
		return
	}
	q.draining = true
	defer func() { q.draining = false }()

	for q.active < q.ceiling && len(q.waiting) > 0 {
		w := q.waiting[0]
		q.waiting = q.waiting[1:]

		if w.cancelled {
			continue
		}
		if waited := q.now().Sub(w.enqueuedAt); waited > q.staleness {
			q.logger.Warn("rejecting stale queued call", "waited", waited.Round(time.Millisecond))
			w.ready <- &core.QueueTimeoutError{Waited: waited}
			continue
		}
		q.active++
		w.ready <- nil
	}
}
