// Package transport issues single HTTP calls with a per-call deadline and a
// cancellation handle, normalizing connection failures, timeouts, and
// non-2xx statuses into the core error taxonomy. Every in-flight call is
// tracked in a registry so the whole set can be cancelled at once.
package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicebridge/core"
)

// Options shape a single call. Body is sent as-is; ContentType defaults to
// application/json when a body is present.
type Options struct {
	Method      string
	Body        []byte
	ContentType string
	Header      map[string]string
	// Silent suppresses failure logging. Used for liveness probes, where
	// failure is routine and not noteworthy.
	Silent bool
}

// Response is the raw outcome of a successful (2xx) call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

const maxErrorBodyBytes = 2048

// Transport performs HTTP calls. The zero value is not usable; construct
// with New.
type Transport struct {
	client *http.Client
	logger *core.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// New creates a Transport. The underlying client carries no global timeout;
// deadlines are per call.
func New(logger *core.Logger) *Transport {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Transport{
		client: &http.Client{},
		logger: logger.With(map[string]interface{}{"component": "transport"}),
		active: make(map[string]context.CancelFunc),
	}
}

// Call performs one HTTP request against url with the given deadline. The
// call is registered for bulk cancellation for its whole lifetime and is
// unregistered on every exit path. Errors are always one of the core
// taxonomy types.
func (t *Transport) Call(ctx context.Context, url string, opts Options, deadline time.Duration) (*Response, error) {
	method := opts.Method
	if method == "" {
		if len(opts.Body) > 0 {
			method = http.MethodPost
		} else {
			method = http.MethodGet
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, deadline)
	id := uuid.NewString()
	t.register(id, cancel)
	defer t.unregister(id)

	req, err := http.NewRequestWithContext(callCtx, method, url, bytes.NewReader(opts.Body))
	if err != nil {
		return nil, &core.NetworkError{URL: url, Err: err}
	}
	if len(opts.Body) > 0 {
		ct := opts.ContentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.Set("Content-Type", ct)
	}
	for k, v := range opts.Header {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, t.classify(url, opts, deadline, ctx, callCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, t.classify(url, opts, deadline, ctx, callCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := body
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		httpErr := &core.HTTPError{URL: url, StatusCode: resp.StatusCode, Body: string(snippet)}
		if !opts.Silent {
			t.logger.Warn("call failed", "url", url, "status", resp.StatusCode)
		}
		return nil, httpErr
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// CancelAll aborts every registered in-flight call and clears the registry.
// Aborted calls surface to their callers as cancelled TimeoutErrors.
func (t *Transport) CancelAll() {
	t.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(t.active))
	for id, cancel := range t.active {
		cancels = append(cancels, cancel)
		delete(t.active, id)
	}
	t.mu.Unlock()

	if len(cancels) > 0 {
		t.logger.Info("cancelling in-flight calls", "count", len(cancels))
	}
	for _, cancel := range cancels {
		cancel()
	}
}

// ActiveCount returns the number of registered in-flight calls.
func (t *Transport) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

func (t *Transport) register(id string, cancel context.CancelFunc) {
	t.mu.Lock()
	t.active[id] = cancel
	t.mu.Unlock()
}

func (t *Transport) unregister(id string) {
	t.mu.Lock()
	cancel, ok := t.active[id]
	delete(t.active, id)
	t.mu.Unlock()
	if ok {
		// Release the timer tied to the call context.
		cancel()
	}
}

// classify maps a low-level request error onto the taxonomy: deadline expiry
// and explicit cancellation become TimeoutError, anything else NetworkError.
func (t *Transport) classify(url string, opts Options, deadline time.Duration, parent, callCtx context.Context, err error) error {
	var out error
	switch {
	case errors.Is(callCtx.Err(), context.Canceled) && parent.Err() == nil:
		// The call context died while the caller's context is still live:
		// this was a CancelAll (or unregister race), not a deadline.
		out = &core.TimeoutError{URL: url, Deadline: deadline, Cancelled: true}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		out = &core.TimeoutError{URL: url, Deadline: deadline}
	case errors.Is(err, context.Canceled):
		out = &core.TimeoutError{URL: url, Deadline: deadline, Cancelled: true}
	default:
		out = &core.NetworkError{URL: url, Err: err}
	}
	if !opts.Silent {
		t.logger.Warn("call failed", "url", url, "error", out)
	}
	return out
}
