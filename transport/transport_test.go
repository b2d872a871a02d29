package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicebridge/core"
)

func TestCallSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tr := New(core.NewNopLogger())
	resp, err := tr.Call(context.Background(), srv.URL, Options{Body: []byte(`{}`)}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte(`{"ok":true}`), resp.Body)
	assert.Equal(t, 0, tr.ActiveCount(), "call must unregister on success")
}

func TestCallMethodDefaultsToGETWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
	}))
	defer srv.Close()

	tr := New(core.NewNopLogger())
	_, err := tr.Call(context.Background(), srv.URL, Options{}, time.Second)
	require.NoError(t, err)
}

func TestCallNonTwoHundredIsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := New(core.NewNopLogger())
	_, err := tr.Call(context.Background(), srv.URL, Options{}, time.Second)

	var httpErr *core.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "boom")
	assert.True(t, core.Retryable(err))
	assert.Equal(t, 0, tr.ActiveCount(), "call must unregister on HTTP failure")
}

func TestCallConnectionFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	tr := New(core.NewNopLogger())
	_, err := tr.Call(context.Background(), srv.URL, Options{}, time.Second)

	var netErr *core.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.True(t, core.Retryable(err))
	assert.Equal(t, 0, tr.ActiveCount())
}

func TestCallDeadlineIsTimeoutError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tr := New(core.NewNopLogger())
	_, err := tr.Call(context.Background(), srv.URL, Options{}, 30*time.Millisecond)

	var toErr *core.TimeoutError
	require.True(t, errors.As(err, &toErr))
	assert.False(t, toErr.Cancelled)
	assert.True(t, core.Retryable(err), "a plain deadline expiry is retryable")
	assert.Equal(t, 0, tr.ActiveCount(), "call must unregister on timeout")
}

func TestCancelAllAbortsInFlightCalls(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tr := New(core.NewNopLogger())
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.Call(context.Background(), srv.URL, Options{}, time.Minute)
			errs <- err
		}()
	}
	<-started
	<-started
	require.Equal(t, 2, tr.ActiveCount())

	tr.CancelAll()
	wg.Wait()
	close(errs)

	for err := range errs {
		var toErr *core.TimeoutError
		require.True(t, errors.As(err, &toErr))
		assert.True(t, toErr.Cancelled, "bulk cancellation must be distinguishable from deadline expiry")
		assert.False(t, core.Retryable(err), "a cancelled call must not be retried")
	}
	assert.Equal(t, 0, tr.ActiveCount(), "registry must be cleared after CancelAll")
}

func TestSilentOptionSuppressesFailureLogging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var logged []string
	logger := core.NewLogger(func(level, msg string, attrs map[string]interface{}) {
		logged = append(logged, msg)
	})

	tr := New(logger)
	_, err := tr.Call(context.Background(), srv.URL, Options{Silent: true}, time.Second)
	require.Error(t, err)
	assert.Empty(t, logged)

	_, err = tr.Call(context.Background(), srv.URL, Options{}, time.Second)
	require.Error(t, err)
	assert.NotEmpty(t, logged)
}
