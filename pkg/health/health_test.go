package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReady_GateClosed(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Ready())

	r.SetReady(true)
	assert.True(t, r.Ready())

	r.SetReady(false)
	assert.False(t, r.Ready())
}

func TestReady_ProbeDown(t *testing.T) {
	r := NewRegistry()
	r.Readiness("db", time.Second, func(_ context.Context) error {
		return errors.New("connection refused")
	})
	r.SetReady(true)

	// Probes start up; three consecutive failures take the probe down.
	assert.True(t, r.Ready())
	st := r.readiness[0]
	for range downAfter {
		st.observe(context.Background())
	}
	assert.False(t, r.Ready())
}

func TestProbe_RecoversAfterOneSuccess(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)

	st := newProbeState("flaky", time.Second, func(_ context.Context) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	})

	for range downAfter {
		st.observe(context.Background())
	}
	require.False(t, st.up.Load())

	fail.Store(false)
	st.observe(context.Background())
	assert.True(t, st.up.Load())
}

func TestProbe_SingleFailureDoesNotFlip(t *testing.T) {
	calls := 0
	st := newProbeState("blip", time.Second, func(_ context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})

	st.observe(context.Background())
	assert.True(t, st.up.Load())

	st.observe(context.Background())
	assert.True(t, st.up.Load())
}

func TestHandleLive(t *testing.T) {
	r := NewRegistry()
	r.Liveness("goroutines", time.Second, GoroutineCount(1_000_000))

	rec := httptest.NewRecorder()
	r.HandleLive(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleReady_NotReady(t *testing.T) {
	r := NewRegistry()

	rec := httptest.NewRecorder()
	r.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "service is not ready")
}

func TestHandleLive_ProbeDown(t *testing.T) {
	r := NewRegistry()
	r.Liveness("stuck", time.Second, func(_ context.Context) error {
		return errors.New("deadlock suspected")
	})

	st := r.liveness[0]
	for range downAfter {
		st.observe(context.Background())
	}

	rec := httptest.NewRecorder()
	r.HandleLive(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "deadlock suspected")
}

func TestWatch_RunsProbes(t *testing.T) {
	var calls atomic.Int32
	r := NewRegistry()
	r.Readiness("counter", time.Second, func(_ context.Context) error {
		calls.Add(1)
		return nil
	})

	r.Watch(context.Background(), 10*time.Millisecond)
	defer r.Stop()

	require.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestGoroutineCount(t *testing.T) {
	require.NoError(t, GoroutineCount(1_000_000)(context.Background()))
	require.Error(t, GoroutineCount(0)(context.Background()))
}
