// Package health exposes liveness and readiness probes over HTTP.
//
// Probes run in background goroutines on a fixed interval. A probe flips
// state only after a streak of identical outcomes (3 failures to go down,
// 1 success to come back), so a single slow round-trip does not take the
// service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Probe reports nil when the observed component works.
type Probe func(ctx context.Context) error

const (
	downAfter = 3
	upAfter   = 1
)

// probeState tracks one registered probe.
//
// streak is positive for consecutive successes, negative for consecutive
// failures, and is touched only by the single watch goroutine. up and
// lastErr are shared with the HTTP handlers and use atomics.
type probeState struct {
	name    string
	timeout time.Duration
	probe   Probe

	up      atomic.Bool
	lastErr atomic.Pointer[error]
	streak  int
}

func newProbeState(name string, timeout time.Duration, p Probe) *probeState {
	st := &probeState{name: name, timeout: timeout, probe: p}
	st.up.Store(true)
	return st
}

// observe runs the probe once and folds the outcome into the streak.
func (st *probeState) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, st.timeout)
	defer cancel()

	err := st.probe(ctx)
	st.lastErr.Store(&err)

	if err != nil {
		if st.streak > 0 {
			st.streak = 0
		}
		st.streak--
		if st.streak <= -downAfter {
			st.up.Store(false)
		}
		return
	}

	if st.streak < 0 {
		st.streak = 0
	}
	st.streak++
	if st.streak >= upAfter {
		st.up.Store(true)
	}
}

func (st *probeState) failure() (string, bool) {
	if st.up.Load() {
		return "", false
	}
	if p := st.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error(), true
	}
	return "probe is down", true
}

// Registry collects the service's probes and serves the probe endpoints.
// The zero state is not ready; call SetReady(true) once startup finishes.
type Registry struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probeState
	readiness []*probeState
	cancel    context.CancelFunc
}

// NewRegistry creates an empty probe registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Liveness registers a probe for the live endpoint: is this process worth
// keeping around. Register before Watch.
func (r *Registry) Liveness(name string, timeout time.Duration, p Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.liveness = append(r.liveness, newProbeState(name, timeout, p))
}

// Readiness registers a probe for the ready endpoint: can this process take
// traffic right now. Register before Watch.
func (r *Registry) Readiness(name string, timeout time.Duration, p Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readiness = append(r.readiness, newProbeState(name, timeout, p))
}

// Watch starts one goroutine per registered probe, each observing on the
// given interval until Stop or context cancellation.
func (r *Registry) Watch(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.cancel = cancel
	probes := make([]*probeState, 0, len(r.liveness)+len(r.readiness))
	probes = append(probes, r.liveness...)
	probes = append(probes, r.readiness...)
	r.mu.Unlock()

	for _, st := range probes {
		go watchProbe(ctx, st, interval)
	}
}

func watchProbe(ctx context.Context, st *probeState, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	st.observe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.observe(ctx)
		}
	}
}

// Stop cancels the watch goroutines. Safe to call more than once.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// SetReady flips the manual readiness gate: true once startup finishes,
// false at the start of graceful shutdown to drain traffic.
func (r *Registry) SetReady(ready bool) {
	r.ready.Store(ready)
}

// Ready reports whether the manual gate is open and every readiness probe
// is up.
func (r *Registry) Ready() bool {
	if !r.ready.Load() {
		return false
	}

	r.mu.RLock()
	probes := r.readiness
	r.mu.RUnlock()

	for _, st := range probes {
		if !st.up.Load() {
			return false
		}
	}
	return true
}

type probeResponse struct {
	Status string            `json:"status"`
	Failed map[string]string `json:"failed,omitempty"`
}

// HandleLive serves the liveness endpoint: 200 while every liveness probe
// is up, 503 with the failing probes otherwise.
func (r *Registry) HandleLive(w http.ResponseWriter, _ *http.Request) {
	r.mu.RLock()
	probes := append([]*probeState(nil), r.liveness...)
	r.mu.RUnlock()

	writeProbeResponse(w, collectFailed(probes))
}

// HandleReady serves the readiness endpoint: 200 only when the manual gate
// is open and every readiness probe is up.
func (r *Registry) HandleReady(w http.ResponseWriter, _ *http.Request) {
	r.mu.RLock()
	probes := append([]*probeState(nil), r.readiness...)
	r.mu.RUnlock()

	failed := collectFailed(probes)
	if !r.ready.Load() {
		failed["_gate"] = "service is not ready"
	}
	writeProbeResponse(w, failed)
}

func collectFailed(probes []*probeState) map[string]string {
	failed := make(map[string]string)
	for _, st := range probes {
		if msg, down := st.failure(); down {
			failed[st.name] = msg
		}
	}
	return failed
}

func writeProbeResponse(w http.ResponseWriter, failed map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := probeResponse{Status: "ok"}
	status := http.StatusOK
	if len(failed) > 0 {
		resp.Status = "down"
		resp.Failed = failed
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
