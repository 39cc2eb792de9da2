// Package health serves liveness and readiness probes.
package health

import (
	"net/http"
	"sync"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Readiness tracks whether the service can take calculation requests: at
// least one engine is registered and the reference engine resolves.
type Readiness struct {
	mu     sync.RWMutex
	ready  bool
	reason string
}

// NewReadiness starts not ready.
func NewReadiness() *Readiness {
	return &Readiness{reason: "starting"}
}

// SetReady marks the service ready.
func (r *Readiness) SetReady() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready, r.reason = true, ""
}

// SetNotReady marks the service not ready with a reason shown to probes.
func (r *Readiness) SetNotReady(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready, r.reason = false, reason
}

// Ready reports the current state.
func (r *Readiness) Ready() (bool, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready, r.reason
}

// Readyz returns 200 "ready\n" when ready and 503 with the reason otherwise.
func (r *Readiness) Readyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	ready, reason := r.Ready()
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("not ready: " + reason + "\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}
