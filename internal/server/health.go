package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teemow/inboxagent/internal/state"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusPending      = "pending"
	healthStatusFailing      = "last cycle aborted"
)

// HealthChecker serves the Kubernetes probes of the agent daemon.
type HealthChecker struct {
	ready         atomic.Bool
	serverContext *ServerContext
	startTime     time.Time
}

// NewHealthChecker creates a HealthChecker that starts out ready. sc may be
// nil, in which case only the ready flag is checked.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady flips the ready flag, e.g. to drain before shutdown.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns the ready flag.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse adds cycle history and context counters.
type DetailedHealthResponse struct {
	Status    string       `json:"status"`
	Uptime    string       `json:"uptime"`
	Cycles    int          `json:"cycles"`
	LastCycle *CycleStatus `json:"last_cycle,omitempty"`
	Context   *state.Stats `json:"context,omitempty"`
}

// checks evaluates readiness. status is the first failing check, or ok.
func (h *HealthChecker) checks() (checks map[string]string, status string) {
	checks = map[string]string{
		"ready":    healthStatusOK,
		"shutdown": healthStatusOK,
		"cycle":    healthStatusOK,
	}
	status = healthStatusOK
	fail := func(name, result string) {
		checks[name] = result
		if status == healthStatusOK {
			status = result
		}
	}

	if !h.ready.Load() {
		fail("ready", healthStatusNotReady)
	}
	sc := h.serverContext
	if sc == nil {
		return checks, status
	}
	if sc.IsShutdown() {
		fail("shutdown", healthStatusShuttingDown)
	}
	// An aborted cycle means the store or its persistence is failing.
	switch last, ok := sc.LastCycle(); {
	case !ok:
		checks["cycle"] = healthStatusPending
	case last.Aborted():
		fail("cycle", healthStatusFailing)
	}
	return checks, status
}

func writeHealth(w http.ResponseWriter, healthy bool, body any) {
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

// LivenessHandler serves /healthz. The process is alive as long as it can
// answer.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, true, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler serves /readyz.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks, status := h.checks()
		healthy := status == healthStatusOK
		response := HealthResponse{Status: healthStatusOK, Checks: checks}
		if !healthy {
			response.Status = healthStatusNotReady
		}
		writeHealth(w, healthy, response)
	})
}

// DetailedHealthHandler serves /healthz/detailed.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, status := h.checks()
		response := DetailedHealthResponse{
			Status: status,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}
		if sc := h.serverContext; sc != nil {
			response.Cycles = sc.Cycles()
			if last, ok := sc.LastCycle(); ok {
				response.LastCycle = &last
			}
			if sc.App() != nil && sc.App().Store != nil {
				stats := sc.App().Store.Stats()
				response.Context = &stats
			}
		}
		writeHealth(w, status == healthStatusOK, response)
	})
}

// RegisterHealthEndpoints registers the probe endpoints on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}
