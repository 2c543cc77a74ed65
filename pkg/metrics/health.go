package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// criticalComponents must all be registered and healthy before the
// process reports ready.
var criticalComponents = []string{"store", "api"}

type componentState struct {
	healthy bool
	message string
	updated time.Time
}

type healthTracker struct {
	mu      sync.RWMutex
	started time.Time
	version string
	states  map[string]componentState
}

var tracker = &healthTracker{
	started: time.Now(),
	states:  make(map[string]componentState),
}

// SetVersion sets the version string reported on the health endpoints.
func SetVersion(v string) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.version = v
}

// RegisterComponent records the health of a named component. Calling it
// again for the same name replaces the previous state.
func RegisterComponent(name string, healthy bool, message string) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.states[name] = componentState{
		healthy: healthy,
		message: message,
		updated: time.Now(),
	}
}

// HealthReport is the body served on the health endpoints.
type HealthReport struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Uptime     string            `json:"uptime"`
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
}

// Health reports overall process health: unhealthy if any registered
// component is unhealthy.
func Health() HealthReport {
	tracker.mu.RLock()
	defer tracker.mu.RUnlock()

	report := tracker.report("healthy")
	for name, state := range tracker.states {
		if state.healthy {
			report.Components[name] = "healthy"
			continue
		}
		report.Status = "unhealthy"
		report.Components[name] = "unhealthy: " + state.message
	}
	return report
}

// Readiness reports whether the critical components have come up.
func Readiness() HealthReport {
	tracker.mu.RLock()
	defer tracker.mu.RUnlock()

	report := tracker.report("ready")
	for _, name := range criticalComponents {
		state, ok := tracker.states[name]
		switch {
		case !ok:
			report.Status = "not_ready"
			report.Message = "waiting for " + name + " initialization"
			report.Components[name] = "not registered"
		case !state.healthy:
			report.Status = "not_ready"
			report.Message = "waiting for " + name
			report.Components[name] = "not ready: " + state.message
		default:
			report.Components[name] = "ready"
		}
	}
	return report
}

// report builds a base snapshot. Caller holds at least a read lock.
func (t *healthTracker) report(status string) HealthReport {
	return HealthReport{
		Status:     status,
		Timestamp:  time.Now(),
		Uptime:     time.Since(t.started).String(),
		Version:    t.version,
		Components: make(map[string]string),
	}
}

func serveReport(w http.ResponseWriter, report HealthReport, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(report)
}

// HealthHandler serves overall health, 503 when unhealthy.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := Health()
		serveReport(w, report, report.Status == "healthy")
	}
}

// ReadyHandler serves readiness, 503 until critical components are up.
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := Readiness()
		serveReport(w, report, report.Status == "ready")
	}
}

// LivenessHandler answers 200 whenever the process can serve requests.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(tracker.started).String(),
		})
	}
}
