package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetTracker(t *testing.T) {
	t.Helper()
	tracker.mu.Lock()
	tracker.states = make(map[string]componentState)
	tracker.mu.Unlock()
}

func TestHealthReflectsComponentState(t *testing.T) {
	resetTracker(t)

	RegisterComponent("store", true, "open")
	report := Health()
	assert.Equal(t, "healthy", report.Status)
	assert.Equal(t, "healthy", report.Components["store"])

	RegisterComponent("store", false, "db file locked")
	report = Health()
	assert.Equal(t, "unhealthy", report.Status)
	assert.Equal(t, "unhealthy: db file locked", report.Components["store"])

	// Re-registering replaces the previous state.
	RegisterComponent("store", true, "open")
	assert.Equal(t, "healthy", Health().Status)
}

func TestReadinessWaitsForCriticalComponents(t *testing.T) {
	resetTracker(t)

	report := Readiness()
	assert.Equal(t, "not_ready", report.Status)
	assert.Equal(t, "not registered", report.Components["store"])

	RegisterComponent("store", true, "open")
	report = Readiness()
	assert.Equal(t, "not_ready", report.Status)
	assert.Contains(t, report.Message, "api")

	RegisterComponent("api", true, "serving")
	report = Readiness()
	assert.Equal(t, "ready", report.Status)
	assert.Empty(t, report.Message)

	RegisterComponent("store", false, "db file locked")
	report = Readiness()
	assert.Equal(t, "not_ready", report.Status)
	assert.Equal(t, "not ready: db file locked", report.Components["store"])
}

func TestHealthHandlerStatusCodes(t *testing.T) {
	resetTracker(t)
	RegisterComponent("store", true, "open")

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	RegisterComponent("store", false, "db file locked")
	w = httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyHandlerStatusCodes(t *testing.T) {
	resetTracker(t)

	w := httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	RegisterComponent("store", true, "open")
	RegisterComponent("api", true, "serving")
	w = httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestLivenessHandlerAlwaysOK(t *testing.T) {
	resetTracker(t)

	w := httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/healthz/live", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}

func TestSetVersionAppearsInReports(t *testing.T) {
	resetTracker(t)
	SetVersion("1.2.3")

	assert.Equal(t, "1.2.3", Health().Version)
	assert.Equal(t, "1.2.3", Readiness().Version)
}
