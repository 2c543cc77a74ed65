package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Fleet metrics
	ComponentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shepherd_components_total",
			Help: "Total number of components by aggregated status",
		},
		[]string{"status"},
	)

	ConfigurationsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shepherd_configurations_total",
			Help: "Total number of configurations",
		},
	)

	SourcesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shepherd_sources_total",
			Help: "Total number of sources",
		},
	)

	SessionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shepherd_sessions_total",
			Help: "Total number of sessions by status",
		},
		[]string{"status"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_api_requests_total",
			Help: "Total number of API requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shepherd_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Batcher metrics
	BatcherCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shepherd_batcher_cycles_total",
			Help: "Total number of batcher sweep cycles",
		},
	)

	BatcherCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shepherd_batcher_cycle_duration_seconds",
			Help:    "Batcher sweep cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatcherSessionsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shepherd_batcher_sessions_created_total",
			Help: "Total number of sessions created by the batcher",
		},
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_events_total",
			Help: "Total number of state change events by type",
		},
		[]string{"type"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ComponentsTotal)
	prometheus.MustRegister(ConfigurationsTotal)
	prometheus.MustRegister(SourcesTotal)
	prometheus.MustRegister(SessionsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(BatcherCyclesTotal)
	prometheus.MustRegister(BatcherCycleDuration)
	prometheus.MustRegister(BatcherSessionsCreated)
	prometheus.MustRegister(EventsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures a duration for histogram observation
type Timer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in the given histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time in a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogramVec *prometheus.HistogramVec, labels ...string) {
	histogramVec.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
