package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMirror mirrors samples onto Prometheus collectors as they are
// observed, independent of the snapshot/report path, so a running attack
// can be scraped mid-run. Grounded on pkg/monitoring/metrics.go's
// MetricsCollector (CounterVec/HistogramVec/GaugeVec registered against a
// dedicated prometheus.Registry rather than the global default, matching
// the teacher's NewMetricsCollector).
type PrometheusMirror struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestsFailed  *prometheus.CounterVec
	activeUsers     prometheus.Gauge
	currentPhase    *prometheus.GaugeVec
}

// NewPrometheusMirror builds and registers the mirror's collectors against
// a fresh registry (never the global default, so multiple attacks in one
// process — e.g. under test — don't collide).
func NewPrometheusMirror() *PrometheusMirror {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMirror{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goose_requests_total",
			Help: "Total number of requests issued by virtual users.",
		}, []string{"method", "name"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "goose_request_duration_seconds",
			Help:    "Request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "name"}),
		requestsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "goose_requests_failed_total",
			Help: "Total number of failed requests.",
		}, []string{"method", "name"}),
		activeUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "goose_active_users",
			Help: "Current number of running virtual users.",
		}),
		currentPhase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goose_attack_phase",
			Help: "1 for the currently active AttackPhase, 0 otherwise.",
		}, []string{"phase"}),
	}

	registry.MustRegister(pm.requestsTotal, pm.requestDuration, pm.requestsFailed, pm.activeUsers, pm.currentPhase)
	return pm
}

// Registry exposes the mirror's registry so the Controller can mount it
// behind promhttp.HandlerFor.
func (pm *PrometheusMirror) Registry() *prometheus.Registry { return pm.registry }

// Observe folds one RequestSample into the Prometheus collectors. Synthetic
// coordinated-omission samples are mirrored too, matching the same
// inclusion rule as the CO-adjusted histogram (spec §4.3 step 3).
func (pm *PrometheusMirror) Observe(s RequestSample) {
	pm.requestsTotal.WithLabelValues(s.Method, s.Name).Inc()
	pm.requestDuration.WithLabelValues(s.Method, s.Name).Observe(float64(s.ResponseTimeUs) / 1_000_000.0)
	if !s.Success {
		pm.requestsFailed.WithLabelValues(s.Method, s.Name).Inc()
	}
}

// SetActiveUsers updates the current running-user gauge.
func (pm *PrometheusMirror) SetActiveUsers(n int) { pm.activeUsers.Set(float64(n)) }

// SetPhase zeroes every known phase gauge then sets the active one to 1,
// so a Grafana panel can graph phase transitions over time.
func (pm *PrometheusMirror) SetPhase(phase string, known []string) {
	for _, p := range known {
		v := 0.0
		if p == phase {
			v = 1.0
		}
		pm.currentPhase.WithLabelValues(p).Set(v)
	}
}
