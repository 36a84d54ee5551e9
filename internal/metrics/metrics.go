// Package metrics exposes Prometheus collectors for ruleset evaluations and
// the HTTP surface.
//
// Metrics:
//   - <ns>_evaluations_total: evaluations by verdict (PASS or FAIL)
//   - <ns>_evaluation_duration_seconds: evaluation latency (histogram)
//   - <ns>_validation_failures_total: failing nodes reported across evaluations
//   - <ns>_broadcast_published_total: results handed to the broadcast hub
//   - <ns>_http_requests_total: HTTP requests by method, route and status code
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name when none is configured
const DefaultNamespace = "rulesets"

// Metrics owns a private registry and the collectors registered on it
type Metrics struct {
	registry *prometheus.Registry

	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	validationFailures prometheus.Counter
	broadcastPublished prometheus.Counter
	httpRequestsTotal  *prometheus.CounterVec
}

// New creates and registers all collectors under namespace
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),

		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total ruleset evaluations by status",
			},
			[]string{"status"},
		),

		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Ruleset evaluation latency in seconds",
				// 10µs to ~1s; evaluations are in-memory tree walks
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 9),
			},
		),

		validationFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total failing nodes reported by evaluations",
			},
		),

		broadcastPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcast_published_total",
				Help:      "Total evaluation results handed to the broadcast hub",
			},
		),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),
	}

	m.registry.MustRegister(
		m.evaluationsTotal,
		m.evaluationDuration,
		m.validationFailures,
		m.broadcastPublished,
		m.httpRequestsTotal,
	)

	return m
}

// RecordEvaluation records one evaluation verdict, its latency and the number
// of failing nodes it reported
func (m *Metrics) RecordEvaluation(status string, elapsed time.Duration, failures int) {
	m.evaluationsTotal.WithLabelValues(status).Inc()
	m.evaluationDuration.Observe(elapsed.Seconds())
	if failures > 0 {
		m.validationFailures.Add(float64(failures))
	}
}

// RecordPublish counts a result handed to the broadcast hub
func (m *Metrics) RecordPublish() {
	m.broadcastPublished.Inc()
}

// RecordHTTPRequest counts a served request. route is the router pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, code int) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}

// Registry returns the registry backing m
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
