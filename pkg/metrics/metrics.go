// Package metrics exposes archgate's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "archgate"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	evaluations       *prometheus.CounterVec
	evaluationSeconds prometheus.Histogram
	controls          *prometheus.CounterVec
	controlSeconds    *prometheus.HistogramVec
	acrDecisions      *prometheus.CounterVec
	acrCreated        prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpSeconds       *prometheus.HistogramVec
}

// New registers archgate collectors plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gate", Name: "evaluations_total",
			Help: "Gate evaluations by verdict.",
		}, []string{"verdict"}),
		evaluationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "gate", Name: "evaluation_duration_seconds",
			Help:    "Wall time of a gate evaluation.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
		controls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gate", Name: "control_results_total",
			Help: "Control results by control and status.",
		}, []string{"control", "status"}),
		controlSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "gate", Name: "control_duration_seconds",
			Help:    "Wall time of a single control.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"control"}),
		acrDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "acr", Name: "decisions_total",
			Help: "ACR review decisions by resulting status.",
		}, []string{"status"}),
		acrCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "acr", Name: "created_total",
			Help: "ACRs created.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.evaluations, m.evaluationSeconds,
		m.controls, m.controlSeconds,
		m.acrDecisions, m.acrCreated,
		m.httpRequests, m.httpSeconds,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveControl(control, status string, d time.Duration) {
	m.controls.WithLabelValues(control, status).Inc()
	m.controlSeconds.WithLabelValues(control).Observe(d.Seconds())
}

func (m *Metrics) ObserveEvaluation(passed bool, d time.Duration) {
	verdict := "fail"
	if passed {
		verdict = "pass"
	}
	m.evaluations.WithLabelValues(verdict).Inc()
	m.evaluationSeconds.Observe(d.Seconds())
}

func (m *Metrics) ACRCreated() { m.acrCreated.Inc() }

func (m *Metrics) ACRDecided(status string) { m.acrDecisions.WithLabelValues(status).Inc() }

// ObserveHTTP records one request. route is the matched route pattern, not
// the raw path.
func (m *Metrics) ObserveHTTP(route, method string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpSeconds.WithLabelValues(route).Observe(d.Seconds())
}
