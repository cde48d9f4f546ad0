// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	safetyVerdicts    *prometheus.CounterVec
	safetyCacheHits   prometheus.Counter
	compensations     *prometheus.CounterVec
	consistencyGaps   *prometheus.CounterVec
	reconciledTenants prometheus.Counter
}

// New registers every collector on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		safetyVerdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetgate_safety_verdicts_total",
			Help: "Safety gate verdicts by outcome and rejection category.",
		}, []string{"outcome", "category"}),
		safetyCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetgate_safety_cache_hits_total",
			Help: "Classifications served from the verdict cache.",
		}),
		compensations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetgate_saga_compensations_total",
			Help: "Compensating actions run, by workflow, step and result.",
		}, []string{"workflow", "step", "result"}),
		consistencyGaps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetgate_consistency_gaps_total",
			Help: "Partial failures that left state needing reconciliation.",
		}, []string{"source"}),
		reconciledTenants: f.NewCounter(prometheus.CounterOpts{
			Name: "fleetgate_reconciled_tenants_total",
			Help: "Approved tenants whose owner role was repaired.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) SafetyVerdict(accepted bool, category string) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	m.safetyVerdicts.WithLabelValues(outcome, category).Inc()
}

func (m *Metrics) SafetyCacheHit() {
	if m == nil {
		return
	}
	m.safetyCacheHits.Inc()
}

func (m *Metrics) Compensation(workflow, step string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.compensations.WithLabelValues(workflow, step, result).Inc()
}

func (m *Metrics) ConsistencyGap(source string) {
	if m == nil {
		return
	}
	m.consistencyGaps.WithLabelValues(source).Inc()
}

func (m *Metrics) TenantReconciled() {
	if m == nil {
		return
	}
	m.reconciledTenants.Inc()
}

// Instrument records RPS, latency and in-flight requests. The route label is
// the chi route pattern so path parameters do not explode cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := strconv.Itoa(sw.code)
		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
