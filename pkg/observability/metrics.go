package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the collab service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	ValidationsTotal     *prometheus.CounterVec
	GrantsIssuedTotal    *prometheus.CounterVec
	AdmissionsTotal      *prometheus.CounterVec
	ScopedReadsTotal     *prometheus.CounterVec
	ScopedWritesTotal    *prometheus.CounterVec
	RateLimitRejections  prometheus.Counter
	CodeRetriesTotal     prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collab_http_requests_total",
				Help: "Total HTTP requests by method, route, and status code",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collab_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		ValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collab_validations_total",
				Help: "Access code / share key validations by token kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		GrantsIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collab_grants_issued_total",
				Help: "Access grants issued by token kind",
			},
			[]string{"kind"},
		),
		AdmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collab_admissions_total",
				Help: "Guest admission attempts by outcome",
			},
			[]string{"outcome"},
		),
		ScopedReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collab_scoped_reads_total",
				Help: "Project-scoped guest reads by resource kind",
			},
			[]string{"resource"},
		),
		ScopedWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collab_scoped_writes_total",
				Help: "Project-scoped guest writes by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		RateLimitRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "collab_ratelimit_rejections_total",
				Help: "Guest requests rejected by the rate limiter",
			},
		),
		CodeRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "collab_code_generation_retries_total",
				Help: "Access code generation retries due to collision",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "collab_db_connections_active",
				Help: "Active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "collab_db_connections_idle",
				Help: "Idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ValidationsTotal,
		m.GrantsIssuedTotal,
		m.AdmissionsTotal,
		m.ScopedReadsTotal,
		m.ScopedWritesTotal,
		m.RateLimitRejections,
		m.CodeRetriesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordValidation counts one validation outcome. outcome is "valid" or
// the denial reason kind.
func (m *Metrics) RecordValidation(kind, outcome string) {
	if m == nil {
		return
	}
	m.ValidationsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordGrant counts one issued access grant.
func (m *Metrics) RecordGrant(kind string) {
	if m == nil {
		return
	}
	m.GrantsIssuedTotal.WithLabelValues(kind).Inc()
}

// statusRecorder captures the response status for the metrics middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments an HTTP handler with request count and latency.
// route should be the mux route template, not the raw path, to keep
// cardinality bounded.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
