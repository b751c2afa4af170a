package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported by kennel.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Document engine
	EngineOperationsTotal   *prometheus.CounterVec
	EngineOperationDuration *prometheus.HistogramVec

	// Caches (acl, settings)
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Credentials
	LoginAttemptsTotal  *prometheus.CounterVec
	LockoutsTotal       prometheus.Counter
	SessionsSweptTotal  prometheus.Counter
	ResetCodesSentTotal prometheus.Counter

	// Tenants
	TenantsTotal prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kennel_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kennel_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kennel_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 7),
			},
			[]string{"method", "route"},
		),
		EngineOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kennel_engine_operations_total",
				Help: "Total number of document engine operations",
			},
			[]string{"operation", "backend", "status"},
		),
		EngineOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kennel_engine_operation_duration_seconds",
				Help:    "Document engine operation duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation", "backend"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kennel_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache", "tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kennel_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kennel_login_attempts_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		LockoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kennel_credential_lockouts_total",
				Help: "Credentials disabled after too many invalid challenges",
			},
		),
		SessionsSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kennel_sessions_swept_total",
				Help: "Expired sessions removed by the janitor",
			},
		),
		ResetCodesSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kennel_password_reset_codes_total",
				Help: "Password reset codes issued",
			},
		),
		TenantsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kennel_tenants_total",
				Help: "Number of provisioned tenants",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.EngineOperationsTotal,
		m.EngineOperationDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.LoginAttemptsTotal,
		m.LockoutsTotal,
		m.SessionsSweptTotal,
		m.ResetCodesSentTotal,
		m.TenantsTotal,
	)
	return m
}

// RecordEngineOperation counts one engine call. A nil receiver is a no-op so
// callers can run without metrics.
func (m *Metrics) RecordEngineOperation(operation, backend string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EngineOperationsTotal.WithLabelValues(operation, backend, status).Inc()
	m.EngineOperationDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

// RecordCacheHit counts a hit in the given cache tier ("local" or "redis").
func (m *Metrics) RecordCacheHit(cache, tier string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache, tier).Inc()
}

// RecordCacheMiss counts a miss across every tier of a cache.
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordLogin counts a login attempt.
func (m *Metrics) RecordLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
}

// IncLockouts counts a credential disabled by brute-force protection.
func (m *Metrics) IncLockouts() {
	if m == nil {
		return
	}
	m.LockoutsTotal.Inc()
}

// AddSessionsSwept counts sessions removed by the janitor.
func (m *Metrics) AddSessionsSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsSweptTotal.Add(float64(n))
}

// IncResetCodes counts an issued password reset code.
func (m *Metrics) IncResetCodes() {
	if m == nil {
		return
	}
	m.ResetCodesSentTotal.Inc()
}

// SetTenants publishes the number of provisioned tenants.
func (m *Metrics) SetTenants(n int) {
	if m == nil {
		return
	}
	m.TenantsTotal.Set(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel prefers the matched mux template so ids in the path do not
// explode label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint serves the registry on /metrics.
func RegisterMetricsEndpoint(router *mux.Router, gatherer prometheus.Gatherer) {
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
