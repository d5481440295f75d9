package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec
	AuthzCheckDuration  prometheus.Histogram

	// Role defaults cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Mutation metrics
	RoleMutationsTotal *prometheus.CounterVec
	OverrideSavesTotal *prometheus.CounterVec

	// Catalog metrics
	CatalogPermissions prometheus.Gauge
	StaleOverrideKeys  *prometheus.GaugeVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_authz_decisions_total",
				Help: "Authorization decisions by enforcement point and outcome",
			},
			[]string{"guard", "outcome"},
		),
		AuthzCheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warden_authz_check_duration_seconds",
				Help:    "Time to resolve an effective permission set on the server",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_role_cache_hits_total",
				Help: "Role defaults cache hits by layer",
			},
			[]string{"layer"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_role_cache_misses_total",
				Help: "Role defaults cache misses by layer",
			},
			[]string{"layer"},
		),

		RoleMutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_role_mutations_total",
				Help: "Role create/update/delete attempts by outcome",
			},
			[]string{"operation", "status"},
		),
		OverrideSavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_override_saves_total",
				Help: "User permission override saves by outcome",
			},
			[]string{"status"},
		),

		CatalogPermissions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_catalog_permissions",
				Help: "Number of permission keys in the active catalog",
			},
		),
		StaleOverrideKeys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "warden_stale_override_keys",
				Help: "Override entries referencing keys missing from the catalog",
			},
			[]string{"organization_id"},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.AuthzDecisionsTotal,
		m.AuthzCheckDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RoleMutationsTotal,
		m.OverrideSavesTotal,
		m.CatalogPermissions,
		m.StaleOverrideKeys,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// RecordDecision counts one authorization decision. Safe on a nil receiver.
func (m *Metrics) RecordDecision(guard, outcome string) {
	if m == nil {
		return
	}
	m.AuthzDecisionsTotal.WithLabelValues(guard, outcome).Inc()
}

// RecordCache counts a cache lookup on layer. Safe on a nil receiver.
func (m *Metrics) RecordCache(layer string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(layer).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(layer).Inc()
	}
}

// RecordMutation counts a role mutation. Safe on a nil receiver.
func (m *Metrics) RecordMutation(operation string, err error) {
	if m == nil {
		return
	}
	m.RoleMutationsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
}

// RecordOverrideSave counts an override save. Safe on a nil receiver.
func (m *Metrics) RecordOverrideSave(err error) {
	if m == nil {
		return
	}
	m.OverrideSavesTotal.WithLabelValues(statusLabel(err)).Inc()
}

// ObserveCheck records how long a server-side resolution took. Safe on a
// nil receiver.
func (m *Metrics) ObserveCheck(start time.Time) {
	if m == nil {
		return
	}
	m.AuthzCheckDuration.Observe(time.Since(start).Seconds())
}

// SetCatalogSize records the number of keys in the active catalog. Safe on
// a nil receiver.
func (m *Metrics) SetCatalogSize(n int) {
	if m == nil {
		return
	}
	m.CatalogPermissions.Set(float64(n))
}

// SetStaleOverrideKeys records how many stored override entries of an
// organization reference keys the catalog no longer has. Safe on a nil
// receiver.
func (m *Metrics) SetStaleOverrideKeys(orgID int64, n int) {
	if m == nil {
		return
	}
	m.StaleOverrideKeys.WithLabelValues(strconv.FormatInt(orgID, 10)).Set(float64(n))
}

// UpdateDBStats copies connection pool stats into the gauges
func (m *Metrics) UpdateDBStats(db *sql.DB) {
	if m == nil || db == nil {
		return
	}
	stats := db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
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

// routeLabel prefers the mux route template so IDs do not explode label
// cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
