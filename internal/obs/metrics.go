package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	tokenValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_token_validations_total",
			Help: "Token validation outcomes.",
		},
		[]string{"result"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_rate_limited_total",
			Help: "Requests rejected by the fixed-window rate limiter.",
		},
		[]string{"route"},
	)

	patternRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_pattern_rejections_total",
			Help: "Search patterns rejected by the safety analyzer.",
		},
		[]string{"reason"},
	)

	queryTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_query_timeouts_total",
		Help: "Paginated queries aborted by the executor deadline.",
	})

	auditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "registry_audit_write_failures_total",
		Help: "Audit events that could not be persisted.",
	})
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		tokenValidations, rateLimited, patternRejections,
		queryTimeouts, auditWriteFailures,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTokenValidation counts a token validation outcome
// (ok, invalid, expired, exhausted).
func ObserveTokenValidation(result string) {
	tokenValidations.WithLabelValues(result).Inc()
}

// ObserveRateLimited counts a fixed-window rejection for a route.
func ObserveRateLimited(route string) {
	rateLimited.WithLabelValues(route).Inc()
}

// ObservePatternRejection counts a rejected search pattern by reason
// (empty, too_long, syntax, unsafe).
func ObservePatternRejection(reason string) {
	patternRejections.WithLabelValues(reason).Inc()
}

// ObserveQueryTimeout counts an executor deadline hit.
func ObserveQueryTimeout() {
	queryTimeouts.Inc()
}

// ObserveAuditWriteFailure counts a failed audit append.
func ObserveAuditWriteFailure() {
	auditWriteFailures.Inc()
}

// Instrument wraps a handler with in-flight, latency, and count metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses identifier segments so metric cardinality stays
// bounded regardless of how many artifacts exist.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) >= 3 && parts[0] == "artifacts":
		// /artifacts/{type}/{id}[...]
		parts[2] = ":id"
	case len(parts) >= 3 && parts[0] == "artifact" && parts[1] == "byName":
		parts[2] = ":name"
	case len(parts) >= 3 && parts[0] == "artifact" && parts[1] == "model":
		parts[2] = ":id"
	}
	return "/" + strings.Join(parts, "/")
}

// statusWriter records the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
