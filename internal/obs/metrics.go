package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by every endpoint.
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
)

// Authorization metrics.
var (
	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Password login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	factorVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_factor_verifications_total",
			Help: "Step-up factor verification attempts by kind and outcome.",
		},
		[]string{"factor", "outcome"},
	)

	stepUpSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "auth_stepup_sessions_active",
		Help: "Step-up sessions currently tracked.",
	})

	sweptSessions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_stepup_sessions_swept_total",
		Help: "Expired step-up sessions removed by the sweep.",
	})
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginAttempts, factorVerifications, stepUpSessions, sweptSessions,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin records one login attempt with the given outcome.
func ObserveLogin(outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
}

// ObserveFactor records one factor verification attempt.
func ObserveFactor(factor, outcome string) {
	factorVerifications.WithLabelValues(factor, outcome).Inc()
}

// SessionOpened bumps the active step-up session gauge.
func SessionOpened() { stepUpSessions.Inc() }

// SessionClosed decrements the active step-up session gauge.
func SessionClosed() { stepUpSessions.Dec() }

// SessionsSwept accounts for sessions removed by an expiry sweep.
func SessionsSwept(n int) {
	stepUpSessions.Sub(float64(n))
	sweptSessions.Add(float64(n))
}

// Instrument wraps a handler with request counting and latency measurement.
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

// CanonicalPath collapses identifier segments so metrics cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	if len(parts) >= 4 && parts[1] == "v1" && parts[2] == "resources" {
		parts[3] = ":id"
		return strings.Join(parts, "/")
	}
	if len(parts) >= 4 && parts[1] == "v1" && parts[2] == "sessions" {
		parts[3] = ":id"
		return strings.Join(parts, "/")
	}
	return path
}

// statusWriter captures the response code written downstream.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
