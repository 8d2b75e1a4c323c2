// Package metrics provides Prometheus metrics for the Passdoo agent.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Backend calls
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passdoo_api_requests_total",
			Help: "Total backend API calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "passdoo_api_request_duration_seconds",
			Help:    "Backend API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Credential cache
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passdoo_cache_lookups_total",
			Help: "Credential cache lookups by result (hit, miss, mirror)",
		},
		[]string{"result"},
	)

	cacheInvalidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "passdoo_cache_invalidations_total",
			Help: "Total credential cache invalidations",
		},
	)

	// Session
	authTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passdoo_auth_transitions_total",
			Help: "Session state transitions by target state",
		},
		[]string{"state"},
	)

	loginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passdoo_login_attempts_total",
			Help: "Interactive login attempts by result",
		},
		[]string{"result"},
	)

	// Front-end messages
	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passdoo_messages_total",
			Help: "Front-end messages by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	wsConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "passdoo_ws_connections_active",
			Help: "Number of connected WebSocket front-ends",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passdoo_http_requests_total",
			Help: "Total agent HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Periodic refresh
	refreshRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passdoo_refresh_runs_total",
			Help: "Periodic session refresh runs by outcome",
		},
		[]string{"outcome"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPICall records a backend call. outcome is "ok" or an error kind.
func RecordAPICall(endpoint, outcome string, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	apiRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordCacheLookup records a credential cache lookup.
func RecordCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordCacheInvalidation records a credential cache invalidation.
func RecordCacheInvalidation() {
	cacheInvalidationsTotal.Inc()
}

// RecordAuthTransition records a session state change.
func RecordAuthTransition(state string) {
	authTransitionsTotal.WithLabelValues(state).Inc()
}

// RecordLoginAttempt records the result of an interactive login.
func RecordLoginAttempt(result string) {
	loginAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordMessage records a dispatched front-end message.
func RecordMessage(action string, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	messagesTotal.WithLabelValues(action, outcome).Inc()
}

// SetWSConnectionsActive sets the number of connected WebSocket front-ends.
func SetWSConnectionsActive(count int) {
	wsConnectionsActive.Set(float64(count))
}

// RecordHTTPRequest records an agent HTTP request.
func RecordHTTPRequest(method, path string, status int) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// RecordRefresh records a periodic refresh run.
func RecordRefresh(outcome string) {
	refreshRunsTotal.WithLabelValues(outcome).Inc()
}
