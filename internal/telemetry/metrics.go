// Package telemetry provides application-level observability for the task manager.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are served on
// the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<TM_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Task operation outcomes and authorization decisions
//   - Audit entries written and shipping failures
//   - Authentication attempts and rate limit rejections
//   - Database connection pool gauge (polled every 30 s)
//   - Panics recovered in background goroutines
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/tasks/:id) rather than the
// raw request URL, so task IDs never become label values. No metric is labelled by user
// or organization.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Error rate (%):         sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:  histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Task service metrics.
//
// TaskOperationsTotal counts every task service call by operation (create, list, read,
// update, delete) and outcome (ok, not_found, forbidden, invalid_assignee, invalid, error).
//
// AuthzDecisionsTotal counts authorization engine decisions. The reason label is empty
// for allows and holds the denial reason otherwise.
//
// Example PromQL queries:
//   - Denials by reason:  sum by (reason) (rate(authz_decisions_total{effect="deny"}[1h]))
var (
	TaskOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_operations_total",
			Help: "Total number of task service operations, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	AuthzDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Total number of authorization decisions, by operation, effect, and denial reason.",
		},
		[]string{"operation", "effect", "reason"},
	)
)

// Audit metrics.
//
// AuditEntriesTotal is incremented once per audit entry written inside a committed or
// pending transaction. AuditShipFailuresTotal counts entries an external shipper could
// not deliver; shipping failures never fail the originating request.
var (
	AuditEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries written, by action and entity type.",
		},
		[]string{"action", "entity_type"},
	)

	AuditShipFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_ship_failures_total",
			Help: "Total number of audit entries that failed to ship to an external destination.",
		},
	)
)

// AuthAttemptsTotal counts login and registration attempts by operation (login, register)
// and result (success, invalid_credentials, conflict, disabled, error).
var AuthAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_attempts_total",
		Help: "Total number of authentication attempts, by operation and result.",
	},
	[]string{"operation", "result"},
)

// RateLimitRejectionsTotal counts requests refused with 429, by limiter backend
// (memory or redis).
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter, by backend.",
	},
	[]string{"backend"},
)

// DBOpenConnections tracks the number of open connections held by the sql.DB pool.
// It is sampled every 30 seconds by StartDBStatsCollector rather than per request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when the database becomes unreachable, which happens when the
// application shuts down and closes the pool.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}

// BackgroundPanicsTotal counts panics recovered from background goroutines, by task name
var BackgroundPanicsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "background_panics_total",
		Help: "Total number of panics recovered in background goroutines.",
	},
	[]string{"task"},
)
