// Package telemetry provides application-level observability for the registry.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and served on a
// side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<telemetry.metrics.prometheus_port>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Publish, search, and authorization counters
//   - Keyword index failures
//   - Database connection pool gauge (polled every telemetry.metrics.db_stats_interval)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /:name/:version) rather than the
// raw request URL so package names never become label values.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
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

// Publish outcomes. The result label is one of ok, forbidden, invalid, error.
//
// Example PromQL queries:
//   - Publish rate:          sum(rate(registry_publishes_total{result="ok"}[1h]))
//   - Rejected publishes:    sum by (result) (increase(registry_publishes_total{result!="ok"}[1h]))
var PublishesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "registry_publishes_total",
		Help: "Total number of publish attempts, by result.",
	},
	[]string{"result"},
)

// Search phases executed. phase is prefix, substring, or keyword; a substring
// observation means the prefix phase came back short and the fallback ran.
var SearchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "registry_searches_total",
		Help: "Total number of search phases executed, by phase.",
	},
	[]string{"phase"},
)

// KeywordIndexErrorsTotal counts keyword index writes that failed after a successful
// module save. The save itself is not affected, so a non-zero rate means search results
// are drifting from the module store.
var KeywordIndexErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "registry_keyword_index_errors_total",
		Help: "Total number of failed keyword index writes.",
	},
)

// AuthorizationsTotal counts maintainer authorization decisions (grant or deny).
var AuthorizationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "registry_authorizations_total",
		Help: "Total number of maintainer authorization decisions, by decision.",
	},
	[]string{"decision"},
)

// DBOpenConnections tracks the number of open connections held by the pool. It is
// sampled by StartDBStatsCollector.
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <NPMR_DATABASE_MAX_CONNECTIONS> * 100
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every interval until ctx is cancelled
// or the database stops answering pings.
func StartDBStatsCollector(ctx context.Context, db *sqlx.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
