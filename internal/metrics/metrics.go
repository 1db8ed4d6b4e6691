// Package metrics exposes Prometheus collectors for the ingester.
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
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hnmirror_remote_requests_total",
			Help: "Remote API attempts, labeled by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	remoteRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hnmirror_remote_request_duration_seconds",
			Help:    "Histogram of remote API attempt latencies, labeled by operation.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"op"},
	)

	remoteRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hnmirror_remote_retries_total",
			Help: "Remote API retries, labeled by operation.",
		},
		[]string{"op"},
	)

	gateInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hnmirror_gate_in_flight",
			Help: "Operations currently admitted by a gate.",
		},
		[]string{"gate"},
	)

	gateWaiting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hnmirror_gate_waiting",
			Help: "Operations queued behind a gate.",
		},
		[]string{"gate"},
	)

	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hnmirror_crawl_cycles_total",
			Help: "Crawl cycles, labeled by category and status.",
		},
		[]string{"category", "status"},
	)

	cycleDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hnmirror_crawl_cycle_duration_seconds",
			Help:    "Histogram of crawl cycle durations, labeled by category.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"category"},
	)

	cycleItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hnmirror_crawl_items_total",
			Help: "Items fetched by successful crawl cycles, labeled by category.",
		},
		[]string{"category"},
	)

	failedRootsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hnmirror_crawl_failed_roots_total",
			Help: "Root trees discarded because a fetch in the tree failed, labeled by category.",
		},
		[]string{"category"},
	)

	persistedRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hnmirror_persisted_rows_total",
			Help: "Rows upserted, labeled by table.",
		},
		[]string{"table"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hnmirror_http_requests_total",
			Help: "Admin HTTP requests, labeled by method, route and code.",
		},
		[]string{"method", "route", "code"},
	)
)

// Handler returns an http.Handler exposing the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRemoteRequest records one remote attempt.
func ObserveRemoteRequest(op, outcome string, d time.Duration) {
	remoteRequestsTotal.WithLabelValues(op, outcome).Inc()
	remoteRequestDurationSeconds.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveRemoteRetry counts a retry of op.
func ObserveRemoteRetry(op string) {
	remoteRetriesTotal.WithLabelValues(op).Inc()
}

// SetGateInFlight sets the admitted count of a gate.
func SetGateInFlight(gate string, n int64) {
	gateInFlight.WithLabelValues(gate).Set(float64(n))
}

// SetGateWaiting sets the queued count of a gate.
func SetGateWaiting(gate string, n int64) {
	gateWaiting.WithLabelValues(gate).Set(float64(n))
}

// ObserveCycle records the outcome and duration of a crawl cycle.
func ObserveCycle(category, status string, d time.Duration) {
	cyclesTotal.WithLabelValues(category, status).Inc()
	cycleDurationSeconds.WithLabelValues(category).Observe(d.Seconds())
}

// AddCycleItems adds fetched items for a category.
func AddCycleItems(category string, n int) {
	if n > 0 {
		cycleItemsTotal.WithLabelValues(category).Add(float64(n))
	}
}

// AddFailedRoots adds discarded root trees for a category.
func AddFailedRoots(category string, n int) {
	if n > 0 {
		failedRootsTotal.WithLabelValues(category).Add(float64(n))
	}
}

// AddPersistedRows adds upserted rows for a table.
func AddPersistedRows(table string, n int) {
	if n > 0 {
		persistedRowsTotal.WithLabelValues(table).Add(float64(n))
	}
}

// ObserveHTTPRequest counts an admin HTTP request.
func ObserveHTTPRequest(method, route string, code int) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
