// Package metrics registers the Prometheus collectors exposed on /metrics.
// HTTP metrics are labelled by gin route template, never the raw URL.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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

// ValveTransitionsTotal counts committed valve status transitions by approval log action
var ValveTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "valve_transitions_total",
		Help: "Total number of valve status transitions, by action.",
	},
	[]string{"action"},
)

// ValveImportsTotal counts spreadsheet imports by outcome (imported, skipped, overwritten)
var ValveImportsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "valve_import_records_total",
		Help: "Total number of spreadsheet rows processed by import, by outcome.",
	},
	[]string{"outcome"},
)

// LedgerReconcileChanges counts ledgers whose stored status the reconcile job corrected
var LedgerReconcileChanges = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "ledger_reconcile_changes_total",
		Help: "Total number of ledger status corrections made by the reconcile job.",
	},
)

var (
	ScheduledJobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_job_runs_total",
			Help: "Total number of recurring background job runs, by job and result.",
		},
		[]string{"job", "result"},
	)

	ScheduledJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduled_job_duration_seconds",
			Help:    "Histogram of recurring background job run time, by job.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
