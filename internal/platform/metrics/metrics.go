// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carefin"

var (
	// HTTPRequestTotal counts requests by method, route, status.
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"method", "route"},
	)

	// LedgerEntriesTotal counts appended ledger entries by cost category.
	LedgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_entries_total",
			Help:      "Total number of ledger entries appended, by category.",
		},
		[]string{"category"},
	)

	// BudgetRecomputeTotal counts budget recomputations by outcome (ok, failed).
	BudgetRecomputeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_recompute_total",
			Help:      "Total number of budget record recomputations, by outcome.",
		},
		[]string{"outcome"},
	)

	// BudgetLockWaitSeconds is the time spent acquiring a per-department period lock.
	BudgetLockWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "budget_lock_wait_seconds",
			Help:      "Time spent waiting for a department budget lock.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	AlertsRaisedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Total number of alerts created, by type and severity.",
		},
		[]string{"type", "severity"},
	)

	// AlertsDeduplicatedTotal counts alert raises suppressed by an active alert of the same type.
	AlertsDeduplicatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_deduplicated_total",
			Help:      "Total number of alert raises suppressed by an existing active alert.",
		},
		[]string{"type"},
	)

	ForecastsComputedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecasts_computed_total",
			Help:      "Total number of forecasts computed, by method.",
		},
		[]string{"method"},
	)
)
