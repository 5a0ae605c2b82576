// Package metrics provides Prometheus metrics definitions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cedastatus"

var (
	// HTTPRequestDuration measures inbound webhook handling time.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by method, route and status code.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// SlashCommandsTotal counts slash command invocations by outcome.
	SlashCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slash_commands_total",
			Help:      "Slash command invocations by command and outcome.",
		},
		[]string{"command", "outcome"},
	)

	// InteractionsTotal counts interaction payloads by action and outcome.
	InteractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Slack interaction payloads by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// StoreOperationsTotal counts status store operations by outcome.
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Status store operations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// StoreOperationDuration measures status store call latency.
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Status store operation duration.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
