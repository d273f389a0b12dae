// Package metrics exposes Prometheus collectors for criteria queries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts repository operations by operation and status.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criteria_queries_total",
			Help: "Total number of criteria queries",
		},
		[]string{"operation", "status"},
	)
	// QueryDuration is the latency of repository operations.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "criteria_query_duration_seconds",
			Help:    "Criteria query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	// RejectedTotal counts criteria rejected before execution, by error kind.
	RejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "criteria_rejected_total",
			Help: "Total number of criteria or order documents rejected as invalid",
		},
		[]string{"kind"},
	)
)
