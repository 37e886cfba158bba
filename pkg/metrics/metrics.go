// Package metrics provides Prometheus metrics for the family tree service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesTotal tracks batch mutations by outcome code
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "familytree",
			Subsystem: "batch",
			Name:      "requests_total",
			Help:      "Total number of batch mutations by outcome",
		},
		[]string{"outcome"},
	)

	// BatchDuration tracks how long a batch holds its transaction
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "familytree",
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Duration of batch mutations in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)

	// BatchOperations tracks applied operations by kind
	BatchOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "familytree",
			Subsystem: "batch",
			Name:      "operations_total",
			Help:      "Total number of committed operations by kind",
		},
		[]string{"kind"},
	)

	// UndosTotal tracks undo requests by outcome code
	UndosTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "familytree",
			Subsystem: "undo",
			Name:      "requests_total",
			Help:      "Total number of undo requests by outcome",
		},
		[]string{"outcome"},
	)

	// CacheLookups tracks read cache hits and misses
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "familytree",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of read cache lookups by result",
		},
		[]string{"result"},
	)

	// InconsistentMarriages is the count found by the last integrity scan
	InconsistentMarriages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "familytree",
			Subsystem: "integrity",
			Name:      "inconsistent_marriages",
			Help:      "Marriages violating the munasib origin invariant at last scan",
		},
	)
)
