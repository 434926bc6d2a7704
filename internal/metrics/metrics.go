package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "student_import",
		Name:      "batches_dispatched_total",
		Help:      "Bulk uploads split into row jobs.",
	})

	BatchesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "student_import",
		Name:      "batches_closed_total",
		Help:      "Batches that reached their aggregate completion.",
	}, []string{"outcome"})

	OpenBatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "student_import",
		Name:      "open_batches",
		Help:      "Batches currently tracked in memory.",
	})

	RowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "student_import",
		Name:      "rows_processed_total",
		Help:      "Row jobs that reached a terminal state.",
	}, []string{"status"})

	RowAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "student_import",
		Name:      "row_attempts",
		Help:      "Attempts needed to reach a terminal state per row.",
		Buckets:   []float64{1, 2, 3, 5, 8},
	})
)

// Batch outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeErrors  = "errors"
	OutcomeTimeout = "timeout"
)
