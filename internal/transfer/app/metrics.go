package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transfersInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfers_initiated_total",
		Help: "Number of transfers accepted by the API.",
	})
	transfersCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfers_completed_total",
		Help: "Number of transfers that reached the completed status.",
	})
	transfersFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfers_failed_total",
		Help: "Number of transfers that ended in failure or cancellation.",
	}, []string{"outcome"})
	transferDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transfer_duration_seconds",
		Help:    "Time from transfer creation to its terminal status.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

func observeTransferOutcome(outcome string, createdAt time.Time) {
	switch outcome {
	case "completed":
		transfersCompleted.Inc()
	default:
		transfersFailed.WithLabelValues(outcome).Inc()
	}
	transferDuration.Observe(time.Since(createdAt).Seconds())
}
