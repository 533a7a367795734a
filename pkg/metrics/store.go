package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Count of time-series store operations.",
	}, []string{"operation", "status"})
	storeOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Duration of time-series store operations.",
		Buckets:   DefaultBuckets,
	}, []string{"operation", "status"})
	storeTwapSamples = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "twap_samples",
		Help:      "Number of price records aggregated per TWAP computation.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// Store tracks metrics for the Redis time-series store.
type Store struct{}

// NewStore creates a Store metrics collector.
func NewStore() *Store {
	return &Store{}
}

// Observe records duration and status of a store operation.
func (Store) Observe(operation string, err error, started time.Time) {
	s := status(err)
	storeOperationsTotal.WithLabelValues(operation, s).Inc()
	storeOperationDuration.WithLabelValues(operation, s).Observe(since(started))
}

// ObserveSamples records how many records went into one TWAP.
func (Store) ObserveSamples(n int) {
	storeTwapSamples.Observe(float64(n))
}
