package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	indexerEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "events_total",
		Help:      "Count of stream events by outcome.",
	}, []string{"outcome"})
	indexerBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "blocks_total",
		Help:      "Count of blocks received from the stream.",
	})
	indexerHeartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "heartbeats_total",
		Help:      "Count of stream heartbeats.",
	})
	indexerRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "restarts_total",
		Help:      "Count of supervised indexer restarts.",
	})
	indexerLastBlock = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "indexer",
		Name:      "last_block",
		Help:      "Highest block number seen on the stream.",
	})
)

// Event outcomes.
const (
	EventStored  = "stored"
	EventSkipped = "skipped"
	EventFailed  = "failed"
)

// Indexer tracks metrics for the event indexer.
type Indexer struct{}

// NewIndexer creates an Indexer metrics collector.
func NewIndexer() *Indexer {
	return &Indexer{}
}

func (Indexer) ObserveEvent(outcome string) {
	indexerEventsTotal.WithLabelValues(outcome).Inc()
}

func (Indexer) ObserveBlock(number uint64) {
	indexerBlocksTotal.Inc()
	indexerLastBlock.Set(float64(number))
}

func (Indexer) ObserveHeartbeat() {
	indexerHeartbeatsTotal.Inc()
}

func (Indexer) ObserveRestart() {
	indexerRestartsTotal.Inc()
}
