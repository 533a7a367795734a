package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gossipPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gossip",
		Name:      "published_total",
		Help:      "Count of attestations published to the topic.",
	}, []string{"status"})
	gossipReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gossip",
		Name:      "received_total",
		Help:      "Count of peer attestations by verification verdict.",
	}, []string{"verdict"})
	gossipDialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gossip",
		Name:      "dials_total",
		Help:      "Count of peer dials.",
	}, []string{"status"})
	gossipConnectedPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "gossip",
		Name:      "connected_peers",
		Help:      "Number of peers the host is connected to.",
	})
	gossipQueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gossip",
		Name:      "queue_dropped_total",
		Help:      "Count of attestations dropped because the broadcast queue was full.",
	})
)

// Verification verdicts.
const (
	VerdictAccepted  = "accepted"
	VerdictRejected  = "rejected"
	VerdictMalformed = "malformed"
)

// Gossip tracks metrics for the gossip network service.
type Gossip struct{}

// NewGossip creates a Gossip metrics collector.
func NewGossip() *Gossip {
	return &Gossip{}
}

func (Gossip) ObservePublish(err error) {
	gossipPublishedTotal.WithLabelValues(status(err)).Inc()
}

func (Gossip) ObserveReceived(verdict string) {
	gossipReceivedTotal.WithLabelValues(verdict).Inc()
}

func (Gossip) ObserveDial(err error) {
	gossipDialsTotal.WithLabelValues(status(err)).Inc()
}

func (Gossip) SetConnectedPeers(n int) {
	gossipConnectedPeers.Set(float64(n))
}

// ObserveDropped counts an attestation that could not be queued.
func (Gossip) ObserveDropped() {
	gossipQueueDropped.Inc()
}
