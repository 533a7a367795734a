// Package metrics exposes Prometheus collectors for the oracle node.
package metrics

import "time"

const namespace = "twap_oracle"

// DefaultBuckets is used for latency histograms of local operations.
var DefaultBuckets = []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func since(started time.Time) float64 {
	return time.Since(started).Seconds()
}

