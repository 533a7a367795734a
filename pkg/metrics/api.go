package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Count of HTTP requests.",
	}, []string{"route", "code"})
	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	signerOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "signer",
		Name:      "signatures_total",
		Help:      "Count of TWAP signatures produced.",
	}, []string{"status"})
)

// API tracks metrics for the HTTP boundary.
type API struct{}

// NewAPI creates an API metrics collector.
func NewAPI() *API {
	return &API{}
}

// Observe records one served request.
func (API) Observe(route string, code int, started time.Time) {
	apiRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	apiRequestDuration.WithLabelValues(route).Observe(since(started))
}

// ObserveSign records a signing attempt.
func (API) ObserveSign(err error) {
	signerOperationsTotal.WithLabelValues(status(err)).Inc()
}
