package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStoreObserve(t *testing.T) {
	before := testutil.ToFloat64(storeOperationsTotal.WithLabelValues("zadd", "error"))

	NewStore().Observe("zadd", errors.New("boom"), time.Now())

	assert.Equal(t, before+1, testutil.ToFloat64(storeOperationsTotal.WithLabelValues("zadd", "error")))
}

func TestIndexerObserveBlock(t *testing.T) {
	m := NewIndexer()
	m.ObserveBlock(42)
	assert.Equal(t, float64(42), testutil.ToFloat64(indexerLastBlock))
}

func TestGossipVerdicts(t *testing.T) {
	m := NewGossip()
	before := testutil.ToFloat64(gossipReceivedTotal.WithLabelValues(VerdictRejected))

	m.ObserveReceived(VerdictRejected)
	m.ObserveReceived(VerdictRejected)

	assert.Equal(t, before+2, testutil.ToFloat64(gossipReceivedTotal.WithLabelValues(VerdictRejected)))
}

func TestAPIObserve(t *testing.T) {
	before := testutil.ToFloat64(apiRequestsTotal.WithLabelValues("/health", "200"))
	NewAPI().Observe("/health", 200, time.Now())
	assert.Equal(t, before+1, testutil.ToFloat64(apiRequestsTotal.WithLabelValues("/health", "200")))
}
