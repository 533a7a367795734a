package node

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"twap_oracle/pkg/api"
	"twap_oracle/pkg/config"
	"twap_oracle/pkg/indexer"
)

func testConfig(redisAddr string) *config.Config {
	return &config.Config{
		Stream: config.StreamConfig{
			URL:             "http://127.0.0.1:1",
			APIKey:          "dna_test",
			ContractAddress: config.DefaultContractAddress,
			Selector:        config.DefaultEventSelector,
			BatchSize:       1,
		},
		Redis:   config.RedisConfig{URL: "redis://" + redisAddr, KeyPrefix: "spot:"},
		Signing: config.SigningConfig{PrivateKey: "0x0c28fca386c7a227600b2fe50b7cae11ec86d3bf1fbe471be89827e19d72aa1d"},
		P2P: config.P2PConfig{
			ListenAddress:     "/ip4/127.0.0.1/tcp/0",
			Topic:             "twap-updates-test",
			HeartbeatInterval: time.Second,
			MDNSServiceTag:    "twap-oracle-test",
			QueueSize:         8,
		},
		Server:      config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Aggregation: config.AggregationConfig{Rule: "mean", DefaultPeriod: 3600},
		Indexer: config.IndexerConfig{Backoff: config.BackoffConfig{
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      2,
		}},
		Publisher: config.PublisherConfig{Schedule: "@every 1m", Pairs: []string{"BTC/USD"}, Period: 60},
	}
}

func TestNodeLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("binds network sockets")
	}

	mr := miniredis.RunT(t)
	app, err := New(testConfig(mr.Addr()), zaptest.NewLogger(t))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.Server().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"up","redis_connection":true}`, rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	assert.NoError(t, app.Run(ctx))

	// Run released everything; a second Close is a no-op.
	assert.NoError(t, app.Close())
}

func TestNewRejectsBadKey(t *testing.T) {
	cfg := testConfig("127.0.0.1:0")
	cfg.Signing.PrivateKey = "0x00"

	_, err := New(cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

type blockingRunner struct {
	ctxs chan context.Context
}

func (r *blockingRunner) Run(ctx context.Context) error {
	r.ctxs <- ctx
	<-ctx.Done()
	return ctx.Err()
}

func TestGossipFailureLeavesIndexerRunning(t *testing.T) {
	logger := zaptest.NewLogger(t)
	runner := &blockingRunner{ctxs: make(chan context.Context, 1)}
	supervisor := indexer.NewSupervisor(runner, indexer.DefaultBackoffConfig(), logger)

	gossipFailed := make(chan struct{})
	app := &App{
		logger: logger,
		server: api.NewServer(api.Config{Host: "127.0.0.1"}, nil, nil, nil, logger),
		loops: []coreLoop{
			{name: "indexer", run: supervisor.Run},
			{name: "gossip", run: func(context.Context) error {
				close(gossipFailed)
				return errors.New("gossip subscription: subscription cancelled")
			}},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	var indexerCtx context.Context
	select {
	case indexerCtx = <-runner.ctxs:
	case <-time.After(2 * time.Second):
		t.Fatal("indexer did not start")
	}
	<-gossipFailed

	assert.Never(t, func() bool { return indexerCtx.Err() != nil }, 300*time.Millisecond, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("node did not stop")
	}
	assert.Error(t, indexerCtx.Err())
}
