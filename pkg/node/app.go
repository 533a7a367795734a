// Package node assembles the oracle node from configuration and runs its
// long-lived tasks.
package node

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"twap_oracle/pkg/api"
	"twap_oracle/pkg/config"
	"twap_oracle/pkg/data"
	"twap_oracle/pkg/indexer"
	"twap_oracle/pkg/oracle"
	"twap_oracle/pkg/p2p"
	"twap_oracle/pkg/p2p/message"
	"twap_oracle/pkg/scheduler"
	"twap_oracle/pkg/security"
	"twap_oracle/pkg/stream"
)

// App represents the running node
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	repo       *data.RedisRepository
	client     *stream.GRPCClient
	supervisor *indexer.Supervisor
	gossip     *p2p.Service
	reputation *security.ReputationManager
	oracle     *oracle.Service
	server     *api.Server
	publisher  *scheduler.Scheduler
	queue      chan message.TwapMessage

	loops   []coreLoop
	cleanup []func() error
}

// coreLoop is a long-running task whose failure ends only that task.
type coreLoop struct {
	name string
	run  func(ctx context.Context) error
}

// New builds every component. Nothing runs until Run is called.
func New(cfg *config.Config, logger *zap.Logger) (app *App, err error) {
	a := &App{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan message.TwapMessage, cfg.P2P.QueueSize),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	signer, err := security.NewSigner(cfg.Signing.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("loading signing key: %w", err)
	}

	rule, err := data.ParseRule(cfg.Aggregation.Rule)
	if err != nil {
		return nil, err
	}
	a.repo, err = data.NewRedisRepository(data.RedisOptions{
		URL:       cfg.Redis.URL,
		KeyPrefix: cfg.Redis.KeyPrefix,
		Rule:      rule,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating repository: %w", err)
	}
	a.cleanup = append(a.cleanup, a.repo.Close)

	if err := a.initIndexer(); err != nil {
		return nil, err
	}

	a.reputation = security.NewReputationManager(logger)
	a.gossip, err = p2p.New(p2p.Config{
		ListenAddress:     cfg.P2P.ListenAddress,
		BootstrapPeers:    cfg.P2P.Peers(),
		Topic:             cfg.P2P.Topic,
		HeartbeatInterval: cfg.P2P.HeartbeatInterval,
		MDNSServiceTag:    cfg.P2P.MDNSServiceTag,
		EnableDHT:         cfg.P2P.EnableDHT,
		DialTimeout:       cfg.P2P.DialTimeout,
		MaxPeers:          cfg.P2P.MaxPeers,
	}, security.NewValidator(cfg.P2P.MaxPeriod), a.reputation, logger)
	if err != nil {
		return nil, fmt.Errorf("creating p2p service: %w", err)
	}
	a.cleanup = append(a.cleanup, a.gossip.Close)

	a.oracle = oracle.NewService(a.repo, signer, a.queue, logger)
	a.server = api.NewServer(api.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		DefaultPeriod: cfg.Aggregation.DefaultPeriod,
	}, a.oracle, a.reputation, a.gossip, logger)

	if cfg.Publisher.Enabled() {
		a.publisher, err = scheduler.NewPublisher(a.oracle, scheduler.PublisherConfig{
			Schedule: cfg.Publisher.Schedule,
			Pairs:    cfg.Publisher.Pairs,
			Period:   cfg.Publisher.Period,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("creating publisher: %w", err)
		}
	}

	a.loops = []coreLoop{
		{name: "indexer", run: a.supervisor.Run},
		{name: "gossip", run: func(ctx context.Context) error {
			return a.gossip.Run(ctx, a.queue)
		}},
	}

	logger.Info("Node initialized",
		zap.String("peerID", a.gossip.ID().String()),
		zap.Strings("addrs", a.gossip.Addrs()),
		zap.String("publicKey", signer.PublicKey()),
		zap.String("rule", string(rule)))

	return a, nil
}

func (a *App) initIndexer() error {
	contract, err := stream.FeltFromHex(a.cfg.Stream.ContractAddress)
	if err != nil {
		return fmt.Errorf("contract address: %w", err)
	}
	selector, err := stream.FeltFromHex(a.cfg.Stream.Selector)
	if err != nil {
		return fmt.Errorf("event selector: %w", err)
	}

	a.client, err = stream.NewGRPCClient(a.cfg.Stream.URL, a.cfg.Stream.APIKey, a.logger)
	if err != nil {
		return err
	}
	a.cleanup = append(a.cleanup, a.client.Close)

	idx := indexer.New(a.client, a.repo, indexer.Config{
		ContractAddress: contract,
		Selector:        selector,
		StartingBlock:   a.cfg.Stream.StartingBlock,
		BatchSize:       a.cfg.Stream.BatchSize,
	}, a.logger)

	b := a.cfg.Indexer.Backoff
	a.supervisor = indexer.NewSupervisor(idx, indexer.BackoffConfig{
		InitialInterval:     b.InitialInterval,
		MaxInterval:         b.MaxInterval,
		Multiplier:          b.Multiplier,
		RandomizationFactor: b.RandomizationFactor,
		MaxRestarts:         b.MaxRestarts,
		ResetAfter:          b.ResetAfter,
	}, a.logger)
	return nil
}

// Server returns the HTTP front.
func (a *App) Server() *api.Server {
	return a.server
}

// Run starts the indexer supervisor, the gossip loop, the HTTP server and
// the publisher. It returns when ctx is cancelled or the server or publisher
// fails, and releases all resources before returning. A failing indexer or
// gossip loop is logged and leaves the other one running.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)

	for _, l := range a.loops {
		l := l
		g.Go(func() error {
			a.runLoop(ctx, l)
			return nil
		})
	}
	g.Go(func() error {
		return a.server.Start(ctx)
	})
	if a.publisher != nil {
		g.Go(func() error {
			return a.publisher.Run(ctx)
		})
	}

	a.logger.Info("Node running")
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("Node terminated with error", zap.Error(err))
		return err
	}
	a.logger.Info("Node stopped")
	return nil
}

func (a *App) runLoop(ctx context.Context, l coreLoop) {
	err := l.run(ctx)
	switch {
	case ctx.Err() != nil:
	case err != nil:
		a.logger.Error("Core loop terminated", zap.String("loop", l.name), zap.Error(err))
	default:
		a.logger.Warn("Core loop exited", zap.String("loop", l.name))
	}
}

// Close releases resources in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		if err := a.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.cleanup = nil
	return errors.Join(errs...)
}
