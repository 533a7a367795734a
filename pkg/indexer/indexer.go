// Package indexer follows the spot entry events of the oracle contract and
// stores them as price records.
package indexer

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"twap_oracle/pkg/data"
	"twap_oracle/pkg/metrics"
	"twap_oracle/pkg/stream"
)

// Config selects which events are indexed and where the stream starts.
type Config struct {
	ContractAddress stream.FieldElement
	Selector        stream.FieldElement
	StartingBlock   uint64
	BatchSize       uint64
}

// StreamError reports a failure of the stream connection.
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Indexer performs one streaming pass per Run call. It remembers the end
// cursor of the last processed batch so a later Run resumes after it.
type Indexer struct {
	client  stream.Client
	repo    data.Repository
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Indexer

	mu     sync.Mutex
	cursor *stream.Cursor
}

// New creates an indexer storing records through repo.
func New(client stream.Client, repo data.Repository, cfg Config, logger *zap.Logger) *Indexer {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1
	}
	return &Indexer{
		client:  client,
		repo:    repo,
		cfg:     cfg,
		logger:  logger.Named("indexer"),
		metrics: metrics.NewIndexer(),
	}
}

// Filter matches events emitted by the contract whose first key is the
// selector. Headers are weak so blocks without matches are not sent.
func (ix *Indexer) Filter() stream.Filter {
	contract := ix.cfg.ContractAddress
	f := stream.Filter{WeakHeader: true}
	f.AddEvent(stream.EventFilter{
		FromAddress: &contract,
		Keys:        []stream.FieldElement{ix.cfg.Selector},
	})
	return f
}

// Cursor returns the end cursor of the last processed batch, or nil.
func (ix *Indexer) Cursor() *stream.Cursor {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.cursor
}

func (ix *Indexer) setCursor(c *stream.Cursor) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.cursor = c
}

func (ix *Indexer) configuration() stream.Configuration {
	cfg := stream.Configuration{
		StreamID:  1,
		BatchSize: ix.cfg.BatchSize,
		Finality:  stream.FinalityPending,
		Filter:    ix.Filter(),
	}
	if c := ix.Cursor(); c != nil {
		cfg.StartingCursor = c
		return cfg
	}
	return cfg.WithStartingBlock(ix.cfg.StartingBlock)
}

// Run streams until ctx is cancelled or an error occurs. Stream failures
// return a *StreamError, store failures a *data.StoreError. Run never
// retries; restarts are the caller's decision.
func (ix *Indexer) Run(ctx context.Context) error {
	cfg := ix.configuration()

	st, err := ix.client.Open(ctx, cfg)
	if err != nil {
		return &StreamError{Op: "open", Err: err}
	}
	defer st.Close()

	from := ix.cfg.StartingBlock
	if cfg.StartingCursor != nil {
		from = cfg.StartingCursor.OrderKey + 1
	}
	ix.logger.Info("Indexer streaming",
		zap.Stringer("contract", ix.cfg.ContractAddress),
		zap.Stringer("selector", ix.cfg.Selector),
		zap.Uint64("fromBlock", from))

	for {
		msg, err := st.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &StreamError{Op: "receive", Err: err}
		}

		switch {
		case msg.Heartbeat:
			ix.metrics.ObserveHeartbeat()
		case msg.Invalidate != nil:
			ix.logger.Warn("Stream invalidated data, keeping stored records",
				zap.Uint64("cursor", msg.Invalidate.OrderKey))
		case msg.Data != nil:
			if err := ix.handleData(ctx, msg.Data); err != nil {
				return err
			}
		}
	}
}

func (ix *Indexer) handleData(ctx context.Context, d *stream.Data) error {
	for _, blk := range d.Blocks {
		ix.metrics.ObserveBlock(blk.Number)

		for _, ev := range blk.Events {
			if ev.FromAddress == nil || len(ev.Data) == 0 {
				ix.metrics.ObserveEvent(metrics.EventSkipped)
				continue
			}

			rec, ok := data.FromEvent(ev, blk.Number)
			if !ok {
				ix.metrics.ObserveEvent(metrics.EventSkipped)
				ix.logger.Debug("Skipping undecodable event",
					zap.Uint64("block", blk.Number),
					zap.Int("fields", len(ev.Data)))
				continue
			}

			if err := ix.repo.StoreSpotEntry(ctx, rec); err != nil {
				ix.metrics.ObserveEvent(metrics.EventFailed)
				return fmt.Errorf("block %d: %w", blk.Number, err)
			}
			ix.metrics.ObserveEvent(metrics.EventStored)

			ix.logger.Info("Indexed spot entry",
				zap.String("pair", rec.PairID),
				zap.String("price", rec.Price),
				zap.String("source", rec.Source),
				zap.String("publisher", rec.Publisher),
				zap.Uint64("block", blk.Number))
		}
	}

	if d.EndCursor != nil {
		ix.setCursor(d.EndCursor)
	}
	return nil
}
