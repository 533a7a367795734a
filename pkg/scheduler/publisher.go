package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"twap_oracle/pkg/oracle"
	"twap_oracle/pkg/p2p/message"
)

// Attestor signs and enqueues attestations.
type Attestor interface {
	AttestAndBroadcast(ctx context.Context, pairID string, period uint64) (message.TwapMessage, error)
}

// PublisherConfig lists the pairs attested on each tick.
type PublisherConfig struct {
	Schedule string
	Pairs    []string
	Period   uint64
}

// NewPublisher returns a scheduler with one publish task per pair.
func NewPublisher(attestor Attestor, cfg PublisherConfig, logger *zap.Logger) (*Scheduler, error) {
	s := NewScheduler(len(cfg.Pairs), logger)
	for _, pair := range cfg.Pairs {
		if err := s.ScheduleTask(PublishTask(attestor, pair, cfg.Period, cfg.Schedule, s.logger)); err != nil {
			return nil, fmt.Errorf("scheduling %s: %w", pair, err)
		}
	}
	return s, nil
}

// PublishTask attests pairID over period and hands the result to gossip.
// An empty window is not a failure.
func PublishTask(attestor Attestor, pairID string, period uint64, schedule string, logger *zap.Logger) *Task {
	return &Task{
		ID:       "publish:" + pairID,
		Schedule: schedule,
		ExecutionFn: func(ctx context.Context) error {
			msg, err := attestor.AttestAndBroadcast(ctx, pairID, period)
			if errors.Is(err, oracle.ErrNoData) {
				logger.Debug("No data to publish", zap.String("pair", pairID))
				return nil
			}
			if err != nil {
				return err
			}
			logger.Info("Published attestation",
				zap.String("pair", pairID),
				zap.String("twap", msg.TWAP),
				zap.Uint64("period", period))
			return nil
		},
	}
}
