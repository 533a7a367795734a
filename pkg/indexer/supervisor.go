package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"twap_oracle/pkg/metrics"
)

// Runner is a task the supervisor restarts.
type Runner interface {
	Run(ctx context.Context) error
}

// BackoffConfig is the restart policy.
type BackoffConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	// MaxRestarts of zero restarts forever.
	MaxRestarts int
	// ResetAfter is how long a run must last before the delay starts over.
	ResetAfter time.Duration
}

// DefaultBackoffConfig returns the default restart policy.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval:     time.Second,
		MaxInterval:         time.Minute,
		Multiplier:          2,
		RandomizationFactor: 0.2,
		ResetAfter:          5 * time.Minute,
	}
}

var errStopped = errors.New("indexer returned without error")

// Supervisor restarts a failing runner with exponential backoff and jitter.
type Supervisor struct {
	runner  Runner
	cfg     BackoffConfig
	logger  *zap.Logger
	metrics *metrics.Indexer
}

// NewSupervisor wraps runner with the given policy.
func NewSupervisor(runner Runner, cfg BackoffConfig, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		runner:  runner,
		cfg:     cfg,
		logger:  logger.Named("supervisor"),
		metrics: metrics.NewIndexer(),
	}
}

func (s *Supervisor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	b.MaxInterval = s.cfg.MaxInterval
	b.Multiplier = s.cfg.Multiplier
	b.RandomizationFactor = s.cfg.RandomizationFactor
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run keeps the runner going until ctx is cancelled, which returns nil, or
// until MaxRestarts is exhausted, which returns the last error.
func (s *Supervisor) Run(ctx context.Context) error {
	b := s.newBackOff()
	restarts := 0

	for {
		started := time.Now()
		err := s.runner.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = errStopped
		}

		if s.cfg.ResetAfter > 0 && time.Since(started) >= s.cfg.ResetAfter {
			b.Reset()
		}

		if s.cfg.MaxRestarts > 0 && restarts >= s.cfg.MaxRestarts {
			return fmt.Errorf("indexer failed after %d restarts: %w", restarts, err)
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return err
		}
		restarts++
		s.metrics.ObserveRestart()

		var streamErr *StreamError
		s.logger.Warn("Indexer stopped, restarting",
			zap.Error(err),
			zap.Bool("streamError", errors.As(err, &streamErr)),
			zap.Int("restart", restarts),
			zap.Duration("backoff", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
