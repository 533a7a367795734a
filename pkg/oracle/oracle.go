// Package oracle turns stored prices into signed attestations and hands them
// to the gossip layer.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"twap_oracle/pkg/data"
	"twap_oracle/pkg/metrics"
	"twap_oracle/pkg/p2p/message"
	"twap_oracle/pkg/security"
)

var (
	// ErrNoData means the window held no records for the pair.
	ErrNoData = errors.New("no data found")
	// ErrSigning wraps signer failures.
	ErrSigning = errors.New("signing twap")
)

// Signer produces attestation signatures.
type Signer interface {
	SignTWAP(value float64) (string, error)
	PublicKey() string
}

// Service builds attestations. It is safe for concurrent use.
type Service struct {
	repo   data.Repository
	signer Signer
	queue  chan<- message.TwapMessage
	logger *zap.Logger
	api    *metrics.API
	gossip *metrics.Gossip
	now    func() time.Time
}

// NewService creates a Service that enqueues attestations on queue.
func NewService(repo data.Repository, signer Signer, queue chan<- message.TwapMessage, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		signer: signer,
		queue:  queue,
		logger: logger.Named("oracle"),
		api:    metrics.NewAPI(),
		gossip: metrics.NewGossip(),
		now:    time.Now,
	}
}

// Attest computes the pair's TWAP over the trailing period and signs it.
// It returns ErrNoData when the window is empty.
func (s *Service) Attest(ctx context.Context, pairID string, period uint64) (message.TwapMessage, error) {
	twap, ok, err := s.repo.ComputeTWAP(ctx, pairID, period)
	if err != nil {
		return message.TwapMessage{}, fmt.Errorf("computing twap: %w", err)
	}
	if !ok {
		return message.TwapMessage{}, fmt.Errorf("%w for pair %s", ErrNoData, pairID)
	}

	sig, err := s.signer.SignTWAP(twap)
	s.api.ObserveSign(err)
	if err != nil {
		return message.TwapMessage{}, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	return message.TwapMessage{
		PairID:    pairID,
		TWAP:      security.CanonicalTWAP(twap),
		Period:    period,
		Signature: sig,
		Timestamp: uint64(s.now().Unix()),
		PublicKey: s.signer.PublicKey(),
	}, nil
}

// Broadcast queues msg for the gossip loop without blocking. It reports
// false when the queue is full and the attestation was dropped.
func (s *Service) Broadcast(msg message.TwapMessage) bool {
	select {
	case s.queue <- msg:
		return true
	default:
		s.gossip.ObserveDropped()
		s.logger.Warn("Broadcast queue full, dropping attestation",
			zap.String("pair", msg.PairID),
			zap.String("twap", msg.TWAP))
		return false
	}
}

// AttestAndBroadcast is Attest followed by Broadcast.
func (s *Service) AttestAndBroadcast(ctx context.Context, pairID string, period uint64) (message.TwapMessage, error) {
	msg, err := s.Attest(ctx, pairID, period)
	if err != nil {
		return message.TwapMessage{}, err
	}
	s.Broadcast(msg)
	return msg, nil
}

// CheckConnection reports store liveness.
func (s *Service) CheckConnection(ctx context.Context) bool {
	if err := s.repo.CheckConnection(ctx); err != nil {
		s.logger.Warn("Store health check failed", zap.Error(err))
		return false
	}
	return true
}
