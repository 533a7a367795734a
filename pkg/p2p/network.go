package p2p

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"

	"twap_oracle/pkg/metrics"
	"twap_oracle/pkg/p2p/message"
	"twap_oracle/pkg/security"
)

const peerCountInterval = 30 * time.Second

type eventKind int

const (
	eventPeerFound eventKind = iota
	eventMessage
	eventDialed
)

// networkEvent is anything the transport or discovery layer hands to the loop.
type networkEvent struct {
	kind eventKind
	peer peer.AddrInfo
	msg  *pubsub.Message
	err  error
}

// Run is the service's event loop. Each iteration waits for whichever comes
// first: an attestation on inbound, which is published, or a network event,
// which is a discovered peer to dial, a gossip message to verify, or a dial
// result. select picks among ready cases at random, so neither source can
// starve the other.
//
// Run returns nil when ctx is cancelled and an error when the subscription
// fails. A closed inbound channel only disables publishing.
func (s *Service) Run(ctx context.Context, inbound <-chan message.TwapMessage) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	subErr := make(chan error, 1)
	go s.pumpMessages(ctx, subErr)

	dials := make(chan dialResult, s.cfg.EventQueueSize)
	for _, info := range s.bootstrap {
		s.startDial(ctx, info, dials)
	}

	ticker := time.NewTicker(peerCountInterval)
	defer ticker.Stop()

	s.status.setRunning(true)
	defer s.status.setRunning(false)

	s.logger.Info("Gossip loop started", zap.String("topic", s.cfg.Topic))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Gossip loop stopped")
			return nil

		case att, ok := <-inbound:
			if !ok {
				s.logger.Warn("Attestation queue closed, publishing disabled")
				inbound = nil
				continue
			}
			s.publish(ctx, att)

		case ev := <-s.events:
			switch ev.kind {
			case eventPeerFound:
				s.startDial(ctx, ev.peer, dials)
			case eventMessage:
				s.handleMessage(ev.msg)
			}

		case res := <-dials:
			s.handleDialResult(res)

		case err := <-subErr:
			s.status.recordError(err)
			return fmt.Errorf("gossip subscription: %w", err)

		case <-ticker.C:
			s.metrics.SetConnectedPeers(s.conns.connected())
		}
	}
}

// pumpMessages feeds subscription messages into the event queue.
func (s *Service) pumpMessages(ctx context.Context, subErr chan<- error) {
	for {
		msg, err := s.sub.Next(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				subErr <- err
			}
			return
		}
		select {
		case s.events <- networkEvent{kind: eventMessage, msg: msg}:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Service) publish(ctx context.Context, att message.TwapMessage) {
	payload, err := att.Marshal()
	if err != nil {
		s.logger.Error("Failed to encode attestation", zap.Error(err))
		return
	}

	if len(s.topic.ListPeers()) == 0 {
		s.logger.Warn("Publishing with no subscribed peers",
			zap.String("pair", att.PairID))
	}

	err = s.topic.Publish(ctx, payload)
	s.metrics.ObservePublish(err)
	s.status.recordPublish(err)
	if err != nil {
		s.logger.Error("Failed to publish attestation",
			zap.String("pair", att.PairID),
			zap.Error(err))
		return
	}

	s.logger.Info("Published attestation",
		zap.String("pair", att.PairID),
		zap.String("twap", att.TWAP),
		zap.Uint64("period", att.Period))
}

func (s *Service) startDial(ctx context.Context, info peer.AddrInfo, results chan<- dialResult) {
	if !s.conns.shouldDial(info.ID) {
		return
	}
	s.logger.Debug("Dialing peer", zap.String("peer", info.ID.String()))
	s.conns.dial(ctx, info, results)
}

func (s *Service) handleDialResult(res dialResult) {
	s.conns.done(res.peer)
	s.metrics.ObserveDial(res.err)

	if res.err != nil {
		s.logger.Warn("Failed to connect to peer",
			zap.String("peer", res.peer.String()),
			zap.Error(res.err))
		return
	}
	s.logger.Info("Connected to peer", zap.String("peer", res.peer.String()))
}

// handleMessage decodes and verifies a peer attestation. Failures are
// logged and never leave the loop.
func (s *Service) handleMessage(msg *pubsub.Message) {
	if msg.ReceivedFrom == s.self {
		return
	}
	from := msg.GetFrom()

	att, err := message.Unmarshal(msg.Data)
	if err != nil {
		s.metrics.ObserveReceived(metrics.VerdictMalformed)
		s.record(from, security.InvalidData)
		s.logger.Warn("Dropping undecodable gossip message",
			zap.String("from", from.String()),
			zap.Error(err))
		return
	}

	if err := s.validator.Validate(att); err != nil {
		s.metrics.ObserveReceived(metrics.VerdictRejected)
		s.record(from, security.InvalidData)
		s.logger.Warn("Rejected peer attestation",
			zap.String("from", from.String()),
			zap.String("pair", att.PairID),
			zap.String("twap", att.TWAP),
			zap.Error(err))
		return
	}

	s.metrics.ObserveReceived(metrics.VerdictAccepted)
	s.record(from, security.ValidData)
	s.logger.Info("Accepted peer attestation",
		zap.String("from", from.String()),
		zap.String("pair", att.PairID),
		zap.String("twap", att.TWAP),
		zap.Uint64("period", att.Period),
		zap.String("publicKey", att.PublicKey))
}

func (s *Service) record(from peer.ID, action security.ReputationAction) {
	if s.reputation != nil {
		s.reputation.Record(from, action)
	}
}
