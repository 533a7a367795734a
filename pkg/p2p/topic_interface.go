package p2p

import (
	"context"

	"github.com/libp2p/go-libp2p/core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"twap_oracle/pkg/p2p/message"
)

// Topic defines the methods required by a topic in the P2P network
type Topic interface {
	Publish(ctx context.Context, data []byte, opts ...pubsub.PubOpt) error
	ListPeers() []peer.ID
}

// Subscription is the receiving side of the topic.
type Subscription interface {
	Next(ctx context.Context) (*pubsub.Message, error)
	Cancel()
}

// Dialer opens connections to peers.
type Dialer interface {
	ID() peer.ID
	Connect(ctx context.Context, pi peer.AddrInfo) error
}

// AttestationValidator checks a received attestation.
type AttestationValidator interface {
	Validate(msg message.TwapMessage) error
}
