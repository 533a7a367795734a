// Package p2p broadcasts signed TWAP attestations over libp2p gossipsub and
// verifies attestations received from peers.
package p2p

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"twap_oracle/pkg/metrics"
	"twap_oracle/pkg/p2p/discovery"
	"twap_oracle/pkg/security"
)

const (
	// DefaultTopic carries TWAP attestations.
	DefaultTopic = "twap-updates"

	defaultHeartbeat  = 10 * time.Second
	defaultEventQueue = 256
)

// Config holds the gossip network settings.
type Config struct {
	ListenAddress     string
	BootstrapPeers    []string
	Topic             string
	HeartbeatInterval time.Duration
	MDNSServiceTag    string
	EnableDHT         bool
	DialTimeout       time.Duration
	MaxPeers          int
	EventQueueSize    int
}

// Service owns the libp2p host, the gossip topic and peer discovery. After
// Run starts, only the Run goroutine publishes or dials.
type Service struct {
	cfg Config

	host  host.Host
	ps    *pubsub.PubSub
	topic Topic
	sub   Subscription

	discoveries []discovery.Discovery
	bootstrap   []peer.AddrInfo

	self       peer.ID
	events     chan networkEvent
	conns      *connectionManager
	validator  AttestationValidator
	reputation *security.ReputationManager
	metrics    *metrics.Gossip
	status     *statusTracker
	logger     *zap.Logger

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New builds the host with a fresh Ed25519 identity over TCP, Noise and
// Yamux, joins the topic with strict message signing, and starts discovery.
// Bootstrap peers are dialed once Run starts.
func New(cfg Config, validator AttestationValidator, reputation *security.ReputationManager, logger *zap.Logger) (*Service, error) {
	cfg = withDefaults(cfg)
	logger = logger.Named("p2p")

	listen, err := multiaddr.NewMultiaddr(cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", cfg.ListenAddress, err)
	}
	bootstrap, err := discovery.ParseBootstrapPeers(cfg.BootstrapPeers)
	if err != nil {
		return nil, err
	}

	privKey, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating peer identity: %w", err)
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrs(listen),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	params := pubsub.DefaultGossipSubParams()
	params.HeartbeatInterval = cfg.HeartbeatInterval
	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithGossipSubParams(params),
		pubsub.WithMessageSignaturePolicy(pubsub.StrictSign),
	)
	if err != nil {
		cancel()
		h.Close()
		return nil, fmt.Errorf("failed to create pubsub: %w", err)
	}

	topic, err := ps.Join(cfg.Topic)
	if err != nil {
		cancel()
		h.Close()
		return nil, fmt.Errorf("joining topic %s: %w", cfg.Topic, err)
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		cancel()
		h.Close()
		return nil, fmt.Errorf("subscribing to topic %s: %w", cfg.Topic, err)
	}

	s := newService(cfg, h.ID(), topic, sub, h, validator, reputation, logger)
	s.host = h
	s.ps = ps
	s.bootstrap = bootstrap
	s.cancel = cancel
	s.conns.connected = func() int { return len(h.Network().Peers()) }

	s.discoveries = append(s.discoveries, discovery.NewMDNSDiscovery(h, cfg.MDNSServiceTag, s, logger))
	if cfg.EnableDHT {
		d, err := discovery.NewDHTDiscovery(h, cfg.Topic, bootstrap, s, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.discoveries = append(s.discoveries, d)
	}
	for _, d := range s.discoveries {
		if err := d.Start(); err != nil {
			s.Close()
			return nil, fmt.Errorf("starting discovery: %w", err)
		}
	}

	logger.Info("P2P host started",
		zap.String("peerID", h.ID().String()),
		zap.Any("listenAddrs", h.Addrs()),
		zap.String("topic", cfg.Topic),
		zap.Int("bootstrapPeers", len(bootstrap)))

	return s, nil
}

// newService assembles a Service around already built collaborators.
func newService(cfg Config, self peer.ID, topic Topic, sub Subscription, d Dialer, validator AttestationValidator, reputation *security.ReputationManager, logger *zap.Logger) *Service {
	cfg = withDefaults(cfg)
	return &Service{
		cfg:        cfg,
		topic:      topic,
		sub:        sub,
		self:       self,
		events:     make(chan networkEvent, cfg.EventQueueSize),
		conns:      newConnectionManager(d, cfg.DialTimeout, cfg.MaxPeers, nil),
		validator:  validator,
		reputation: reputation,
		metrics:    metrics.NewGossip(),
		status:     newStatusTracker(),
		logger:     logger,
		cancel:     func() {},
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if cfg.MDNSServiceTag == "" {
		cfg.MDNSServiceTag = "twap-oracle"
	}
	if cfg.EventQueueSize <= 0 {
		cfg.EventQueueSize = defaultEventQueue
	}
	return cfg
}

// ID returns the local peer identity.
func (s *Service) ID() peer.ID {
	return s.self
}

// Addrs returns the host's listen addresses with the /p2p component, the
// form other nodes accept as bootstrap peers.
func (s *Service) Addrs() []string {
	if s.host == nil {
		return nil
	}
	info := peer.AddrInfo{ID: s.host.ID(), Addrs: s.host.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

// HandlePeer queues a discovered peer for the event loop. It never blocks;
// when the queue is full the peer is dropped and will be found again.
func (s *Service) HandlePeer(info peer.AddrInfo) {
	select {
	case s.events <- networkEvent{kind: eventPeerFound, peer: info}:
	default:
		s.logger.Debug("Event queue full, skipping discovered peer",
			zap.String("peer", info.ID.String()))
	}
}

// Close stops discovery, leaves the topic and shuts the host down.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Info("Stopping P2P host")

		for _, d := range s.discoveries {
			if derr := d.Stop(); derr != nil {
				s.logger.Warn("Failed to stop discovery", zap.Error(derr))
			}
		}

		if s.sub != nil {
			s.sub.Cancel()
		}
		if t, ok := s.topic.(*pubsub.Topic); ok {
			if terr := t.Close(); terr != nil {
				s.logger.Debug("Failed to close topic", zap.Error(terr))
			}
		}

		s.cancel()
		if s.host != nil {
			err = s.host.Close()
		}
	})
	return err
}
