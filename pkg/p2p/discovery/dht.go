package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"
	"go.uber.org/zap"
)

const (
	dhtLookupTimeout = 30 * time.Second
	// DefaultLookupInterval is how often the rendezvous is searched for peers.
	DefaultLookupInterval = time.Minute
)

// DHTDiscovery implements rendezvous discovery over a Kademlia DHT. Nodes
// advertise the gossip topic name and look up others advertising it.
type DHTDiscovery struct {
	host       host.Host
	dht        *dht.IpfsDHT
	rendezvous string
	interval   time.Duration
	handler    PeerHandler
	logger     *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewDHTDiscovery creates a new DHT-based discovery service
func NewDHTDiscovery(h host.Host, rendezvous string, bootstrap []peer.AddrInfo, handler PeerHandler, logger *zap.Logger) (*DHTDiscovery, error) {
	ctx, cancel := context.WithCancel(context.Background())

	kadDHT, err := dht.New(ctx, h,
		dht.Mode(dht.ModeAutoServer),
		dht.BootstrapPeers(bootstrap...),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating DHT: %w", err)
	}

	return &DHTDiscovery{
		host:       h,
		dht:        kadDHT,
		rendezvous: rendezvous,
		interval:   DefaultLookupInterval,
		handler:    handler,
		logger:     logger.Named("dht").With(TypeDHT.Field()),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start bootstraps the DHT and begins advertising and lookups
func (d *DHTDiscovery) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("DHT discovery already running")
	}

	if err := d.dht.Bootstrap(d.ctx); err != nil {
		return fmt.Errorf("bootstrapping DHT: %w", err)
	}

	rd := drouting.NewRoutingDiscovery(d.dht)
	dutil.Advertise(d.ctx, rd, d.rendezvous)

	d.wg.Add(1)
	go d.lookupLoop(rd)

	d.running = true
	d.logger.Info("DHT discovery started", zap.String("rendezvous", d.rendezvous))
	return nil
}

// Stop halts DHT discovery
func (d *DHTDiscovery) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	d.cancel()
	d.wg.Wait()
	d.running = false

	if err := d.dht.Close(); err != nil {
		return fmt.Errorf("closing DHT: %w", err)
	}
	d.logger.Info("DHT discovery stopped")
	return nil
}

func (d *DHTDiscovery) lookupLoop(rd *drouting.RoutingDiscovery) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		d.findPeers(rd)

		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *DHTDiscovery) findPeers(rd *drouting.RoutingDiscovery) {
	ctx, cancel := context.WithTimeout(d.ctx, dhtLookupTimeout)
	defer cancel()

	peers, err := rd.FindPeers(ctx, d.rendezvous)
	if err != nil {
		d.logger.Debug("Rendezvous lookup failed", zap.Error(err))
		return
	}

	for p := range peers {
		if p.ID == d.host.ID() || len(p.Addrs) == 0 {
			continue // Skip self
		}
		d.handler.HandlePeer(p)
	}
}
