package discovery

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"go.uber.org/zap"
)

// MDNSDiscovery handles local network peer discovery using mDNS
type MDNSDiscovery struct {
	host       host.Host
	serviceTag string
	handler    PeerHandler
	logger     *zap.Logger
	service    mdns.Service

	localPeers map[peer.ID]time.Time
	mu         sync.RWMutex
	running    bool
}

// NewMDNSDiscovery creates a new MDNS discovery service
func NewMDNSDiscovery(h host.Host, serviceTag string, handler PeerHandler, logger *zap.Logger) *MDNSDiscovery {
	return &MDNSDiscovery{
		host:       h,
		serviceTag: serviceTag,
		handler:    handler,
		logger:     logger.Named("mdns").With(TypeMDNS.Field()),
		localPeers: make(map[peer.ID]time.Time),
	}
}

// Start begins local peer discovery
func (m *MDNSDiscovery) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	m.service = mdns.NewMdnsService(m.host, m.serviceTag, m)
	if err := m.service.Start(); err != nil {
		return err
	}

	m.running = true
	m.logger.Info("MDNS discovery started",
		zap.String("service_tag", m.serviceTag))
	return nil
}

// Stop halts local peer discovery
func (m *MDNSDiscovery) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	err := m.service.Close()
	m.running = false
	m.logger.Info("MDNS discovery stopped")
	return err
}

// HandlePeerFound implements the mdns.Notifee interface
func (m *MDNSDiscovery) HandlePeerFound(info peer.AddrInfo) {
	// Skip self-discovery
	if info.ID == m.host.ID() {
		return
	}

	m.mu.Lock()
	m.localPeers[info.ID] = time.Now()
	m.mu.Unlock()

	m.logger.Debug("Discovered peer",
		zap.String("peer", info.ID.String()),
		zap.Int("addrs", len(info.Addrs)))
	m.handler.HandlePeer(info)
}

// GetLocalPeers returns all peers seen on the local network
func (m *MDNSDiscovery) GetLocalPeers() []peer.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	peers := make([]peer.ID, 0, len(m.localPeers))
	for id := range m.localPeers {
		peers = append(peers, id)
	}
	return peers
}
