// Package discovery finds gossip peers: mDNS on the local network and an
// optional Kademlia DHT rendezvous.
package discovery

import (
	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"
)

// Discovery defines the basic interface for peer discovery mechanisms
type Discovery interface {
	Start() error
	Stop() error
}

// PeerHandler receives discovered peers. Implementations must not block.
type PeerHandler interface {
	HandlePeer(info peer.AddrInfo)
}

// DiscoveryType names a discovery mechanism in logs.
type DiscoveryType string

const (
	TypeDHT  DiscoveryType = "dht"
	TypeMDNS DiscoveryType = "mdns"
)

// Field tags a log entry with the mechanism that produced it.
func (t DiscoveryType) Field() zap.Field {
	return zap.String("via", string(t))
}
