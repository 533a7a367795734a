package discovery

import (
	"fmt"
	"strings"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// ParseBootstrapPeers converts multiaddr strings carrying a /p2p/<id>
// component to peer info. Blank entries are skipped.
func ParseBootstrapPeers(addrs []string) ([]peer.AddrInfo, error) {
	peers := make([]peer.AddrInfo, 0, len(addrs))

	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}

		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid bootstrap address %s: %w", addr, err)
		}

		info, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			return nil, fmt.Errorf("invalid peer address %s: %w", addr, err)
		}

		peers = append(peers, *info)
	}

	return peers, nil
}

// SplitPeerList splits a comma separated peer list, dropping empty entries.
func SplitPeerList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
