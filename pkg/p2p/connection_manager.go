package p2p

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

const defaultDialTimeout = 10 * time.Second

// dialResult reports the outcome of one dial back to the event loop.
type dialResult struct {
	peer peer.ID
	err  error
}

// connectionManager tracks dials started by the event loop. It is owned by
// the loop goroutine and needs no locking.
type connectionManager struct {
	dialer    Dialer
	timeout   time.Duration
	maxPeers  int
	connected func() int
	inflight  map[peer.ID]struct{}
}

func newConnectionManager(d Dialer, timeout time.Duration, maxPeers int, connected func() int) *connectionManager {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	if connected == nil {
		connected = func() int { return 0 }
	}
	return &connectionManager{
		dialer:    d,
		timeout:   timeout,
		maxPeers:  maxPeers,
		connected: connected,
		inflight:  make(map[peer.ID]struct{}),
	}
}

// shouldDial reports whether a dial to id should start now.
func (cm *connectionManager) shouldDial(id peer.ID) bool {
	if id == cm.dialer.ID() {
		return false
	}
	if _, busy := cm.inflight[id]; busy {
		return false
	}
	return cm.maxPeers <= 0 || cm.connected() < cm.maxPeers
}

// dial connects in the background and delivers the result on results.
// Connect blocks for the whole handshake, so it does not run on the loop.
func (cm *connectionManager) dial(ctx context.Context, info peer.AddrInfo, results chan<- dialResult) {
	cm.inflight[info.ID] = struct{}{}

	go func() {
		dctx, cancel := context.WithTimeout(ctx, cm.timeout)
		defer cancel()

		err := cm.dialer.Connect(dctx, info)
		select {
		case results <- dialResult{peer: info.ID, err: err}:
		case <-ctx.Done():
		}
	}()
}

// done clears the in-flight mark for id.
func (cm *connectionManager) done(id peer.ID) {
	delete(cm.inflight, id)
}
