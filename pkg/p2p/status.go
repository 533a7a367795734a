package p2p

import (
	"sync"
	"time"
)

// Status is a snapshot of the gossip service.
type Status struct {
	PeerID         string    `json:"peer_id"`
	Addrs          []string  `json:"addrs"`
	Topic          string    `json:"topic"`
	Running        bool      `json:"running"`
	ConnectedPeers int       `json:"connected_peers"`
	TopicPeers     int       `json:"topic_peers"`
	Published      uint64    `json:"published"`
	LastError      string    `json:"last_error,omitempty"`
	StartTime      time.Time `json:"start_time"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// statusTracker is written by the loop and read by HTTP handlers.
type statusTracker struct {
	mu        sync.RWMutex
	running   bool
	lastErr   error
	published uint64
	startTime time.Time
	updatedAt time.Time
}

func newStatusTracker() *statusTracker {
	now := time.Now()
	return &statusTracker{startTime: now, updatedAt: now}
}

func (t *statusTracker) setRunning(running bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = running
	t.updatedAt = time.Now()
}

func (t *statusTracker) recordPublish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.lastErr = err
	} else {
		t.published++
	}
	t.updatedAt = time.Now()
}

func (t *statusTracker) recordError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastErr = err
	t.updatedAt = time.Now()
}

// Status reports identity, liveness and peer counts.
func (s *Service) Status() Status {
	s.status.mu.RLock()
	st := Status{
		PeerID:    s.self.String(),
		Addrs:     s.Addrs(),
		Topic:     s.cfg.Topic,
		Running:   s.status.running,
		Published: s.status.published,
		StartTime: s.status.startTime,
		UpdatedAt: s.status.updatedAt,
	}
	if s.status.lastErr != nil {
		st.LastError = s.status.lastErr.Error()
	}
	s.status.mu.RUnlock()

	if s.host != nil {
		st.ConnectedPeers = len(s.host.Network().Peers())
	}
	if s.topic != nil {
		st.TopicPeers = len(s.topic.ListPeers())
	}
	return st
}
