package security

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"go.uber.org/zap"
)

const (
	// Reputation score bounds
	MinReputationScore = 0.0
	MaxReputationScore = 1.0
	InitialScore       = 0.5

	// Score adjustments
	ValidDataBonus     = 0.05
	InvalidDataPenalty = 0.1
)

// ReputationAction is the outcome that moves a peer's score.
type ReputationAction int

const (
	ValidData ReputationAction = iota
	InvalidData
)

// PeerScore tracks how a peer's attestations verified. Scores are
// informational; they never gate acceptance.
type PeerScore struct {
	ID          peer.ID   `json:"peer_id"`
	Score       float64   `json:"score"`
	ValidData   uint64    `json:"valid"`
	InvalidData uint64    `json:"invalid"`
	LastAction  time.Time `json:"last_action"`
}

// ReputationManager handles peer reputation tracking
type ReputationManager struct {
	scores map[peer.ID]*PeerScore
	logger *zap.Logger
	mu     sync.RWMutex
}

// NewReputationManager creates a new reputation manager
func NewReputationManager(logger *zap.Logger) *ReputationManager {
	return &ReputationManager{
		scores: make(map[peer.ID]*PeerScore),
		logger: logger.Named("reputation"),
	}
}

// Record applies the outcome of one verified or rejected attestation.
func (rm *ReputationManager) Record(peerID peer.ID, action ReputationAction) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	score, ok := rm.scores[peerID]
	if !ok {
		score = &PeerScore{ID: peerID, Score: InitialScore}
		rm.scores[peerID] = score
	}

	prev := score.Score
	switch action {
	case ValidData:
		score.Score += ValidDataBonus
		score.ValidData++
	case InvalidData:
		score.Score -= InvalidDataPenalty
		score.InvalidData++
	}
	score.Score = math.Max(MinReputationScore, math.Min(MaxReputationScore, score.Score))
	score.LastAction = time.Now()

	if score.Score == MinReputationScore && prev > MinReputationScore {
		rm.logger.Warn("Peer reputation reached the floor",
			zap.String("peerID", peerID.String()),
			zap.Uint64("invalid", score.InvalidData))
	}
}

// GetPeerReputation returns the peer's score, InitialScore for unknown peers.
func (rm *ReputationManager) GetPeerReputation(peerID peer.ID) float64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if score, ok := rm.scores[peerID]; ok {
		return score.Score
	}
	return InitialScore
}

// Snapshot returns a copy of all scores, highest first.
func (rm *ReputationManager) Snapshot() []PeerScore {
	rm.mu.RLock()
	out := make([]PeerScore, 0, len(rm.scores))
	for _, s := range rm.scores {
		out = append(out, *s)
	}
	rm.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	return out
}
