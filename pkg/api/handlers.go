package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"twap_oracle/pkg/oracle"
	"twap_oracle/pkg/security"
)

type healthResponse struct {
	Status          string `json:"status"`
	RedisConnection bool   `json:"redis_connection"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:          "up",
		RedisConnection: s.attestor.CheckConnection(r.Context()),
	})
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pairID := q.Get("pair_id")
	if pairID == "" {
		s.writeError(w, http.StatusBadRequest, "pair_id is required")
		return
	}

	period := s.defaultPeriod
	if raw := q.Get("period"); raw != "" {
		p, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid period %q", raw))
			return
		}
		period = p
	}

	msg, err := s.attestor.AttestAndBroadcast(r.Context(), pairID, period)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, msg)
	case errors.Is(err, oracle.ErrNoData):
		s.writeError(w, http.StatusNotFound, "No data found for pair "+pairID)
	case errors.Is(err, oracle.ErrSigning):
		s.logger.Error("Failed to sign TWAP", zap.String("pair", pairID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to sign TWAP: "+err.Error())
	default:
		s.logger.Error("Failed to compute TWAP", zap.String("pair", pairID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to compute TWAP: "+err.Error())
	}
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	scores := []security.PeerScore{}
	if s.peers != nil {
		scores = append(scores, s.peers.Snapshot()...)
	}
	s.writeJSON(w, http.StatusOK, scores)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.gossip == nil {
		s.writeError(w, http.StatusServiceUnavailable, "gossip service not running")
		return
	}
	s.writeJSON(w, http.StatusOK, s.gossip.Status())
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, errorResponse{Error: msg})
}
