// Package api serves the node's HTTP boundary: health, signed TWAP queries,
// peer scores and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"twap_oracle/pkg/metrics"
	"twap_oracle/pkg/p2p"
	"twap_oracle/pkg/p2p/message"
	"twap_oracle/pkg/security"
)

// DefaultPeriod is the TWAP window used when a query omits period and the
// config sets none.
const DefaultPeriod uint64 = 3600

// Attestor builds and enqueues signed attestations.
type Attestor interface {
	AttestAndBroadcast(ctx context.Context, pairID string, period uint64) (message.TwapMessage, error)
	CheckConnection(ctx context.Context) bool
}

// PeerScores exposes the gossip reputation table.
type PeerScores interface {
	Snapshot() []security.PeerScore
}

// GossipStatus reports the state of the gossip service.
type GossipStatus interface {
	Status() p2p.Status
}

// Config holds the listen address and query defaults.
type Config struct {
	Host string
	Port int
	// DefaultPeriod of zero falls back to the package constant.
	DefaultPeriod uint64
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server is the HTTP front of the node.
type Server struct {
	attestor      Attestor
	peers         PeerScores
	gossip        GossipStatus
	defaultPeriod uint64
	logger        *zap.Logger
	metrics       *metrics.API
	router        *mux.Router
	srv           *http.Server
}

// NewServer builds the router. peers and gossip may be nil.
func NewServer(cfg Config, attestor Attestor, peers PeerScores, gossip GossipStatus, logger *zap.Logger) *Server {
	s := &Server{
		attestor:      attestor,
		peers:         peers,
		gossip:        gossip,
		defaultPeriod: cfg.DefaultPeriod,
		logger:        logger.Named("api"),
		metrics:       metrics.NewAPI(),
		router:        mux.NewRouter(),
	}
	if s.defaultPeriod == 0 {
		s.defaultPeriod = DefaultPeriod
	}
	s.routes()
	s.srv = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.observe)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/get_data", s.handleGetData).Methods(http.MethodGet)
	s.router.HandleFunc("/api/peers", s.handlePeers).Methods(http.MethodGet)
	s.router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	s.logger.Info("HTTP server listening", zap.String("address", lis.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
