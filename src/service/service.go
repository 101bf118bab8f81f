package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/catalyst-network/catalyst/src/ledger"
	"github.com/catalyst-network/catalyst/src/peers"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Node is the part of a node exposed by the Service.
type Node interface {
	GetStats() map[string]string
	GetPeers() []*peers.Peer
	GetReputation() map[uint32]int
	ScoreOf(peerID uint32) int
	AcceptedIndex() ledger.DeltaIndex
	LocalIndex() ledger.DeltaIndex
}

// Service serves a read-only HTTP API over a node.
type Service struct {
	sync.Mutex

	bindAddress string
	node        Node
	router      chi.Router
	server      *http.Server
	logger      *logrus.Entry
}

// NewService creates a Service. The metrics collected by gatherer are served
// under /metrics when it is not nil.
func NewService(bindAddress string, n Node, gatherer prometheus.Gatherer, logger *logrus.Entry) *Service {
	service := &Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
	}

	service.registerHandlers(gatherer)

	return service
}

func (s *Service) registerHandlers(gatherer prometheus.Gatherer) {
	s.logger.Debug("Registering Catalyst API handlers")

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.cors)

	r.Get("/stats", s.GetStats)
	r.Get("/peers", s.GetPeers)
	r.Get("/height", s.GetHeight)
	r.Route("/reputation", func(sr chi.Router) {
		sr.Get("/", s.GetReputation)
		sr.Get("/{id}", s.GetPeerReputation)
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.router = r
}

func (s *Service) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// Handler returns the router of the API, so it can be mounted on another
// server.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call that returns once
// Close is called.
func (s *Service) Serve() {
	s.Lock()
	s.server = &http.Server{
		Addr:    s.bindAddress,
		Handler: s.router,
	}
	server := s.server
	s.Unlock()

	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving Catalyst API")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Close stops the server started by Serve.
func (s *Service) Close(ctx context.Context) error {
	s.Lock()
	server := s.server
	s.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// GetStats returns the stats of the node.
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// GetPeers returns the peers known to the node.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetPeers())
}

// HeightInfo is the body of /height.
type HeightInfo struct {
	Accepted ledger.DeltaIndex
	Local    ledger.DeltaIndex
}

// GetHeight returns the delta height accepted from the network, and the
// height of the local ledger.
func (s *Service) GetHeight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HeightInfo{
		Accepted: s.node.AcceptedIndex(),
		Local:    s.node.LocalIndex(),
	})
}

// GetReputation returns the scores of every peer, keyed by peer id.
func (s *Service) GetReputation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetReputation())
}

// GetPeerReputation returns the score of a single peer.
func (s *Service) GetPeerReputation(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "id")

	id, err := strconv.ParseUint(param, 10, 32)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing id parameter %s", param)

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	writeJSON(w, map[string]int{"score": s.node.ScoreOf(uint32(id))})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(v)
}
