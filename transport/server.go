// Package transport exposes a node's chain, mempool and peer pool over
// HTTP. Route handling only: all validation lives in package core.
package transport

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"corechain/core"
)

// Server wires a chi router against a node's shared state.
type Server struct {
	router       chi.Router
	chain        *core.Chain
	peers        *core.PeerPool
	status       *core.SyncStatus
	metrics      *core.Metrics
	nodeID       string
	blockchainID string
	protocol     string
	networking   string
	log          *logrus.Entry
}

// New builds the router and registers every route.
func New(chain *core.Chain, peers *core.PeerPool, status *core.SyncStatus, metrics *core.Metrics, nodeID, blockchainID, protocol, networking string, log *logrus.Entry) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		chain:        chain,
		peers:        peers,
		status:       status,
		metrics:      metrics,
		nodeID:       nodeID,
		blockchainID: blockchainID,
		protocol:     protocol,
		networking:   networking,
		log:          log,
	}
	s.routes()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/info", s.handleInfo)
	r.Get("/blockchain", s.handleBlockchain)
	r.Get("/latest-block", s.handleLatestBlock)
	r.Get("/blockinv", s.handleBlockInv)
	r.Get("/block/{hash}", s.handleBlockByHash)
	r.Get("/peers", s.handlePeers)
	r.Get("/pending-transactions", s.handlePendingTransactions)
	r.Get("/unconfirmed-transactions", s.handleUnconfirmedTransactions)
	r.Get("/sync-status", s.handleSyncStatus)
	r.Post("/block-recv", s.handleBlockRecv)
	r.Post("/tx-recv", s.handleTxRecv)
	r.Post("/ping", s.handlePing)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("Corechain Node"))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	height, _ := s.chain.Height()
	writeJSON(w, map[string]any{
		"protocol_version":   s.protocol,
		"networking_version": s.networking,
		"block_height":       height,
		"node_id":            s.nodeID,
		"blockchain_id":      s.blockchainID,
	})
}

func (s *Server) handleBlockchain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.chain.Blocks())
}

func (s *Server) handleLatestBlock(w http.ResponseWriter, r *http.Request) {
	tip, ok := s.chain.Tip()
	if !ok {
		writeJSON(w, struct{}{})
		return
	}
	writeJSON(w, tip)
}

func (s *Server) handleBlockInv(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.chain.BlockInv())
}

func (s *Server) handleBlockByHash(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	block, ok := s.chain.GetBlockFromHash(hash)
	if !ok {
		writeJSON(w, struct{}{})
		return
	}
	writeJSON(w, block)
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.peers.Active())
}

func (s *Server) handlePendingTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.chain.Mempool().Pool())
}

func (s *Server) handleUnconfirmedTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.chain.Mempool().UnconfirmedPool())
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status.Snapshot())
}

func (s *Server) handleBlockRecv(w http.ResponseWriter, r *http.Request) {
	var block core.Block
	if err := json.NewDecoder(r.Body).Decode(&block); err != nil {
		writeText(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if !s.chain.Add(block, true) {
		writeText(w, http.StatusOK, "Invalid block")
		return
	}
	writeText(w, http.StatusOK, "Received")
}

func (s *Server) handleTxRecv(w http.ResponseWriter, r *http.Request) {
	var tx core.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeText(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if !s.chain.Mempool().Add(tx) {
		writeText(w, http.StatusOK, "Invalid transaction")
		return
	}
	writeText(w, http.StatusOK, "received")
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Port int `json:"port"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if body.Port != 0 {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			addr := "http://" + net.JoinHostPort(host, strconv.Itoa(body.Port))
			go s.peers.Add(addr)
			s.log.WithField("peer", addr).Debug("recorded candidate peer from ping")
		}
	}
	writeText(w, http.StatusOK, "pong")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
