package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/balance"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/blockchain"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/swap"
)

// ServerConfig wires the HTTP server
type ServerConfig struct {
	Port     int
	Swap     *swap.Service
	Balances *balance.Service
	Pool     *blockchain.ClientPool
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// Server exposes the swap service over HTTP and WebSocket
type Server struct {
	httpServer *http.Server
	swap       *swap.Service
	balances   *balance.Service
	pool       *blockchain.ClientPool
	logger     *observability.Logger
	metrics    *observability.Metrics
	hub        *Hub
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Swap == nil {
		return nil, fmt.Errorf("swap service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger("info", "json")
	}

	s := &Server{
		swap:     cfg.Swap,
		balances: cfg.Balances,
		pool:     cfg.Pool,
		logger:   logger,
		metrics:  cfg.Metrics,
		hub:      NewHub(logger),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/v1/tokens", s.handleTokens)
	mux.HandleFunc("/v1/quote", s.handleQuote)
	mux.HandleFunc("/v1/swap/build", s.handleBuild)
	mux.HandleFunc("/v1/swap/submit", s.handleSubmit)
	mux.HandleFunc("/v1/allowance", s.handleAllowance)
	mux.HandleFunc("/v1/balances", s.handleBalances)
	mux.HandleFunc("/v1/ws", s.hub.HandleUpgrade)
	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics.Handler())
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Lifecycle transitions stream to every connected client
	cfg.Swap.OnStateChange(func(from, to swap.State) {
		s.hub.Broadcast(StateMessage{
			Type: "state",
			From: from.String(),
			To:   to.String(),
		})
	})
	return s, nil
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.logger.LogInfo(context.Background(), "HTTP server listening", "address", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains connections and closes the WebSocket hub
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// BroadcastHead pushes a new chain head to WebSocket clients
func (s *Server) BroadcastHead(number uint64) {
	s.hub.Broadcast(HeadMessage{Type: "head", BlockNumber: number})
}

// errorResponse is the JSON error envelope. Phase distinguishes failures
// that happened before any transaction reached the network from failures
// decided on chain.
type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Phase  string `json:"phase,omitempty"`
	TxHash string `json:"txHash,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: errorCode(err)})
}

// writeSwapError adds the failure phase so callers can tell a harmless
// rejected attempt from one whose transaction reached the network. Any
// outcome with a hash reports post-submission and carries the hash: the
// user must never be told to retry a swap that may have landed.
func writeSwapError(w http.ResponseWriter, status int, outcome swap.Outcome, err error) {
	if outcome.Err == nil {
		outcome.Err = err
	}
	resp := errorResponse{
		Error: err.Error(),
		Code:  errorCode(err),
		Phase: outcome.Phase().String(),
	}
	if outcome.TxHash != (common.Hash{}) {
		resp.TxHash = outcome.TxHash.Hex()
	}
	writeJSON(w, status, resp)
}
