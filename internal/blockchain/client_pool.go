package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/resilience"
)

// RPCEndpoint represents a single Ethereum RPC endpoint
type RPCEndpoint struct {
	URL     string
	Client  *ethclient.Client
	healthy atomic.Bool
}

// ClientPool manages multiple RPC endpoints with health tracking and
// round-robin failover. All chain reads and writes in the service go
// through the pool.
type ClientPool struct {
	endpoints      []*RPCEndpoint
	current        int
	mu             sync.RWMutex
	logger         *observability.Logger
	metrics        *observability.Metrics
	limiter        *resilience.RateLimiter
	healthCheckTTL time.Duration
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// ClientPoolConfig holds client pool configuration
type ClientPoolConfig struct {
	URLs           []string
	Logger         *observability.Logger
	Metrics        *observability.Metrics
	HealthCheckTTL time.Duration
	// RequestsPerSecond throttles calls across all endpoints. Zero disables
	// throttling.
	RequestsPerSecond float64
}

// NewClientPool creates a new RPC client pool
func NewClientPool(cfg ClientPoolConfig) (*ClientPool, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint is required")
	}

	if cfg.HealthCheckTTL == 0 {
		cfg.HealthCheckTTL = 30 * time.Second
	}

	endpoints := make([]*RPCEndpoint, 0, len(cfg.URLs))

	for _, url := range cfg.URLs {
		endpoint := &RPCEndpoint{URL: url}

		client, err := ethclient.Dial(url)
		if err != nil {
			cfg.Logger.LogError(context.Background(), "failed to connect to RPC endpoint", err,
				"url", url,
			)
			endpoint.healthy.Store(false)
			endpoints = append(endpoints, endpoint)
			continue
		}

		endpoint.Client = client
		endpoint.healthy.Store(true)
		endpoints = append(endpoints, endpoint)

		cfg.Logger.Info("connected to RPC endpoint", "url", url)
	}

	hasHealthy := false
	for _, ep := range endpoints {
		if ep.healthy.Load() {
			hasHealthy = true
			break
		}
	}
	if !hasHealthy {
		return nil, fmt.Errorf("no healthy RPC endpoints available")
	}

	var limiter *resilience.RateLimiter
	if cfg.RequestsPerSecond > 0 {
		limiter = resilience.NewRateLimiter(cfg.RequestsPerSecond, int(cfg.RequestsPerSecond))
	}

	pool := &ClientPool{
		endpoints:      endpoints,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		limiter:        limiter,
		healthCheckTTL: cfg.HealthCheckTTL,
		stopCh:         make(chan struct{}),
	}

	go pool.runHealthChecks()

	return pool, nil
}

// GetClient returns the next healthy client using round-robin selection
func (cp *ClientPool) GetClient() (*ethclient.Client, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	attempts := 0
	for attempts < len(cp.endpoints) {
		endpoint := cp.endpoints[cp.current]
		cp.current = (cp.current + 1) % len(cp.endpoints)
		attempts++

		if endpoint.healthy.Load() && endpoint.Client != nil {
			return endpoint.Client, nil
		}
	}

	return nil, fmt.Errorf("no healthy RPC endpoints available")
}

// MarkUnhealthy marks an endpoint as unhealthy
func (cp *ClientPool) MarkUnhealthy(url string) {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	for _, endpoint := range cp.endpoints {
		if endpoint.URL == url {
			wasHealthy := endpoint.healthy.Swap(false)
			if wasHealthy {
				cp.logger.Warn("marking RPC endpoint as unhealthy", "url", url)
				if cp.metrics != nil {
					cp.metrics.RecordRPCEndpointHealth(context.Background(), url, false)
				}
			}
			return
		}
	}
}

func (cp *ClientPool) runHealthChecks() {
	ticker := time.NewTicker(cp.healthCheckTTL)
	defer ticker.Stop()

	for {
		select {
		case <-cp.stopCh:
			return
		case <-ticker.C:
			cp.checkAllEndpoints()
		}
	}
}

func (cp *ClientPool) checkAllEndpoints() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cp.mu.RLock()
	endpoints := cp.endpoints
	cp.mu.RUnlock()

	var wg sync.WaitGroup
	for _, endpoint := range endpoints {
		wg.Add(1)
		go func(ep *RPCEndpoint) {
			defer wg.Done()
			cp.checkEndpoint(ctx, ep)
		}(endpoint)
	}
	wg.Wait()
}

func (cp *ClientPool) checkEndpoint(ctx context.Context, endpoint *RPCEndpoint) {
	if endpoint.Client == nil {
		client, err := ethclient.Dial(endpoint.URL)
		if err != nil {
			endpoint.healthy.Store(false)
			if cp.metrics != nil {
				cp.metrics.RecordRPCEndpointHealth(ctx, endpoint.URL, false)
			}
			return
		}
		endpoint.Client = client
		cp.logger.Info("reconnected to RPC endpoint", "url", endpoint.URL)
	}

	_, err := endpoint.Client.BlockNumber(ctx)
	if err != nil {
		// A cancelled health check says nothing about the endpoint
		if ctx.Err() != nil {
			cp.logger.Debug("RPC health check cancelled",
				"url", endpoint.URL,
				"error", err.Error())
			return
		}

		wasHealthy := endpoint.healthy.Swap(false)
		if wasHealthy {
			cp.logger.LogError(ctx, "RPC endpoint health check failed", err,
				"url", endpoint.URL,
			)
		}
		if cp.metrics != nil {
			cp.metrics.RecordRPCEndpointHealth(ctx, endpoint.URL, false)
		}

		if endpoint.Client != nil {
			endpoint.Client.Close()
			endpoint.Client = nil
		}
		return
	}

	wasUnhealthy := !endpoint.healthy.Swap(true)
	if wasUnhealthy {
		cp.logger.Info("RPC endpoint is now healthy", "url", endpoint.URL)
	}
	if cp.metrics != nil {
		cp.metrics.RecordRPCEndpointHealth(ctx, endpoint.URL, true)
	}
}

// HealthyEndpointCount returns the number of healthy endpoints
func (cp *ClientPool) HealthyEndpointCount() int {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	count := 0
	for _, endpoint := range cp.endpoints {
		if endpoint.healthy.Load() {
			count++
		}
	}
	return count
}

// EndpointStatus returns health status of all endpoints by URL
func (cp *ClientPool) EndpointStatus() map[string]bool {
	cp.mu.RLock()
	defer cp.mu.RUnlock()

	status := make(map[string]bool, len(cp.endpoints))
	for _, endpoint := range cp.endpoints {
		status[endpoint.URL] = endpoint.healthy.Load()
	}
	return status
}

// Close stops health checks and closes all client connections
func (cp *ClientPool) Close() {
	cp.stopOnce.Do(func() { close(cp.stopCh) })

	cp.mu.Lock()
	defer cp.mu.Unlock()

	for _, endpoint := range cp.endpoints {
		if endpoint.Client != nil {
			endpoint.Client.Close()
		}
	}

	cp.logger.Info("closed all RPC client connections")
}

func (cp *ClientPool) throttle(ctx context.Context) error {
	if cp.limiter == nil {
		return nil
	}
	return cp.limiter.Wait(ctx)
}

// BlockNumber returns the latest block number from a healthy endpoint
func (cp *ClientPool) BlockNumber(ctx context.Context) (uint64, error) {
	if err := cp.throttle(ctx); err != nil {
		return 0, err
	}
	client, err := cp.GetClient()
	if err != nil {
		return 0, err
	}
	return client.BlockNumber(ctx)
}

// ChainID returns the chain ID from a healthy endpoint
func (cp *ClientPool) ChainID(ctx context.Context) (*big.Int, error) {
	if err := cp.throttle(ctx); err != nil {
		return nil, err
	}
	client, err := cp.GetClient()
	if err != nil {
		return nil, err
	}
	return client.ChainID(ctx)
}

// HeaderByNumber returns a block header. nil number means latest.
func (cp *ClientPool) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if err := cp.throttle(ctx); err != nil {
		return nil, err
	}
	client, err := cp.GetClient()
	if err != nil {
		return nil, err
	}
	return client.HeaderByNumber(ctx, number)
}

// CodeAt returns contract code. Together with CallContract this satisfies
// bind.ContractCaller so bound contracts can read through the pool.
func (cp *ClientPool) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	if err := cp.throttle(ctx); err != nil {
		return nil, err
	}
	client, err := cp.GetClient()
	if err != nil {
		return nil, err
	}
	return client.CodeAt(ctx, contract, blockNumber)
}

// CallContract executes a read-only contract call
func (cp *ClientPool) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := cp.throttle(ctx); err != nil {
		return nil, err
	}
	client, err := cp.GetClient()
	if err != nil {
		return nil, err
	}
	return client.CallContract(ctx, msg, blockNumber)
}

// BalanceAt returns the native balance of an account
func (cp *ClientPool) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if err := cp.throttle(ctx); err != nil {
		return nil, err
	}
	client, err := cp.GetClient()
	if err != nil {
		return nil, err
	}
	return client.BalanceAt(ctx, account, blockNumber)
}

// PendingNonceAt returns the next nonce for an account including pending txs
func (cp *ClientPool) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if err := cp.throttle(ctx); err != nil {
		return 0, err
	}
	client, err := cp.GetClient()
	if err != nil {
		return 0, err
	}
	return client.PendingNonceAt(ctx, account)
}

// SuggestGasTipCap returns the suggested priority fee
func (cp *ClientPool) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if err := cp.throttle(ctx); err != nil {
		return nil, err
	}
	client, err := cp.GetClient()
	if err != nil {
		return nil, err
	}
	return client.SuggestGasTipCap(ctx)
}

// SendTransaction broadcasts a signed transaction
func (cp *ClientPool) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := cp.throttle(ctx); err != nil {
		return err
	}
	client, err := cp.GetClient()
	if err != nil {
		return err
	}
	return client.SendTransaction(ctx, tx)
}

// TransactionReceipt returns the receipt of a mined transaction
func (cp *ClientPool) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := cp.throttle(ctx); err != nil {
		return nil, err
	}
	client, err := cp.GetClient()
	if err != nil {
		return nil, err
	}
	return client.TransactionReceipt(ctx, txHash)
}
