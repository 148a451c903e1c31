package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel/attribute"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
)

// Head represents a new chain head
type Head struct {
	Number     *big.Int
	Hash       common.Hash
	Timestamp  uint64
	ParentHash common.Hash
}

// IsValid checks if the head carries a usable block number
func (h *Head) IsValid() bool {
	return h.Number != nil && h.Number.Uint64() > 0
}

// HeadWatcher streams new chain heads with automatic reconnection. Head
// events drive balance cache invalidation and quote refresh. When the
// WebSocket endpoint is down it falls back to HTTP polling through the
// client pool.
type HeadWatcher struct {
	wsURLs            []string
	currentURLIdx     int
	client            *ethclient.Client
	logger            *observability.Logger
	metrics           *observability.Metrics
	tracer            observability.Tracer
	lastBlockNumber   uint64
	reconnectConfig   ReconnectConfig
	mu                sync.RWMutex
	isConnected       bool
	messageTimeout    time.Duration
	reconnectAttempts int
	clientPool        *ClientPool
	pollInterval      time.Duration
	maxWSFailures     int
	wsFailureCount    int
}

// HeadWatcherConfig holds watcher configuration
type HeadWatcherConfig struct {
	WebSocketURLs   []string
	Logger          *observability.Logger
	Metrics         *observability.Metrics
	Tracer          observability.Tracer
	ReconnectConfig ReconnectConfig
	MessageTimeout  time.Duration
	ClientPool      *ClientPool
	PollInterval    time.Duration
	MaxWSFailures   int
}

// ReconnectConfig holds reconnection configuration
type ReconnectConfig struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64
}

// DefaultReconnectConfig returns default reconnection configuration
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		BaseDelay: 1 * time.Second,
		MaxDelay:  30 * time.Second,
		Jitter:    0.2,
	}
}

// NewHeadWatcher creates a new chain head watcher
func NewHeadWatcher(cfg HeadWatcherConfig) (*HeadWatcher, error) {
	if len(cfg.WebSocketURLs) == 0 && cfg.ClientPool == nil {
		return nil, fmt.Errorf("a WebSocket URL or client pool is required")
	}

	if cfg.MessageTimeout == 0 {
		cfg.MessageTimeout = 60 * time.Second
	}
	if cfg.ReconnectConfig.MaxDelay == 0 {
		cfg.ReconnectConfig = DefaultReconnectConfig()
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 12 * time.Second // ~1 mainnet block
	}
	if cfg.MaxWSFailures == 0 {
		cfg.MaxWSFailures = 3
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewTracer("", false)
	}

	return &HeadWatcher{
		wsURLs:          cfg.WebSocketURLs,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
		tracer:          cfg.Tracer,
		reconnectConfig: cfg.ReconnectConfig,
		messageTimeout:  cfg.MessageTimeout,
		clientPool:      cfg.ClientPool,
		pollInterval:    cfg.PollInterval,
		maxWSFailures:   cfg.MaxWSFailures,
	}, nil
}

// Watch subscribes to new chain heads and returns channels for heads and errors
func (w *HeadWatcher) Watch(ctx context.Context) (<-chan *Head, <-chan error, error) {
	headCh := make(chan *Head, 10)
	errCh := make(chan error, 10)

	wsMode := len(w.wsURLs) > 0

	if wsMode {
		if err := w.connect(ctx); err != nil {
			if w.clientPool == nil {
				return nil, nil, fmt.Errorf("initial connection failed: %w", err)
			}
			wsMode = false
			w.logger.Warn("initial WebSocket connection failed, starting in HTTP polling mode",
				"error", err,
				"poll_interval_seconds", w.pollInterval.Seconds(),
			)
		}
	}

	go w.watchLoop(ctx, headCh, errCh, wsMode)

	return headCh, errCh, nil
}

func (w *HeadWatcher) connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	url := w.wsURLs[w.currentURLIdx]

	w.logger.Info("connecting to Ethereum WebSocket",
		"url", url,
		"attempt", w.reconnectAttempts+1,
	)

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		w.currentURLIdx = (w.currentURLIdx + 1) % len(w.wsURLs)
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	// Verify connection before trusting it
	if _, err := client.BlockNumber(ctx); err != nil {
		client.Close()
		w.currentURLIdx = (w.currentURLIdx + 1) % len(w.wsURLs)
		return fmt.Errorf("connection verification failed for %s: %w", url, err)
	}

	w.client = client
	w.isConnected = true
	w.reconnectAttempts = 0

	w.logger.Info("connected to Ethereum WebSocket", "url", url)

	if w.metrics != nil {
		w.metrics.RecordWebSocketConnection(ctx, url, true)
	}

	return nil
}

func (w *HeadWatcher) watchLoop(ctx context.Context, headCh chan<- *Head, errCh chan<- error, wsMode bool) {
	defer close(headCh)
	defer close(errCh)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("context cancelled, stopping head watcher")
			w.disconnect()
			return
		default:
			if wsMode {
				if err := w.streamHeads(ctx, headCh); err != nil {
					if ctx.Err() != nil {
						w.disconnect()
						return
					}
					w.logger.LogError(ctx, "head subscription error", err)
					w.sendError(errCh, err)

					w.mu.Lock()
					w.wsFailureCount++
					wsFailures := w.wsFailureCount
					switchToHTTP := w.clientPool != nil && wsFailures >= w.maxWSFailures
					w.mu.Unlock()

					if switchToHTTP {
						w.logger.Warn("switching to HTTP polling fallback",
							"ws_failures", wsFailures,
						)
						wsMode = false
						continue
					}

					w.disconnect()

					delay := w.reconnectDelay()
					w.logger.Info("reconnecting after delay",
						"delay_seconds", delay.Seconds(),
						"attempts", w.reconnectAttempts,
					)
					if w.metrics != nil {
						w.metrics.RecordWebSocketReconnection(ctx, w.reconnectAttempts)
					}

					select {
					case <-time.After(delay):
					case <-ctx.Done():
						return
					}

					w.reconnectAttempts++
					if err := w.connect(ctx); err != nil {
						w.logger.LogError(ctx, "reconnection failed", err,
							"attempts", w.reconnectAttempts,
						)
						continue
					}

					w.mu.Lock()
					w.wsFailureCount = 0
					w.mu.Unlock()
				}
			} else {
				if err := w.pollHeads(ctx, headCh); err != nil {
					if ctx.Err() != nil {
						return
					}
					w.logger.LogError(ctx, "HTTP polling error", err)
					w.sendError(errCh, err)

					select {
					case <-time.After(w.pollInterval):
					case <-ctx.Done():
						return
					}
				}

				// Decay failure count, then probe WebSocket again
				w.mu.Lock()
				if w.wsFailureCount > 0 {
					w.wsFailureCount--
				}
				tryWS := w.wsFailureCount == 0 && len(w.wsURLs) > 0
				w.mu.Unlock()

				if tryWS {
					if err := w.connect(ctx); err != nil {
						w.logger.Warn("failed to reconnect to WebSocket, staying in HTTP mode", "error", err)
						w.mu.Lock()
						w.wsFailureCount = 1
						w.mu.Unlock()
					} else {
						wsMode = true
						w.logger.Info("switched back to WebSocket mode")
					}
				}
			}
		}
	}
}

func (w *HeadWatcher) sendError(errCh chan<- error, err error) {
	select {
	case errCh <- err:
	default:
		w.logger.Warn("error channel full, dropping error", "error", err)
	}
}

func (w *HeadWatcher) streamHeads(ctx context.Context, headCh chan<- *Head) error {
	w.mu.RLock()
	client := w.client
	w.mu.RUnlock()

	if client == nil {
		return fmt.Errorf("client not connected")
	}

	headers := make(chan *types.Header, 10)

	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		return fmt.Errorf("failed to subscribe to new heads: %w", err)
	}
	defer sub.Unsubscribe()

	w.logger.Info("subscribed to new chain heads")

	lastMessageTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-sub.Err():
			if err != nil {
				return fmt.Errorf("subscription error: %w", err)
			}
			return fmt.Errorf("subscription closed")

		case header := <-headers:
			lastMessageTime = time.Now()

			head := headFromHeader(header)
			if !head.IsValid() {
				w.logger.Warn("received invalid head", "block_number", header.Number)
				continue
			}

			w.noteGap(head.Number.Uint64())

			w.mu.Lock()
			w.lastBlockNumber = head.Number.Uint64()
			w.mu.Unlock()

			w.logger.Debug("new head received",
				"block_number", head.Number.Uint64(),
				"block_hash", head.Hash.Hex(),
			)
			if w.metrics != nil {
				w.metrics.RecordHeadReceived(ctx, head.Number.Uint64())
			}

			if err := w.deliver(ctx, head, "ws", headCh); err != nil {
				return err
			}

		case <-time.After(w.messageTimeout):
			since := time.Since(lastMessageTime)
			if since > w.messageTimeout {
				return fmt.Errorf("no heads received for %v", since)
			}
		}
	}
}

func (w *HeadWatcher) pollHeads(ctx context.Context, headCh chan<- *Head) error {
	if w.clientPool == nil {
		return fmt.Errorf("client pool not configured for HTTP polling")
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("polling for heads over HTTP", "poll_interval", w.pollInterval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			blockNum, err := w.clientPool.BlockNumber(ctx)
			if err != nil {
				return fmt.Errorf("HTTP block number fetch failed: %w", err)
			}

			w.mu.RLock()
			lastBlock := w.lastBlockNumber
			w.mu.RUnlock()

			if blockNum <= lastBlock {
				continue
			}

			header, err := w.clientPool.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNum))
			if err != nil {
				return fmt.Errorf("HTTP head fetch failed: %w", err)
			}

			head := headFromHeader(header)
			if !head.IsValid() {
				w.logger.Warn("received invalid head via HTTP", "block_number", blockNum)
				continue
			}

			w.noteGap(blockNum)

			w.mu.Lock()
			w.lastBlockNumber = blockNum
			w.mu.Unlock()

			w.logger.Debug("new head received via HTTP polling",
				"block_number", blockNum,
				"block_hash", head.Hash.Hex(),
			)
			if w.metrics != nil {
				w.metrics.RecordHeadReceived(ctx, blockNum)
			}

			if err := w.deliver(ctx, head, "http", headCh); err != nil {
				return err
			}
		}
	}
}

// noteGap logs skipped block numbers. Consumers only care about the latest
// state so gaps are not backfilled.
func (w *HeadWatcher) noteGap(blockNum uint64) {
	w.mu.RLock()
	lastBlock := w.lastBlockNumber
	w.mu.RUnlock()

	if lastBlock > 0 && blockNum > lastBlock+1 {
		w.logger.Warn("detected head gap",
			"last_block", lastBlock,
			"new_block", blockNum,
			"gap_size", blockNum-lastBlock-1,
		)
	}
}

func (w *HeadWatcher) deliver(ctx context.Context, head *Head, source string, headCh chan<- *Head) error {
	spanCtx, span := w.tracer.Start(ctx, "HeadWatcher.deliver",
		observability.WithAttributes(
			attribute.Int64("block_number", head.Number.Int64()),
			attribute.String("source", source),
		),
	)
	defer span.End()

	select {
	case headCh <- head:
		return nil
	case <-spanCtx.Done():
		span.RecordError(spanCtx.Err())
		return spanCtx.Err()
	}
}

func headFromHeader(header *types.Header) *Head {
	return &Head{
		Number:     header.Number,
		Hash:       header.Hash(),
		Timestamp:  header.Time,
		ParentHash: header.ParentHash,
	}
}

func (w *HeadWatcher) disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client != nil {
		w.client.Close()
		w.client = nil
	}
	w.isConnected = false
}

// IsConnected reports whether the WebSocket connection is live
func (w *HeadWatcher) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.isConnected
}

// LastBlockNumber returns the last delivered block number
func (w *HeadWatcher) LastBlockNumber() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastBlockNumber
}

// Close shuts down the watcher
func (w *HeadWatcher) Close() {
	w.disconnect()
	w.logger.Info("head watcher closed")
}

// reconnectDelay computes exponential backoff with jitter
func (w *HeadWatcher) reconnectDelay() time.Duration {
	delay := w.reconnectConfig.BaseDelay
	for i := 0; i < w.reconnectAttempts && delay < w.reconnectConfig.MaxDelay; i++ {
		delay *= 2
	}
	if delay > w.reconnectConfig.MaxDelay {
		delay = w.reconnectConfig.MaxDelay
	}

	if w.reconnectConfig.Jitter > 0 {
		multiplier := 1.0 + (rand.Float64()*2-1)*w.reconnectConfig.Jitter
		delay = time.Duration(float64(delay) * multiplier)
	}

	return delay
}
