package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/api"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/balance"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/blockchain"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/money"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/notification"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/aws"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/cache"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/config"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/pricing"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/swap"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/wallet"
)

const serviceName = "swap-service"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Println("Loading configuration...")
	cfg := config.MustLoad("config.yaml")

	// Observability first; everything else logs through it
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics(serviceName, cfg.Observability.Metrics.Enabled)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	tracingEndpoint := ""
	if cfg.Observability.Tracing.Enabled {
		tracingEndpoint = cfg.Observability.Tracing.Endpoint
	}
	tracerProvider, err := observability.NewTracerProvider(ctx, serviceName, tracingEndpoint)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer tracerProvider.Shutdown(ctx)
	tracer := observability.NewTracer(serviceName, cfg.Observability.Tracing.Enabled)

	logger.Info("observability setup complete")

	// Caches: L1 memory always; L2 Redis when configured
	memCache := cache.NewMemoryCache(cfg.Cache.L1MaxSize)
	defer memCache.Close()

	var store cache.Cache = memCache
	if cfg.Redis.Address != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.LogWarn(ctx, "Redis unavailable, using memory cache only", "error", err)
		} else {
			defer redisCache.Close()
			store = cache.NewLayeredCache(memCache, redisCache)
		}
	}

	// Ethereum client pool
	logger.Info("connecting to Ethereum...")
	urls := make([]string, len(cfg.Ethereum.RPCEndpoints))
	for i, ep := range cfg.Ethereum.RPCEndpoints {
		urls[i] = ep.URL
	}
	clientPool, err := blockchain.NewClientPool(blockchain.ClientPoolConfig{
		URLs:    urls,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create client pool: %v", err)
	}
	defer clientPool.Close()

	// Quote engine tiers
	poolReader, err := pricing.NewPoolReader(pricing.PoolReaderConfig{
		Caller:           clientPool,
		FactoryAddress:   cfg.Uniswap.FactoryAddress,
		PoolInitCodeHash: cfg.Uniswap.PoolInitCodeHash,
		FeeTier:          cfg.Uniswap.FeeTier,
		Logger:           logger,
	})
	if err != nil {
		log.Fatalf("Failed to create pool reader: %v", err)
	}
	quoterClient, err := pricing.NewQuoterClient(pricing.QuoterClientConfig{
		Caller:        clientPool,
		QuoterAddress: cfg.Uniswap.QuoterAddress,
		FeeTier:       cfg.Uniswap.FeeTier,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create quoter client: %v", err)
	}
	fallbackRater, err := pricing.NewFallbackRater(cfg.Uniswap.FallbackRate)
	if err != nil {
		log.Fatalf("Failed to create fallback rater: %v", err)
	}
	engine, err := pricing.NewEngine(pricing.EngineConfig{
		Pool:     poolReader,
		Quoter:   quoterClient,
		Fallback: fallbackRater,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
	})
	if err != nil {
		log.Fatalf("Failed to create quote engine: %v", err)
	}

	// Wallet
	if cfg.Wallet.PrivateKey == "" {
		log.Fatal("WALLET_PRIVATE_KEY is required")
	}
	chainID := new(big.Int).SetUint64(cfg.Ethereum.ChainID)
	signer, err := wallet.NewLocalSigner(cfg.Wallet.PrivateKey, chainID)
	if err != nil {
		log.Fatalf("Failed to create signer: %v", err)
	}
	session := wallet.NewSession(signer, chainID)
	logger.Info("wallet loaded", "account", session.Account().Hex())

	// Swap pipeline
	submitter, err := swap.NewSubmitter(swap.SubmitterConfig{
		Backend:             clientPool,
		ChainID:             chainID,
		Logger:              logger,
		Metrics:             metrics,
		Tracer:              tracer,
		GasFeeMultiplierBPS: money.BPS(cfg.Swap.GasPriceMultiplierBPS),
	})
	if err != nil {
		log.Fatalf("Failed to create submitter: %v", err)
	}
	builder, err := swap.NewBuilder(swap.BuilderConfig{
		Uniswap: cfg.Uniswap,
		Swap:    cfg.Swap,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("Failed to create plan builder: %v", err)
	}
	allowanceManager, err := swap.NewAllowanceManager(swap.AllowanceManagerConfig{
		Caller:    clientPool,
		Submitter: submitter,
		Spender:   builder.Router(),
		GasLimit:  cfg.Swap.GasLimitApprove,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create allowance manager: %v", err)
	}

	// Outcome reporting
	var reporter swap.OutcomeReporter
	if cfg.AWS.NotificationsEnabled && cfg.AWS.SNSTopicARN != "" {
		awsCfg, err := aws.LoadAWSConfig(ctx, aws.Config{
			Region:   cfg.AWS.Region,
			Endpoint: cfg.AWS.Endpoint,
		})
		if err != nil {
			log.Fatalf("Failed to load AWS config: %v", err)
		}
		snsClient := aws.NewSNSClient(aws.SNSClientConfig{
			AWSConfig: awsCfg,
			Logger:    logger,
			Metrics:   metrics,
		})
		publisher, err := notification.NewPublisher(notification.PublisherConfig{
			SNSClient: snsClient,
			TopicARN:  cfg.AWS.SNSTopicARN,
			Logger:    logger,
			Metrics:   metrics,
			Tracer:    tracer,
		})
		if err != nil {
			log.Fatalf("Failed to create publisher: %v", err)
		}
		reporter = publisher
	} else {
		reporter = notification.NewNoOpPublisher(logger)
	}

	swapService, err := swap.NewService(swap.ServiceConfig{
		Quoter:           engine,
		Builder:          builder,
		Allowance:        allowanceManager,
		Submitter:        submitter,
		Wallet:           session,
		Reporter:         reporter,
		Logger:           logger,
		Metrics:          metrics,
		Tracer:           tracer,
		DebounceInterval: cfg.Swap.DebounceInterval,
	})
	if err != nil {
		log.Fatalf("Failed to create swap service: %v", err)
	}

	balanceService, err := balance.NewService(balance.ServiceConfig{
		Reader:  clientPool,
		Cache:   store,
		Logger:  logger,
		Metrics: metrics,
		TTL:     cfg.Cache.BalanceTTL,
	})
	if err != nil {
		log.Fatalf("Failed to create balance service: %v", err)
	}

	// Chain head watcher
	watcher, err := blockchain.NewHeadWatcher(blockchain.HeadWatcherConfig{
		WebSocketURLs:   cfg.Ethereum.WebSocketURLs,
		Logger:          logger,
		Metrics:         metrics,
		Tracer:          tracer,
		ReconnectConfig: blockchain.DefaultReconnectConfig(),
		ClientPool:      clientPool,
	})
	if err != nil {
		log.Fatalf("Failed to create head watcher: %v", err)
	}

	// HTTP and WebSocket surface
	server, err := api.NewServer(api.ServerConfig{
		Port:     cfg.HTTP.Port,
		Swap:     swapService,
		Balances: balanceService,
		Pool:     clientPool,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		log.Fatalf("Failed to create HTTP server: %v", err)
	}

	logger.Info("starting swap service...")
	go swapService.Run(ctx)
	go func() {
		if err := server.Start(); err != nil {
			logger.LogError(ctx, "HTTP server error", err)
			cancel()
		}
	}()
	go func() {
		if err := watchHeads(ctx, watcher, balanceService, server, logger); err != nil {
			logger.LogError(ctx, "head watcher error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("shutdown signal received, gracefully stopping...")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.LogError(shutdownCtx, "HTTP shutdown error", err)
	}
	watcher.Close()
	logger.Info("application stopped")
}

// watchHeads streams new chain heads, invalidating cached balances and
// notifying WebSocket clients for each one.
func watchHeads(
	ctx context.Context,
	watcher *blockchain.HeadWatcher,
	balances *balance.Service,
	server *api.Server,
	logger *observability.Logger,
) error {
	headCh, errCh, err := watcher.Watch(ctx)
	if err != nil {
		return err
	}
	logger.Info("watching chain heads...")

	for {
		select {
		case head := <-headCh:
			if head == nil || !head.IsValid() {
				continue
			}
			balances.InvalidateAll(ctx)
			server.BroadcastHead(head.Number.Uint64())

		case err := <-errCh:
			logger.LogError(ctx, "head stream error", err)
			// Watcher reconnects or falls back to polling on its own

		case <-ctx.Done():
			return nil
		}
	}
}
