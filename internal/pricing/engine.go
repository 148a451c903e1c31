package pricing

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/config"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
)

// FallbackWarning is surfaced to the user whenever the static-rate tier
// produced the estimate.
const FallbackWarning = "estimate derived from a static fallback rate; live market data was unavailable"

// SpotQuoter is the pool-data tier
type SpotQuoter interface {
	QuoteBySpot(ctx context.Context, tokenIn, tokenOut config.TokenInfo, amountIn *big.Int) (*big.Int, error)
}

// ContractQuoter is the quoter-contract tier
type ContractQuoter interface {
	QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut config.TokenInfo, amountIn *big.Int) (*big.Int, error)
}

// Rater is the static fallback tier
type Rater interface {
	Convert(tokenIn, tokenOut config.TokenInfo, amountIn *big.Int) (*big.Int, error)
}

// Engine runs the estimation chain: pool data, then the quoter contract,
// then the static rate. First success wins; failures of live tiers are
// swallowed by design so the chain degrades instead of erroring. The engine
// never retries a tier; callers decide when to re-quote.
type Engine struct {
	pool     SpotQuoter
	quoter   ContractQuoter
	fallback Rater
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   observability.Tracer
}

// EngineConfig holds quote engine configuration
type EngineConfig struct {
	Pool     SpotQuoter
	Quoter   ContractQuoter
	Fallback Rater
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Tracer   observability.Tracer
}

// NewEngine creates a quote engine. The fallback tier is mandatory; the live
// tiers may be nil (skipped), which only makes the chain degrade earlier.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Fallback == nil {
		return nil, fmt.Errorf("fallback rater is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewTracer("", false)
	}

	return &Engine{
		pool:     cfg.Pool,
		quoter:   cfg.Quoter,
		fallback: cfg.Fallback,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
	}, nil
}

// Quote estimates the output amount for swapping amountIn of tokenIn into
// tokenOut. Tokens may be given in native form; tiers operate on the wrapped
// forms. Returns a tagged Quote; for the supported pair this never fails.
func (e *Engine) Quote(ctx context.Context, tokenIn, tokenOut config.TokenInfo, amountIn *big.Int) (*Quote, error) {
	if tokenIn.Equal(tokenOut) {
		return nil, fmt.Errorf("input and output tokens must differ: %s", tokenIn.Symbol)
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("input amount must be positive")
	}

	pair := tokenIn.Symbol + "-" + tokenOut.Symbol
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "Engine.Quote",
		observability.WithAttributes(
			attribute.String("pair", pair),
			attribute.String("amount_in", amountIn.String()),
		),
	)
	defer span.End()

	wrappedIn := config.Wrapped(tokenIn)
	wrappedOut := config.Wrapped(tokenOut)

	quote := &Quote{
		InToken:   tokenIn,
		OutToken:  tokenOut,
		AmountIn:  new(big.Int).Set(amountIn),
		Timestamp: time.Now(),
	}

	// Tier 1: live pool data
	if e.pool != nil {
		out, err := e.pool.QuoteBySpot(ctx, wrappedIn, wrappedOut, amountIn)
		if err == nil {
			quote.AmountOut = out
			quote.Method = MethodPoolData
			e.record(ctx, pair, quote, time.Since(start))
			return quote, nil
		}
		e.logDegrade(ctx, "pool-data", pair, err)
	}

	// Tier 2: quoter contract
	if e.quoter != nil {
		out, err := e.quoter.QuoteExactInputSingle(ctx, wrappedIn, wrappedOut, amountIn)
		if err == nil {
			quote.AmountOut = out
			quote.Method = MethodQuoterContract
			e.record(ctx, pair, quote, time.Since(start))
			return quote, nil
		}
		e.logDegrade(ctx, "quoter-contract", pair, err)
	}

	// Tier 3: static rate, last resort
	out, err := e.fallback.Convert(tokenIn, tokenOut, amountIn)
	if err != nil {
		// Only reachable for an unsupported pair, which validation upstream
		// should have rejected.
		span.RecordError(err)
		return nil, err
	}

	quote.AmountOut = out
	quote.Method = MethodFallbackRate
	quote.Warning = FallbackWarning
	e.record(ctx, pair, quote, time.Since(start))
	return quote, nil
}

func (e *Engine) record(ctx context.Context, pair string, quote *Quote, duration time.Duration) {
	if e.logger != nil {
		e.logger.Info("quote produced",
			"pair", pair,
			"method", string(quote.Method),
			"amount_in", quote.AmountIn.String(),
			"amount_out", quote.AmountOut.String(),
			"duration_ms", duration.Milliseconds(),
		)
	}
	if e.metrics != nil {
		e.metrics.RecordQuote(ctx, pair, string(quote.Method), duration, true)
	}
}

func (e *Engine) logDegrade(ctx context.Context, tier, pair string, err error) {
	if e.logger != nil {
		e.logger.Warn("quote tier failed, degrading",
			"tier", tier,
			"pair", pair,
			"error", err.Error(),
		)
	}
	if e.metrics != nil {
		e.metrics.RecordError(ctx, "quote_tier_"+tier)
	}
}
