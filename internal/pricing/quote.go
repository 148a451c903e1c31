// Package pricing implements the quote engine: a three-tier estimation chain
// over live pool data, the QuoterV2 contract, and a static fallback rate,
// plus the slippage and price-impact calculators.
package pricing

import (
	"errors"
	"math/big"
	"time"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/config"
)

var (
	// ErrNoLiquidity is returned by the pool tier when the pool reports
	// zero liquidity. Recovered by the next tier.
	ErrNoLiquidity = errors.New("pricing: pool has no liquidity")

	// ErrQuoteUnavailable is returned when a live tier cannot produce an
	// estimate. Recovered by the next tier; never escapes the engine for
	// the supported pair.
	ErrQuoteUnavailable = errors.New("pricing: quote unavailable")
)

// Method identifies which tier produced a quote
type Method string

const (
	// MethodPoolData is the live slot0 spot-price approximation
	MethodPoolData Method = "pool-data"
	// MethodQuoterContract is the QuoterV2 simulation, exact
	MethodQuoterContract Method = "quoter-contract"
	// MethodFallbackRate is the static configured rate, non-authoritative
	MethodFallbackRate Method = "fallback-rate"
)

// Quote is the result of an estimation. AmountOut is in the output token's
// base units. Warning is set when the method is non-authoritative and the
// caller must surface it to the user.
type Quote struct {
	InToken   config.TokenInfo
	OutToken  config.TokenInfo
	AmountIn  *big.Int
	AmountOut *big.Int
	Method    Method
	Warning   string
	Timestamp time.Time
}

// Authoritative reports whether the quote came from live market data
func (q *Quote) Authoritative() bool {
	return q.Method != MethodFallbackRate
}
