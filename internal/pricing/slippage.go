package pricing

import (
	"math/big"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/money"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/units"
)

// MinimumOutput derives the slippage-protected output floor from an
// estimate: floor(estimate * (1 - slippage)). Integer math at the output
// token's full precision; the result strictly decreases for any positive
// slippage on a positive estimate.
func MinimumOutput(estimate *big.Int, slippage money.BPS) *big.Int {
	return money.ReduceByBPS(estimate, slippage)
}

// EffectiveSlippage clamps the requested tolerance into the configured
// bounds and applies the minimum floor. The floor holds regardless of user
// input to cut the failure rate from legitimate price movement between
// quote and execution.
func EffectiveSlippage(requested, floor, ceiling money.BPS) money.BPS {
	return money.ClampBPS(requested, floor, ceiling)
}

// PriceImpactBand returns a coarse price-impact classification from trade
// size in the input token's base units. Thresholds are in human units:
// <10 -> 10 bps, <100 -> 30 bps, <1000 -> 50 bps, otherwise 100 bps.
// A size proxy, not a curve integral; real impact would integrate the AMM
// liquidity curve.
func PriceImpactBand(amountIn *big.Int, decimals int) money.BPS {
	scale := units.Pow10(decimals)

	threshold := func(humanUnits int64) *big.Int {
		return new(big.Int).Mul(big.NewInt(humanUnits), scale)
	}

	switch {
	case amountIn.Cmp(threshold(10)) < 0:
		return money.BPS(10)
	case amountIn.Cmp(threshold(100)) < 0:
		return money.BPS(30)
	case amountIn.Cmp(threshold(1000)) < 0:
		return money.BPS(50)
	default:
		return money.BPS(100)
	}
}
