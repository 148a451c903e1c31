package pricing

import (
	"fmt"
	"math/big"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/config"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/units"
)

// FallbackRater is the last-resort estimation tier: a static configured
// ETH/USDC exchange rate, never refreshed. It cannot fail for the supported
// pair; quotes derived from it carry a warning.
type FallbackRater struct {
	// rate is USDC per whole ETH, as an integer (e.g. 3000)
	rate *big.Int
}

// NewFallbackRater creates the static-rate tier
func NewFallbackRater(usdcPerEth int64) (*FallbackRater, error) {
	if usdcPerEth <= 0 {
		return nil, fmt.Errorf("fallback rate must be positive, got %d", usdcPerEth)
	}
	return &FallbackRater{rate: big.NewInt(usdcPerEth)}, nil
}

// Convert prices amountIn of tokenIn in tokenOut base units at the static
// rate. Works for either direction of the ETH/WETH <-> USDC pair; pure
// integer math, floor division.
func (f *FallbackRater) Convert(tokenIn, tokenOut config.TokenInfo, amountIn *big.Int) (*big.Int, error) {
	inIsEth := tokenIn.Decimals == 18
	outIsEth := tokenOut.Decimals == 18
	if inIsEth == outIsEth {
		return nil, fmt.Errorf("fallback rate covers only the ETH/USDC pair: %s -> %s", tokenIn.Symbol, tokenOut.Symbol)
	}

	out := new(big.Int)
	if inIsEth {
		// ETH -> USDC: amountIn(wei) * rate * 10^6 / 10^18
		out.Mul(amountIn, f.rate)
		out.Mul(out, units.Pow10(tokenOut.Decimals))
		out.Quo(out, units.Pow10(tokenIn.Decimals))
	} else {
		// USDC -> ETH: amountIn(1e6) * 10^18 / (rate * 10^6)
		out.Mul(amountIn, units.Pow10(tokenOut.Decimals))
		den := new(big.Int).Mul(f.rate, units.Pow10(tokenIn.Decimals))
		out.Quo(out, den)
	}
	return out, nil
}
