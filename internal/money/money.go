// Package money provides fixed-point arithmetic for trade parameters.
// Slippage tolerances, fee tiers and gas multipliers are expressed in basis
// points over int64; token amounts stay *big.Int so on-chain values never
// touch floating point.
package money

import (
	"fmt"
	"math/big"
)

// Scale factors
const (
	BPSScale int64 = 10000 // basis points: 100% = 10000
	WeiScale int64 = 1e9   // gwei to wei
)

// BPS represents basis points (1 bps = 0.01% = 0.0001).
type BPS int64

// Gwei represents gas price in gwei.
type Gwei int64

// --- BPS Constructors ---

// NewBPS creates BPS from a percentage (e.g. 0.5 for 0.5% = 50 bps).
func NewBPS(percent float64) BPS {
	return BPS(percent * 100)
}

// NewBPSFromInt creates BPS directly from basis points.
func NewBPSFromInt(bps int64) BPS {
	return BPS(bps)
}

// --- BPS Arithmetic ---

// Add returns a + b.
func (a BPS) Add(b BPS) BPS {
	return a + b
}

// Sub returns a - b.
func (a BPS) Sub(b BPS) BPS {
	return a - b
}

// --- BPS Comparison ---

// IsPositive returns true if > 0.
func (a BPS) IsPositive() bool {
	return a > 0
}

// GreaterThan returns a > b.
func (a BPS) GreaterThan(b BPS) bool {
	return a > b
}

// --- BPS Conversion ---

// Float64 returns the percentage as float (e.g. 50 bps = 0.5).
func (a BPS) Float64() float64 {
	return float64(a) / 100.0
}

// Percent returns as a percentage string (e.g. "0.50%").
func (a BPS) Percent() string {
	return fmt.Sprintf("%.2f%%", float64(a)/100.0)
}

// String returns basis points as a string (e.g. "50 bps").
func (a BPS) String() string {
	return fmt.Sprintf("%d bps", a)
}

// Int64 returns the raw basis points value.
func (a BPS) Int64() int64 {
	return int64(a)
}

// --- big.Int × BPS helpers ---

// ReduceByBPS returns floor(amount × (BPSScale − bps) / BPSScale).
// This is the slippage haircut: for a nonzero amount and bps < BPSScale the
// result is strictly below amount, and it only reaches zero when the true
// quotient floors to zero.
func ReduceByBPS(amount *big.Int, bps BPS) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	factor := big.NewInt(BPSScale - int64(bps))
	out := new(big.Int).Mul(amount, factor)
	return out.Quo(out, big.NewInt(BPSScale))
}

// ScaleByBPS returns floor(amount × bps / BPSScale). Used for fee shares and
// gas-price headroom multipliers (e.g. 12000 bps = 1.2×).
func ScaleByBPS(amount *big.Int, bps BPS) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return out.Quo(out, big.NewInt(BPSScale))
}

// --- Gwei ---

// NewGwei creates Gwei from a float.
func NewGwei(gwei float64) Gwei {
	return Gwei(gwei)
}

// ToWei converts gwei to wei.
func (g Gwei) ToWei() *big.Int {
	return new(big.Int).Mul(big.NewInt(int64(g)), big.NewInt(WeiScale))
}

// Float64 returns gwei as float.
func (g Gwei) Float64() float64 {
	return float64(g)
}

// String returns a formatted string.
func (g Gwei) String() string {
	return fmt.Sprintf("%.1f gwei", float64(g))
}

// --- Utility Functions ---

// ClampBPS bounds a value to [lo, hi].
func ClampBPS(v, lo, hi BPS) BPS {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MaxBPS returns the maximum of two BPS values.
func MaxBPS(a, b BPS) BPS {
	if a > b {
		return a
	}
	return b
}
