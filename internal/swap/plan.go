package swap

import (
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/money"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/config"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/pricing"
)

// Direction is the closed set of supported swap shapes. Every switch over
// it handles all members; adding a token forces those call sites to change.
type Direction int

const (
	// NativeToToken swaps the native asset into a contract token with a
	// single router call carrying value.
	NativeToToken Direction = iota
	// TokenToNative swaps a contract token into the native asset via an
	// atomic router multicall: swap to the router, then unwrap to the user.
	TokenToNative
)

func (d Direction) String() string {
	switch d {
	case NativeToToken:
		return "native-to-token"
	case TokenToNative:
		return "token-to-native"
	default:
		return "unknown"
	}
}

// Kind classifies the payload shape
type Kind string

const (
	// KindSingleCall is one router function call
	KindSingleCall Kind = "single-call"
	// KindComposedCall is a multicall of sub-calls executed atomically
	KindComposedCall Kind = "composed-call"
)

// Intent is a validated trade request. AmountIn is in the input token's
// base units; transient, never persisted.
type Intent struct {
	InToken  config.TokenInfo
	OutToken config.TokenInfo
	AmountIn *big.Int
	Slippage money.BPS
}

// SubCall is one encoded router call within a plan, kept alongside the
// packed payload for inspection.
type SubCall struct {
	Method    string
	Recipient common.Address
	Data      []byte
}

// Plan is an executable swap transaction. Immutable once built and consumed
// exactly once by submission; after a terminal failure the plan is dead and
// a fresh quote is required.
type Plan struct {
	Intent       Intent
	QuoteMethod  pricing.Method
	EstimatedOut *big.Int
	MinimumOut   *big.Int
	SlippageBPS  money.BPS
	FeeTier      uint32
	Deadline     time.Time
	Recipient    common.Address
	Direction    Direction
	Kind         Kind
	Router       common.Address
	Value        *big.Int
	CallData     []byte
	GasLimit     uint64
	SubCalls     []SubCall

	consumed atomic.Bool
}

// Consume marks the plan used. Returns false if it was already consumed.
func (p *Plan) Consume() bool {
	return p.consumed.CompareAndSwap(false, true)
}

// Consumed reports whether the plan has been submitted
func (p *Plan) Consumed() bool {
	return p.consumed.Load()
}

// RequiresAllowance reports whether submitting this plan needs a confirmed
// router allowance first. Native input never does; every token input does.
func (p *Plan) RequiresAllowance() bool {
	return !p.Intent.InToken.IsNative()
}
