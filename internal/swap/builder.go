package swap

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/money"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/config"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/pricing"
)

const swapRouterABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "address", "name": "recipient", "type": "address"},
					{"internalType": "uint256", "name": "deadline", "type": "uint256"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint256", "name": "amountOutMinimum", "type": "uint256"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct ISwapRouter.ExactInputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "exactInputSingle",
		"outputs": [{"internalType": "uint256", "name": "amountOut", "type": "uint256"}],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "uint256", "name": "amountMinimum", "type": "uint256"},
			{"internalType": "address", "name": "recipient", "type": "address"}
		],
		"name": "unwrapWETH9",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "bytes[]", "name": "data", "type": "bytes[]"}],
		"name": "multicall",
		"outputs": [{"internalType": "bytes[]", "name": "results", "type": "bytes[]"}],
		"stateMutability": "payable",
		"type": "function"
	}
]`

type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Builder turns a validated intent plus a quote into an executable plan.
type Builder struct {
	router    common.Address
	weth      common.Address
	feeTier   uint32
	window    time.Duration
	minBPS    money.BPS
	maxBPS    money.BPS
	gasSingle uint64
	gasMulti  uint64
	routerABI abi.ABI
	logger    *observability.Logger
	now       func() time.Time
}

// BuilderConfig configures a Builder. Zero durations and gas limits fall
// back to the defaults carried in SwapConfig.
type BuilderConfig struct {
	Uniswap config.UniswapConfig
	Swap    config.SwapConfig
	Logger  *observability.Logger
}

func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	parsed, err := abi.JSON(strings.NewReader(swapRouterABI))
	if err != nil {
		return nil, fmt.Errorf("parsing router ABI: %w", err)
	}
	if cfg.Uniswap.RouterAddress == "" {
		return nil, fmt.Errorf("router address is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger("info", "json")
	}
	return &Builder{
		router:    common.HexToAddress(cfg.Uniswap.RouterAddress),
		weth:      common.HexToAddress(cfg.Uniswap.WETHAddress),
		feeTier:   cfg.Uniswap.FeeTier,
		window:    cfg.Swap.DeadlineWindow,
		minBPS:    money.BPS(cfg.Swap.MinEffectiveSlippageBPS),
		maxBPS:    money.BPS(cfg.Swap.MaxSlippageBPS),
		gasSingle: cfg.Swap.GasLimitSwap,
		gasMulti:  cfg.Swap.GasLimitMulticall,
		routerABI: parsed,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Router returns the router address plans are addressed to
func (b *Builder) Router() common.Address {
	return b.router
}

// Build produces an executable plan for intent using quote. The quote must
// have been produced for exactly this intent; a mismatch means the user
// changed inputs after estimation and the caller must re-quote.
func (b *Builder) Build(intent Intent, quote *pricing.Quote, recipient common.Address) (*Plan, error) {
	direction, err := classify(intent)
	if err != nil {
		return nil, err
	}
	if intent.AmountIn == nil || intent.AmountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInsufficientInput)
	}
	if quote == nil || !matchesIntent(intent, quote) {
		return nil, ErrStaleQuote
	}
	if recipient == (common.Address{}) {
		return nil, fmt.Errorf("recipient address is required")
	}

	effective := pricing.EffectiveSlippage(intent.Slippage, b.minBPS, b.maxBPS)
	minOut := pricing.MinimumOutput(quote.AmountOut, effective)
	deadline := b.now().Add(b.window)
	deadlineArg := big.NewInt(deadline.Unix())

	plan := &Plan{
		Intent:       intent,
		QuoteMethod:  quote.Method,
		EstimatedOut: new(big.Int).Set(quote.AmountOut),
		MinimumOut:   minOut,
		SlippageBPS:  effective,
		FeeTier:      b.feeTier,
		Deadline:     deadline,
		Recipient:    recipient,
		Direction:    direction,
		Router:       b.router,
	}

	switch direction {
	case NativeToToken:
		// Input rides along as msg.value; the router wraps it internally
		// and the output token goes straight to the user.
		data, err := b.routerABI.Pack("exactInputSingle", exactInputSingleParams{
			TokenIn:           b.weth,
			TokenOut:          common.HexToAddress(intent.OutToken.Address),
			Fee:               big.NewInt(int64(b.feeTier)),
			Recipient:         recipient,
			Deadline:          deadlineArg,
			AmountIn:          intent.AmountIn,
			AmountOutMinimum:  minOut,
			SqrtPriceLimitX96: big.NewInt(0),
		})
		if err != nil {
			return nil, fmt.Errorf("encoding exactInputSingle: %w", err)
		}
		plan.Kind = KindSingleCall
		plan.Value = new(big.Int).Set(intent.AmountIn)
		plan.CallData = data
		plan.GasLimit = b.gasSingle
		plan.SubCalls = []SubCall{{Method: "exactInputSingle", Recipient: recipient, Data: data}}

	case TokenToNative:
		// The swap leg pays WETH to the router itself so the unwrap leg can
		// convert it; only the unwrap pays the user. Both legs run in one
		// atomic multicall.
		swapData, err := b.routerABI.Pack("exactInputSingle", exactInputSingleParams{
			TokenIn:           common.HexToAddress(intent.InToken.Address),
			TokenOut:          b.weth,
			Fee:               big.NewInt(int64(b.feeTier)),
			Recipient:         b.router,
			Deadline:          deadlineArg,
			AmountIn:          intent.AmountIn,
			AmountOutMinimum:  minOut,
			SqrtPriceLimitX96: big.NewInt(0),
		})
		if err != nil {
			return nil, fmt.Errorf("encoding exactInputSingle: %w", err)
		}
		unwrapData, err := b.routerABI.Pack("unwrapWETH9", minOut, recipient)
		if err != nil {
			return nil, fmt.Errorf("encoding unwrapWETH9: %w", err)
		}
		multiData, err := b.routerABI.Pack("multicall", [][]byte{swapData, unwrapData})
		if err != nil {
			return nil, fmt.Errorf("encoding multicall: %w", err)
		}
		plan.Kind = KindComposedCall
		plan.Value = big.NewInt(0)
		plan.CallData = multiData
		plan.GasLimit = b.gasMulti
		plan.SubCalls = []SubCall{
			{Method: "exactInputSingle", Recipient: b.router, Data: swapData},
			{Method: "unwrapWETH9", Recipient: recipient, Data: unwrapData},
		}
	}

	b.logger.LogDebug(context.Background(), "built swap plan",
		"direction", direction.String(),
		"kind", string(plan.Kind),
		"quote_method", string(quote.Method),
		"minimum_out", minOut.String(),
		"deadline", deadline.Unix(),
	)
	return plan, nil
}

// classify maps an intent's token pair onto a supported direction.
func classify(intent Intent) (Direction, error) {
	inNative := intent.InToken.IsNative()
	outNative := intent.OutToken.IsNative()
	switch {
	case inNative && !outNative:
		return NativeToToken, nil
	case !inNative && outNative:
		return TokenToNative, nil
	default:
		return 0, fmt.Errorf("%w: %s -> %s", ErrInvalidPair, intent.InToken.Symbol, intent.OutToken.Symbol)
	}
}

func matchesIntent(intent Intent, quote *pricing.Quote) bool {
	if quote.AmountIn == nil || quote.AmountOut == nil {
		return false
	}
	return quote.InToken.Equal(intent.InToken) &&
		quote.OutToken.Equal(intent.OutToken) &&
		quote.AmountIn.Cmp(intent.AmountIn) == 0
}
