package pricing

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/config"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/resilience"
)

// Uniswap V3 QuoterV2 ABI
const uniswapV3QuoterABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct IQuoterV2.QuoteExactInputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "quoteExactInputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
			{"internalType": "uint160", "name": "sqrtPriceX96After", "type": "uint160"},
			{"internalType": "uint32", "name": "initializedTicksCrossed", "type": "uint32"},
			{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// QuoterClient is the quoter-contract estimation tier. QuoterV2 simulates
// the swap on-chain, so its result is exact for the current block. Calls go
// through a circuit breaker; a flaky quoter endpoint must not stall every
// quote for its full timeout.
type QuoterClient struct {
	contract *bind.BoundContract
	feeTier  uint32
	breaker  *resilience.CircuitBreaker
	logger   *observability.Logger
}

// QuoterClientConfig holds quoter tier configuration
type QuoterClientConfig struct {
	Caller        bind.ContractCaller
	QuoterAddress string
	FeeTier       uint32
	Logger        *observability.Logger
	Metrics       *observability.Metrics
}

// NewQuoterClient creates the quoter-contract tier
func NewQuoterClient(cfg QuoterClientConfig) (*QuoterClient, error) {
	if cfg.Caller == nil {
		return nil, fmt.Errorf("contract caller is required")
	}
	if cfg.QuoterAddress == "" {
		return nil, fmt.Errorf("quoter address is required")
	}
	if cfg.FeeTier == 0 {
		cfg.FeeTier = 3000
	}

	quoterABI, err := abi.JSON(strings.NewReader(uniswapV3QuoterABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse quoter ABI: %w", err)
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "quoter",
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OnStateChange: func(from, to resilience.State) {
			if cfg.Logger != nil {
				cfg.Logger.Info("quoter circuit breaker state changed",
					"from", from.String(),
					"to", to.String(),
				)
			}
			if cfg.Metrics != nil {
				cfg.Metrics.SetCircuitBreakerState(context.Background(), "quoter", int64(to))
			}
		},
	})

	return &QuoterClient{
		contract: bind.NewBoundContract(common.HexToAddress(cfg.QuoterAddress), quoterABI, cfg.Caller, nil, nil),
		feeTier:  cfg.FeeTier,
		breaker:  breaker,
		logger:   cfg.Logger,
	}, nil
}

// QuoteExactInputSingle asks QuoterV2 for the exact output of a single-hop
// exact-input swap. Tokens must be the on-chain (wrapped) forms.
func (q *QuoterClient) QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut config.TokenInfo, amountIn *big.Int) (*big.Int, error) {
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           common.HexToAddress(tokenIn.Address),
		TokenOut:          common.HexToAddress(tokenOut.Address),
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(q.feeTier)),
		SqrtPriceLimitX96: big.NewInt(0),
	}

	amountOut, err := resilience.ExecuteWithResult(q.breaker, ctx, func(ctx context.Context) (*big.Int, error) {
		var result []interface{}
		callOpts := &bind.CallOpts{Context: ctx}
		if err := q.contract.Call(callOpts, &result, "quoteExactInputSingle", params); err != nil {
			return nil, fmt.Errorf("quoteExactInputSingle call failed: %w", err)
		}

		out, ok := result[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("bad amountOut decode")
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}

	return amountOut, nil
}
