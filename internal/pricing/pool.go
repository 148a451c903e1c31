package pricing

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/config"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
)

// Uniswap V3 Pool ABI (price/liquidity reads)
const uniswapV3PoolABI = `[
	{
		"inputs": [],
		"name": "slot0",
		"outputs": [
			{"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
			{"internalType": "int24", "name": "tick", "type": "int24"},
			{"internalType": "uint16", "name": "observationIndex", "type": "uint16"},
			{"internalType": "uint16", "name": "observationCardinality", "type": "uint16"},
			{"internalType": "uint16", "name": "observationCardinalityNext", "type": "uint16"},
			{"internalType": "uint8", "name": "feeProtocol", "type": "uint8"},
			{"internalType": "bool", "name": "unlocked", "type": "bool"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "liquidity",
		"outputs": [
			{"internalType": "uint128", "name": "", "type": "uint128"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// q192 = 2^192, the denominator of the squared Q96 sqrt price
var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// PoolState holds the pool reads needed for a spot estimate
type PoolState struct {
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Timestamp    time.Time
}

// PoolReader is the pool-data estimation tier. It derives the pool address
// deterministically, reads slot0 and liquidity, and prices the trade at the
// current spot price in pure integer math.
type PoolReader struct {
	caller      bind.ContractCaller
	factory     common.Address
	initCode    common.Hash
	feeTier     uint32
	poolABI     abi.ABI
	logger      *observability.Logger
}

// PoolReaderConfig holds pool reader configuration
type PoolReaderConfig struct {
	Caller           bind.ContractCaller
	FactoryAddress   string
	PoolInitCodeHash string
	FeeTier          uint32
	Logger           *observability.Logger
}

// NewPoolReader creates a pool-data tier reader
func NewPoolReader(cfg PoolReaderConfig) (*PoolReader, error) {
	if cfg.Caller == nil {
		return nil, fmt.Errorf("contract caller is required")
	}
	if cfg.FactoryAddress == "" || cfg.PoolInitCodeHash == "" {
		return nil, fmt.Errorf("factory address and pool init code hash are required")
	}
	if cfg.FeeTier == 0 {
		cfg.FeeTier = 3000
	}

	poolABI, err := abi.JSON(strings.NewReader(uniswapV3PoolABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool ABI: %w", err)
	}

	return &PoolReader{
		caller:   cfg.Caller,
		factory:  common.HexToAddress(cfg.FactoryAddress),
		initCode: common.HexToHash(cfg.PoolInitCodeHash),
		feeTier:  cfg.FeeTier,
		poolABI:  poolABI,
		logger:   cfg.Logger,
	}, nil
}

// ComputePoolAddress derives the pool address for a token pair and fee tier
// from the factory's CREATE2 scheme: tokens sorted ascending, salt =
// keccak256(abi.encode(token0, token1, fee)), address = keccak256(0xff ++
// factory ++ salt ++ initCodeHash)[12:]. This is address computation, not a
// lookup; it must match the deployed factory bit-for-bit.
func ComputePoolAddress(factory, tokenA, tokenB common.Address, fee uint32, initCodeHash common.Hash) common.Address {
	token0, token1 := tokenA, tokenB
	if strings.ToLower(token1.Hex()) < strings.ToLower(token0.Hex()) {
		token0, token1 = token1, token0
	}

	// abi.encode(address, address, uint24): three 32-byte words
	salt := make([]byte, 0, 96)
	salt = append(salt, common.LeftPadBytes(token0.Bytes(), 32)...)
	salt = append(salt, common.LeftPadBytes(token1.Bytes(), 32)...)
	salt = append(salt, common.LeftPadBytes(new(big.Int).SetUint64(uint64(fee)).Bytes(), 32)...)
	saltHash := crypto.Keccak256(salt)

	payload := make([]byte, 0, 85)
	payload = append(payload, 0xff)
	payload = append(payload, factory.Bytes()...)
	payload = append(payload, saltHash...)
	payload = append(payload, initCodeHash.Bytes()...)

	return common.BytesToAddress(crypto.Keccak256(payload)[12:])
}

// ReadState fetches slot0 and liquidity for the pair's pool
func (p *PoolReader) ReadState(ctx context.Context, tokenA, tokenB common.Address) (*PoolState, error) {
	poolAddr := ComputePoolAddress(p.factory, tokenA, tokenB, p.feeTier, p.initCode)
	contract := bind.NewBoundContract(poolAddr, p.poolABI, p.caller, nil, nil)
	callOpts := &bind.CallOpts{Context: ctx}

	var slot0Out []interface{}
	if err := contract.Call(callOpts, &slot0Out, "slot0"); err != nil {
		return nil, fmt.Errorf("%w: slot0 read failed: %v", ErrQuoteUnavailable, err)
	}
	sqrtPriceX96, ok := slot0Out[0].(*big.Int)
	if !ok || sqrtPriceX96.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool not initialized", ErrQuoteUnavailable)
	}

	var liqOut []interface{}
	if err := contract.Call(callOpts, &liqOut, "liquidity"); err != nil {
		return nil, fmt.Errorf("%w: liquidity read failed: %v", ErrQuoteUnavailable, err)
	}
	liquidity, ok := liqOut[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: bad liquidity decode", ErrQuoteUnavailable)
	}

	return &PoolState{
		SqrtPriceX96: sqrtPriceX96,
		Liquidity:    liquidity,
		Timestamp:    time.Now(),
	}, nil
}

// QuoteBySpot estimates the output for amountIn at the pool's current spot
// price. Tokens must be the on-chain (wrapped) forms. The result ignores
// movement along the liquidity curve within the trade; callers receive it
// tagged MethodPoolData so they can treat it as an approximation.
func (p *PoolReader) QuoteBySpot(ctx context.Context, tokenIn, tokenOut config.TokenInfo, amountIn *big.Int) (*big.Int, error) {
	inAddr := common.HexToAddress(tokenIn.Address)
	outAddr := common.HexToAddress(tokenOut.Address)

	state, err := p.ReadState(ctx, inAddr, outAddr)
	if err != nil {
		return nil, err
	}
	if state.Liquidity.Sign() == 0 {
		return nil, ErrNoLiquidity
	}

	return SpotOutput(amountIn, state.SqrtPriceX96, inAddr, outAddr), nil
}

// SpotOutput prices amountIn of tokenIn at sqrtPriceX96. The price of token0
// in token1 terms is sqrtP^2 / 2^192; the inverse applies for token1 input.
// Pure integer math, floor division.
func SpotOutput(amountIn, sqrtPriceX96 *big.Int, tokenIn, tokenOut common.Address) *big.Int {
	priceSq := new(big.Int).Mul(sqrtPriceX96, sqrtPriceX96)

	inIsToken0 := strings.ToLower(tokenIn.Hex()) < strings.ToLower(tokenOut.Hex())
	out := new(big.Int)
	if inIsToken0 {
		// token0 -> token1: amountIn * sqrtP^2 / 2^192
		out.Mul(amountIn, priceSq)
		out.Quo(out, q192)
	} else {
		// token1 -> token0: amountIn * 2^192 / sqrtP^2
		out.Mul(amountIn, q192)
		out.Quo(out, priceSq)
	}
	return out
}
