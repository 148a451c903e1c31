package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/wallet"
)

const erc20ABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "owner", "type": "address"},
			{"internalType": "address", "name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "address", "name": "spender", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// ApprovalOutcome reports what EnsureAllowance did
type ApprovalOutcome struct {
	// Approved is true when an approval transaction was submitted and
	// confirmed; false means the existing allowance already covered the
	// required amount.
	Approved bool
	// TxHash is set only when Approved is true
	TxHash common.Hash
	// Allowance is the router allowance after the call
	Allowance *big.Int
}

// AllowanceManager checks and establishes ERC-20 router allowances. An
// approval is always for the maximum amount so each token pays the approval
// gas cost at most once per account.
type AllowanceManager struct {
	caller    bind.ContractCaller
	submitter *Submitter
	spender   common.Address
	gasLimit  uint64
	tokenABI  abi.ABI
	logger    *observability.Logger
	metrics   *observability.Metrics
}

// AllowanceManagerConfig configures an AllowanceManager
type AllowanceManagerConfig struct {
	Caller    bind.ContractCaller
	Submitter *Submitter
	Spender   common.Address
	GasLimit  uint64
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

func NewAllowanceManager(cfg AllowanceManagerConfig) (*AllowanceManager, error) {
	if cfg.Caller == nil {
		return nil, fmt.Errorf("contract caller is required")
	}
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if cfg.Spender == (common.Address{}) {
		return nil, fmt.Errorf("spender address is required")
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing ERC-20 ABI: %w", err)
	}
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 100_000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger("info", "json")
	}
	return &AllowanceManager{
		caller:    cfg.Caller,
		submitter: cfg.Submitter,
		spender:   cfg.Spender,
		gasLimit:  gasLimit,
		tokenABI:  parsed,
		logger:    logger,
		metrics:   cfg.Metrics,
	}, nil
}

// Allowance reads the current router allowance for owner on token
func (m *AllowanceManager) Allowance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	contract := bind.NewBoundContract(token, m.tokenABI, m.caller, nil, nil)
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, m.spender); err != nil {
		return nil, fmt.Errorf("reading allowance for %s: %w", token.Hex(), err)
	}
	allowance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance result type %T", out[0])
	}
	return allowance, nil
}

// EnsureAllowance guarantees the router may spend at least required of
// token on behalf of the signer. It blocks until any needed approval is
// confirmed on chain; a swap must never race its own approval.
func (m *AllowanceManager) EnsureAllowance(ctx context.Context, signer wallet.Signer, token common.Address, required *big.Int) (*ApprovalOutcome, error) {
	if required == nil || required.Sign() < 0 {
		return nil, fmt.Errorf("required amount must be non-negative")
	}
	owner := signer.Address()

	current, err := m.Allowance(ctx, token, owner)
	if err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.RecordAllowanceCheck(ctx, token.Hex(), current.Cmp(required) < 0)
	}
	if current.Cmp(required) >= 0 {
		m.logger.LogDebug(ctx, "allowance already sufficient",
			"token", token.Hex(),
			"allowance", current.String(),
			"required", required.String(),
		)
		return &ApprovalOutcome{Approved: false, Allowance: current}, nil
	}

	data, err := m.tokenABI.Pack("approve", m.spender, abi.MaxUint256)
	if err != nil {
		return nil, fmt.Errorf("encoding approve: %w", err)
	}

	m.logger.LogInfo(ctx, "submitting approval",
		"token", token.Hex(),
		"spender", m.spender.Hex(),
		"current_allowance", current.String(),
		"required", required.String(),
	)

	receipt, err := m.submitter.Submit(ctx, signer, token, nil, data, m.gasLimit)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrSigningDeclined):
			return nil, fmt.Errorf("%w: %v", ErrApprovalRejected, err)
		case errors.Is(err, ErrTransactionReverted):
			return nil, fmt.Errorf("%w: %v", ErrApprovalReverted, err)
		default:
			return nil, fmt.Errorf("approval failed: %w", err)
		}
	}
	if m.metrics != nil {
		m.metrics.RecordApprovalSubmitted(ctx, token.Hex())
	}

	return &ApprovalOutcome{
		Approved:  true,
		TxHash:    receipt.TxHash,
		Allowance: new(big.Int).Set(abi.MaxUint256),
	}, nil
}
