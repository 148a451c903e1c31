package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/money"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/wallet"
)

// ChainBackend is the slice of RPC surface the submitter needs. ClientPool
// satisfies it.
type ChainBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// SubmitterConfig configures a Submitter
type SubmitterConfig struct {
	Backend ChainBackend
	ChainID *big.Int
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  observability.Tracer

	// GasFeeMultiplierBPS scales the current base fee to produce the fee
	// cap headroom; 12000 means cap at 1.2x base plus the priority tip.
	GasFeeMultiplierBPS money.BPS
	// PollInterval is how often to check for a receipt after broadcast
	PollInterval time.Duration
	// ConfirmTimeout bounds the whole wait for a receipt
	ConfirmTimeout time.Duration
}

// Submitter signs and broadcasts EIP-1559 transactions and waits for their
// receipts. It never retries a broadcast: a transaction that reached the
// network must not be sent twice.
type Submitter struct {
	backend      ChainBackend
	chainID      *big.Int
	logger       *observability.Logger
	metrics      *observability.Metrics
	tracer       observability.Tracer
	feeMultBPS   money.BPS
	pollInterval time.Duration
	confirmTO    time.Duration
}

func NewSubmitter(cfg SubmitterConfig) (*Submitter, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("valid chain ID is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger("info", "json")
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.NewTracer("", false)
	}
	feeMult := cfg.GasFeeMultiplierBPS
	if feeMult == 0 {
		feeMult = 12000
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 3 * time.Second
	}
	confirm := cfg.ConfirmTimeout
	if confirm <= 0 {
		confirm = 5 * time.Minute
	}
	return &Submitter{
		backend:      cfg.Backend,
		chainID:      new(big.Int).Set(cfg.ChainID),
		logger:       logger,
		metrics:      cfg.Metrics,
		tracer:       tracer,
		feeMultBPS:   feeMult,
		pollInterval: poll,
		confirmTO:    confirm,
	}, nil
}

// GasFees returns the fee cap and tip for a transaction built now. The cap
// is the scaled base fee plus the tip so a base fee bump between estimation
// and inclusion does not strand the transaction.
func (s *Submitter) GasFees(ctx context.Context) (feeCap, tip *big.Int, err error) {
	header, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching head for base fee: %w", err)
	}
	if header.BaseFee == nil {
		return nil, nil, fmt.Errorf("chain does not report a base fee")
	}
	tip, err = s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching gas tip: %w", err)
	}
	feeCap = money.ScaleByBPS(header.BaseFee, s.feeMultBPS)
	feeCap.Add(feeCap, tip)
	if s.metrics != nil {
		baseFee, _ := new(big.Float).SetInt(header.BaseFee).Float64()
		s.metrics.RecordGasPrice(ctx, baseFee)
	}
	return feeCap, tip, nil
}

// Broadcast signs and sends a single transaction without waiting for its
// receipt. Any error here means the swap never reached a block; funds are
// untouched.
func (s *Submitter) Broadcast(ctx context.Context, signer wallet.Signer, to common.Address, value *big.Int, data []byte, gasLimit uint64) (*types.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "swap.broadcast")
	defer span.End()

	nonce, err := s.backend.PendingNonceAt(ctx, signer.Address())
	if err != nil {
		return nil, fmt.Errorf("fetching nonce: %w", err)
	}
	feeCap, tip, err := s.GasFees(ctx)
	if err != nil {
		return nil, err
	}
	if value == nil {
		value = big.NewInt(0)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := signer.SignTx(tx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("signing transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("broadcasting transaction: %w", err)
	}

	s.logger.LogInfo(ctx, "transaction broadcast",
		"tx_hash", signed.Hash().Hex(),
		"nonce", nonce,
		"gas_fee_cap", feeCap.String(),
		"gas_tip", tip.String(),
		"gas_limit", gasLimit,
	)
	return signed, nil
}

// Submit signs and broadcasts a single transaction and waits for its
// receipt. A status-0 receipt is returned alongside ErrTransactionReverted.
func (s *Submitter) Submit(ctx context.Context, signer wallet.Signer, to common.Address, value *big.Int, data []byte, gasLimit uint64) (*types.Receipt, error) {
	signed, err := s.Broadcast(ctx, signer, to, value, data, gasLimit)
	if err != nil {
		return nil, err
	}
	return s.WaitReceipt(ctx, signed.Hash())
}

// WaitPlanReceipt waits for a plan's transaction. A reverted swap that
// landed after the plan's deadline is reported as ErrDeadlineExceeded since
// the router's deadline check is the usual cause.
func (s *Submitter) WaitPlanReceipt(ctx context.Context, hash common.Hash, deadline time.Time) (*types.Receipt, error) {
	receipt, err := s.WaitReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrTransactionReverted) && time.Now().After(deadline) {
			return receipt, fmt.Errorf("%w: plan deadline %s passed", ErrDeadlineExceeded, deadline.Format(time.RFC3339))
		}
		return receipt, err
	}
	return receipt, nil
}

// WaitReceipt polls for the receipt of a broadcast transaction until it
// lands or the confirm timeout elapses.
func (s *Submitter) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.confirmTO)
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusFailed {
				s.logger.LogWarn(ctx, "transaction reverted on chain",
					"tx_hash", hash.Hex(),
					"block", receipt.BlockNumber.String(),
				)
				return receipt, fmt.Errorf("%w: tx %s", ErrTransactionReverted, hash.Hex())
			}
			s.logger.LogInfo(ctx, "transaction confirmed",
				"tx_hash", hash.Hex(),
				"block", receipt.BlockNumber.String(),
				"gas_used", receipt.GasUsed,
			)
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt of %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
