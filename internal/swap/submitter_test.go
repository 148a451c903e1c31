package swap

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/wallet"
)

// Well-known throwaway development key, never funded on a real network
const devKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testChainID = big.NewInt(1)

type fakeBackend struct {
	mu            sync.Mutex
	nonce         uint64
	baseFee       *big.Int
	tip           *big.Int
	sent          []*types.Transaction
	sendErr       error
	receiptStatus uint64
	receiptDelay  int
	polls         int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		baseFee:       big.NewInt(10_000_000_000), // 10 gwei
		tip:           big.NewInt(1_000_000_000),  // 1 gwei
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func (b *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, nil
}

func (b *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &types.Header{Number: big.NewInt(100), BaseFee: new(big.Int).Set(b.baseFee)}, nil
}

func (b *fakeBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.tip), nil
}

func (b *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	b.nonce++
	return nil
}

func (b *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.polls++
	if b.polls <= b.receiptDelay {
		return nil, errors.New("not found")
	}
	return &types.Receipt{
		TxHash:      txHash,
		Status:      b.receiptStatus,
		BlockNumber: big.NewInt(101),
		GasUsed:     150_000,
	}, nil
}

func (b *fakeBackend) sentTxs() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*types.Transaction, len(b.sent))
	copy(out, b.sent)
	return out
}

func newTestSubmitter(t *testing.T, backend ChainBackend) *Submitter {
	t.Helper()
	s, err := NewSubmitter(SubmitterConfig{
		Backend:             backend,
		ChainID:             testChainID,
		GasFeeMultiplierBPS: 12000,
		PollInterval:        time.Millisecond,
		ConfirmTimeout:      time.Second,
	})
	if err != nil {
		t.Fatalf("NewSubmitter: %v", err)
	}
	return s
}

func testSigner(t *testing.T) wallet.Signer {
	t.Helper()
	signer, err := wallet.NewLocalSigner(devKeyHex, testChainID)
	if err != nil {
		t.Fatalf("NewLocalSigner: %v", err)
	}
	return signer
}

func TestGasFeesScaleBaseFee(t *testing.T) {
	backend := newFakeBackend()
	s := newTestSubmitter(t, backend)

	feeCap, tip, err := s.GasFees(context.Background())
	if err != nil {
		t.Fatalf("GasFees: %v", err)
	}
	// 10 gwei base scaled by 12000 bps plus a 1 gwei tip
	want := big.NewInt(13_000_000_000)
	if feeCap.Cmp(want) != 0 {
		t.Errorf("fee cap = %s, want %s", feeCap, want)
	}
	if tip.Cmp(backend.tip) != 0 {
		t.Errorf("tip = %s, want %s", tip, backend.tip)
	}
}

func TestSubmitBuildsDynamicFeeTx(t *testing.T) {
	backend := newFakeBackend()
	s := newTestSubmitter(t, backend)
	signer := testSigner(t)

	to := common.HexToAddress(testRouter)
	value := big.NewInt(1e18)
	data := []byte{0x01, 0x02}

	receipt, err := s.Submit(context.Background(), signer, to, value, data, 1_000_000)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.Errorf("receipt status = %d", receipt.Status)
	}

	sent := backend.sentTxs()
	if len(sent) != 1 {
		t.Fatalf("sent = %d txs, want 1", len(sent))
	}
	tx := sent[0]
	if tx.Type() != types.DynamicFeeTxType {
		t.Errorf("tx type = %d, want dynamic fee", tx.Type())
	}
	if *tx.To() != to {
		t.Errorf("to = %s", tx.To())
	}
	if tx.Value().Cmp(value) != 0 {
		t.Errorf("value = %s", tx.Value())
	}
	if tx.Gas() != 1_000_000 {
		t.Errorf("gas = %d", tx.Gas())
	}
	if tx.GasFeeCap().Cmp(big.NewInt(13_000_000_000)) != 0 {
		t.Errorf("fee cap = %s", tx.GasFeeCap())
	}

	// The signature must recover to the signer's address
	from, err := types.Sender(types.LatestSignerForChainID(testChainID), tx)
	if err != nil {
		t.Fatalf("recovering sender: %v", err)
	}
	if from != signer.Address() {
		t.Errorf("sender = %s, want %s", from, signer.Address())
	}
}

func TestSubmitRevertedReceipt(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptStatus = types.ReceiptStatusFailed
	s := newTestSubmitter(t, backend)

	_, err := s.Submit(context.Background(), testSigner(t), common.HexToAddress(testRouter), nil, nil, 100_000)
	if !errors.Is(err, ErrTransactionReverted) {
		t.Errorf("err = %v, want ErrTransactionReverted", err)
	}
}

func TestSubmitWaitsForLateReceipt(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptDelay = 3
	s := newTestSubmitter(t, backend)

	receipt, err := s.Submit(context.Background(), testSigner(t), common.HexToAddress(testRouter), nil, nil, 100_000)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if receipt == nil || receipt.Status != types.ReceiptStatusSuccessful {
		t.Errorf("receipt = %+v", receipt)
	}
}

func TestWaitPlanReceiptExpiredDeadline(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptStatus = types.ReceiptStatusFailed
	s := newTestSubmitter(t, backend)

	signed, err := s.Broadcast(context.Background(), testSigner(t), common.HexToAddress(testRouter), big.NewInt(0), []byte{0x0a}, 100_000)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	_, err = s.WaitPlanReceipt(context.Background(), signed.Hash(), time.Now().Add(-time.Minute))
	if !errors.Is(err, ErrDeadlineExceeded) {
		t.Errorf("expired deadline err = %v, want ErrDeadlineExceeded", err)
	}
}

func TestWaitPlanReceiptRevertBeforeDeadline(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptStatus = types.ReceiptStatusFailed
	s := newTestSubmitter(t, backend)

	signed, err := s.Broadcast(context.Background(), testSigner(t), common.HexToAddress(testRouter), big.NewInt(0), []byte{0x0a}, 100_000)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	_, err = s.WaitPlanReceipt(context.Background(), signed.Hash(), time.Now().Add(time.Hour))
	if !errors.Is(err, ErrTransactionReverted) {
		t.Errorf("revert err = %v, want ErrTransactionReverted", err)
	}
	if errors.Is(err, ErrDeadlineExceeded) {
		t.Error("revert inside the deadline window must not be reported as deadline exceeded")
	}
}
