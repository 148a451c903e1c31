package swap

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/wallet"
)

// fakeCaller answers allowance reads with a fixed value
type fakeCaller struct {
	mu        sync.Mutex
	allowance *big.Int
	calls     int
}

func (c *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (c *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return common.LeftPadBytes(c.allowance.Bytes(), 32), nil
}

type decliningSigner struct {
	addr common.Address
}

func (s *decliningSigner) Address() common.Address { return s.addr }

func (s *decliningSigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	return nil, wallet.ErrSigningDeclined
}

func newTestAllowanceManager(t *testing.T, caller *fakeCaller, backend ChainBackend) *AllowanceManager {
	t.Helper()
	m, err := NewAllowanceManager(AllowanceManagerConfig{
		Caller:    caller,
		Submitter: newTestSubmitter(t, backend),
		Spender:   common.HexToAddress(testRouter),
		GasLimit:  100_000,
	})
	if err != nil {
		t.Fatalf("NewAllowanceManager: %v", err)
	}
	return m
}

func TestEnsureAllowanceSufficient(t *testing.T) {
	caller := &fakeCaller{allowance: big.NewInt(5_000_000_000)}
	backend := newFakeBackend()
	m := newTestAllowanceManager(t, caller, backend)

	token := common.HexToAddress(testUSDC.Address)
	outcome, err := m.EnsureAllowance(context.Background(), testSigner(t), token, big.NewInt(3_000_000_000))
	if err != nil {
		t.Fatalf("EnsureAllowance: %v", err)
	}
	if outcome.Approved {
		t.Error("no approval should be needed")
	}
	if len(backend.sentTxs()) != 0 {
		t.Errorf("sent %d txs, want 0", len(backend.sentTxs()))
	}
	if outcome.Allowance.Cmp(big.NewInt(5_000_000_000)) != 0 {
		t.Errorf("allowance = %s", outcome.Allowance)
	}
}

func TestEnsureAllowanceApprovesMax(t *testing.T) {
	caller := &fakeCaller{allowance: big.NewInt(0)}
	backend := newFakeBackend()
	m := newTestAllowanceManager(t, caller, backend)

	token := common.HexToAddress(testUSDC.Address)
	outcome, err := m.EnsureAllowance(context.Background(), testSigner(t), token, big.NewInt(3_000_000_000))
	if err != nil {
		t.Fatalf("EnsureAllowance: %v", err)
	}
	if !outcome.Approved {
		t.Fatal("approval should be submitted")
	}
	sent := backend.sentTxs()
	if len(sent) != 1 {
		t.Fatalf("sent %d txs, want 1", len(sent))
	}
	tx := sent[0]
	if *tx.To() != token {
		t.Errorf("approval sent to %s, want token", tx.To())
	}

	// Decode the calldata: approve(router, MaxUint256)
	method, err := m.tokenABI.MethodById(tx.Data()[:4])
	if err != nil || method.Name != "approve" {
		t.Fatalf("selector = %v (err %v), want approve", method, err)
	}
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatalf("unpacking approve: %v", err)
	}
	if args[0].(common.Address) != common.HexToAddress(testRouter) {
		t.Errorf("spender = %s, want router", args[0])
	}
	if args[1].(*big.Int).Cmp(abi.MaxUint256) != 0 {
		t.Errorf("amount = %s, want MaxUint256", args[1])
	}
	if outcome.TxHash != tx.Hash() {
		t.Errorf("outcome hash = %s, want %s", outcome.TxHash, tx.Hash())
	}
}

func TestEnsureAllowanceSigningDeclined(t *testing.T) {
	caller := &fakeCaller{allowance: big.NewInt(0)}
	backend := newFakeBackend()
	m := newTestAllowanceManager(t, caller, backend)

	signer := &decliningSigner{addr: testUser}
	_, err := m.EnsureAllowance(context.Background(), signer, common.HexToAddress(testUSDC.Address), big.NewInt(1))
	if !errors.Is(err, ErrApprovalRejected) {
		t.Errorf("err = %v, want ErrApprovalRejected", err)
	}
	if len(backend.sentTxs()) != 0 {
		t.Error("declined approval must not reach the network")
	}
}

func TestEnsureAllowanceReverted(t *testing.T) {
	caller := &fakeCaller{allowance: big.NewInt(0)}
	backend := newFakeBackend()
	backend.receiptStatus = types.ReceiptStatusFailed
	m := newTestAllowanceManager(t, caller, backend)

	_, err := m.EnsureAllowance(context.Background(), testSigner(t), common.HexToAddress(testUSDC.Address), big.NewInt(1))
	if !errors.Is(err, ErrApprovalReverted) {
		t.Errorf("err = %v, want ErrApprovalReverted", err)
	}
}
