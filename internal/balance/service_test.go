package balance

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/cache"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/config"
)

type fakeReader struct {
	mu       sync.Mutex
	native   *big.Int
	token    *big.Int
	reads    int
	callErrs map[string]error
}

func (r *fakeReader) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	return new(big.Int).Set(r.native), nil
}

func (r *fakeReader) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (r *fakeReader) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if err := r.callErrs[call.To.Hex()]; err != nil {
		return nil, err
	}
	return common.LeftPadBytes(r.token.Bytes(), 32), nil
}

func (r *fakeReader) readCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

var testAccount = common.HexToAddress("0x1111111111111111111111111111111111111111")

func newTestService(t *testing.T, reader *fakeReader, c cache.Cache) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		Reader: reader,
		Cache:  c,
		TTL:    time.Minute,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestOfNativeAndToken(t *testing.T) {
	reader := &fakeReader{
		native: big.NewInt(2_500_000_000_000_000_000), // 2.5 ETH
		token:  big.NewInt(1_234_567),                 // 1.234567 USDC
	}
	svc := newTestService(t, reader, nil)
	ctx := context.Background()

	eth, err := svc.Of(ctx, testAccount, config.TokenRegistry["ETH"])
	if err != nil {
		t.Fatalf("Of ETH: %v", err)
	}
	if eth.Amount.Cmp(reader.native) != 0 {
		t.Errorf("ETH amount = %s", eth.Amount)
	}
	if eth.Display != "2.5" {
		t.Errorf("ETH display = %q, want 2.5", eth.Display)
	}

	usdc, err := svc.Of(ctx, testAccount, config.TokenRegistry["USDC"])
	if err != nil {
		t.Fatalf("Of USDC: %v", err)
	}
	if usdc.Display != "1.234567" {
		t.Errorf("USDC display = %q, want 1.234567", usdc.Display)
	}
}

func TestOfServesFromCache(t *testing.T) {
	reader := &fakeReader{native: big.NewInt(1e18), token: big.NewInt(1)}
	mem := cache.NewMemoryCache(16)
	defer mem.Close()
	svc := newTestService(t, reader, mem)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Of(ctx, testAccount, config.TokenRegistry["ETH"]); err != nil {
			t.Fatalf("Of: %v", err)
		}
	}
	if got := reader.readCount(); got != 1 {
		t.Errorf("chain reads = %d, want 1", got)
	}
}

func TestAllReadsEveryToken(t *testing.T) {
	reader := &fakeReader{native: big.NewInt(1e18), token: big.NewInt(5_000_000)}
	svc := newTestService(t, reader, nil)

	balances, err := svc.All(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(balances) != len(config.TokenRegistry) {
		t.Fatalf("balances = %d, want %d", len(balances), len(config.TokenRegistry))
	}
	// Sorted by symbol: ETH, USDC, WETH
	if balances[0].Token.Symbol != "ETH" || balances[1].Token.Symbol != "USDC" || balances[2].Token.Symbol != "WETH" {
		t.Errorf("order = %s %s %s", balances[0].Token.Symbol, balances[1].Token.Symbol, balances[2].Token.Symbol)
	}
	for _, b := range balances {
		if b.Amount == nil || b.Amount.Sign() <= 0 {
			t.Errorf("%s amount = %v", b.Token.Symbol, b.Amount)
		}
	}
}

func TestInvalidateDropsAccountOnly(t *testing.T) {
	reader := &fakeReader{native: big.NewInt(1e18), token: big.NewInt(1)}
	mem := cache.NewMemoryCache(16)
	defer mem.Close()
	svc := newTestService(t, reader, mem)
	ctx := context.Background()

	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	if _, err := svc.Of(ctx, testAccount, config.TokenRegistry["ETH"]); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Of(ctx, other, config.TokenRegistry["ETH"]); err != nil {
		t.Fatal(err)
	}
	before := reader.readCount()

	svc.Invalidate(ctx, testAccount)

	// The invalidated account re-reads; the other still serves from cache
	if _, err := svc.Of(ctx, testAccount, config.TokenRegistry["ETH"]); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Of(ctx, other, config.TokenRegistry["ETH"]); err != nil {
		t.Fatal(err)
	}
	if got := reader.readCount(); got != before+1 {
		t.Errorf("chain reads after invalidation = %d, want %d", got, before+1)
	}
}

func TestDustRendersAsFloor(t *testing.T) {
	reader := &fakeReader{native: big.NewInt(1), token: big.NewInt(1)} // 1 wei
	svc := newTestService(t, reader, nil)

	b, err := svc.Of(context.Background(), testAccount, config.TokenRegistry["ETH"])
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	if b.Display != "< 0.000001" {
		t.Errorf("display = %q, want < 0.000001", b.Display)
	}
}
