package pricing

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/config"
)

type fakeSpotQuoter struct {
	out *big.Int
	err error
}

func (f *fakeSpotQuoter) QuoteBySpot(_ context.Context, _, _ config.TokenInfo, _ *big.Int) (*big.Int, error) {
	return f.out, f.err
}

type fakeContractQuoter struct {
	out   *big.Int
	err   error
	calls int
}

func (f *fakeContractQuoter) QuoteExactInputSingle(_ context.Context, _, _ config.TokenInfo, _ *big.Int) (*big.Int, error) {
	f.calls++
	return f.out, f.err
}

func mustEngine(t *testing.T, pool SpotQuoter, quoter ContractQuoter) *Engine {
	t.Helper()
	fallback, err := NewFallbackRater(3000)
	if err != nil {
		t.Fatalf("fallback rater: %v", err)
	}
	engine, err := NewEngine(EngineConfig{Pool: pool, Quoter: quoter, Fallback: fallback})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return engine
}

func ethUsdcPair(t *testing.T) (config.TokenInfo, config.TokenInfo) {
	t.Helper()
	eth, err := config.LookupToken("ETH")
	if err != nil {
		t.Fatal(err)
	}
	usdc, err := config.LookupToken("USDC")
	if err != nil {
		t.Fatal(err)
	}
	return eth, usdc
}

func TestQuoteUsesPoolDataTierFirst(t *testing.T) {
	eth, usdc := ethUsdcPair(t)
	want := big.NewInt(2_950_000_000) // 2950 USDC
	quoter := &fakeContractQuoter{out: big.NewInt(1)}

	engine := mustEngine(t, &fakeSpotQuoter{out: want}, quoter)

	quote, err := engine.Quote(context.Background(), eth, usdc, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Method != MethodPoolData {
		t.Fatalf("expected pool-data method, got %s", quote.Method)
	}
	if quote.AmountOut.Cmp(want) != 0 {
		t.Fatalf("unexpected amount out: %s", quote.AmountOut)
	}
	if quote.Warning != "" {
		t.Fatalf("authoritative quote must not warn: %q", quote.Warning)
	}
	if quoter.calls != 0 {
		t.Fatal("quoter tier must not run when pool tier succeeds")
	}
}

func TestQuoteDegradesToQuoterContract(t *testing.T) {
	eth, usdc := ethUsdcPair(t)
	want := big.NewInt(2_940_000_000)

	engine := mustEngine(t,
		&fakeSpotQuoter{err: ErrNoLiquidity},
		&fakeContractQuoter{out: want},
	)

	quote, err := engine.Quote(context.Background(), eth, usdc, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Method != MethodQuoterContract {
		t.Fatalf("expected quoter-contract method, got %s", quote.Method)
	}
	if quote.AmountOut.Cmp(want) != 0 {
		t.Fatalf("unexpected amount out: %s", quote.AmountOut)
	}
}

func TestQuoteFallsBackToStaticRate(t *testing.T) {
	eth, usdc := ethUsdcPair(t)

	// Zero liquidity + quoter revert: the chain must still produce a tagged
	// fallback quote, never an error.
	engine := mustEngine(t,
		&fakeSpotQuoter{err: ErrNoLiquidity},
		&fakeContractQuoter{err: errors.New("execution reverted")},
	)

	quote, err := engine.Quote(context.Background(), eth, usdc, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("fallback tier must not fail: %v", err)
	}
	if quote.Method != MethodFallbackRate {
		t.Fatalf("expected fallback-rate method, got %s", quote.Method)
	}
	if quote.Warning == "" {
		t.Fatal("fallback quote must carry a warning")
	}
	if quote.Authoritative() {
		t.Fatal("fallback quote must not be authoritative")
	}
	// 1 ETH at the static 3000 rate
	if want := big.NewInt(3_000_000_000); quote.AmountOut.Cmp(want) != 0 {
		t.Fatalf("unexpected fallback amount: %s, want %s", quote.AmountOut, want)
	}
}

func TestQuoteWithNilLiveTiers(t *testing.T) {
	eth, usdc := ethUsdcPair(t)
	engine := mustEngine(t, nil, nil)

	quote, err := engine.Quote(context.Background(), eth, usdc, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quote.Method != MethodFallbackRate {
		t.Fatalf("expected fallback-rate method, got %s", quote.Method)
	}
}

func TestQuoteRejectsInvalidInput(t *testing.T) {
	eth, usdc := ethUsdcPair(t)
	engine := mustEngine(t, nil, nil)

	if _, err := engine.Quote(context.Background(), eth, eth, big.NewInt(1)); err == nil {
		t.Fatal("expected error for identical tokens")
	}
	if _, err := engine.Quote(context.Background(), eth, usdc, big.NewInt(0)); err == nil {
		t.Fatal("expected error for zero amount")
	}
	if _, err := engine.Quote(context.Background(), eth, usdc, big.NewInt(-5)); err == nil {
		t.Fatal("expected error for negative amount")
	}
}
