package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/config"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/pricing"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/swap"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/wallet"
)

const devKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fixedQuoter struct{}

func (fixedQuoter) Quote(ctx context.Context, tokenIn, tokenOut config.TokenInfo, amountIn *big.Int) (*pricing.Quote, error) {
	out := new(big.Int).Mul(amountIn, big.NewInt(3000))
	out.Div(out, big.NewInt(1e12))
	return &pricing.Quote{
		InToken:   tokenIn,
		OutToken:  tokenOut,
		AmountIn:  amountIn,
		AmountOut: out,
		Method:    pricing.MethodQuoterContract,
		Timestamp: time.Now(),
	}, nil
}

type stubBackend struct{}

func (stubBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (stubBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1), BaseFee: big.NewInt(1e9)}, nil
}

func (stubBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e8), nil
}

func (stubBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return errors.New("no network in tests")
}

func (stubBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, errors.New("not found")
}

func (stubBackend) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (stubBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return common.LeftPadBytes(big.NewInt(0).Bytes(), 32), nil
}

// revertingBackend accepts the broadcast but reports a status-0 receipt,
// simulating a swap that reverted on chain.
type revertingBackend struct{ stubBackend }

func (revertingBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return nil
}

func (revertingBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{TxHash: txHash, Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(2)}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWith(t, stubBackend{})
}

func newTestServerWith(t *testing.T, backend swap.ChainBackend) *Server {
	t.Helper()
	signer, err := wallet.NewLocalSigner(devKeyHex, big.NewInt(1))
	if err != nil {
		t.Fatalf("NewLocalSigner: %v", err)
	}
	session := wallet.NewSession(signer, big.NewInt(1))

	builder, err := swap.NewBuilder(swap.BuilderConfig{
		Uniswap: config.UniswapConfig{
			RouterAddress: "0xE592427A0AEce92De3Edee1F18E0157C05861564",
			WETHAddress:   "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			FeeTier:       3000,
		},
		Swap: config.SwapConfig{
			MinEffectiveSlippageBPS: 10,
			MaxSlippageBPS:          500,
			DeadlineWindow:          20 * time.Minute,
			GasLimitSwap:            1_000_000,
			GasLimitMulticall:       1_200_000,
		},
	})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	submitter, err := swap.NewSubmitter(swap.SubmitterConfig{
		Backend:        backend,
		ChainID:        big.NewInt(1),
		PollInterval:   time.Millisecond,
		ConfirmTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSubmitter: %v", err)
	}
	svc, err := swap.NewService(swap.ServiceConfig{
		Quoter:           fixedQuoter{},
		Builder:          builder,
		Submitter:        submitter,
		Wallet:           session,
		DebounceInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	server, err := NewServer(ServerConfig{Port: 0, Swap: svc})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return server
}

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleQuote(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.handleQuote, quoteRequest{
		TokenIn:  "ETH",
		TokenOut: "USDC",
		Amount:   "1.5",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp quoteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Method != "quoter-contract" {
		t.Errorf("method = %s", resp.Method)
	}
	if resp.AmountInRaw != "1500000000000000000" {
		t.Errorf("amountInRaw = %s", resp.AmountInRaw)
	}
	if resp.AmountOut != "4500" {
		t.Errorf("amountOut = %s, want 4500", resp.AmountOut)
	}
	if resp.MinimumOutRaw == "" || resp.RequiresApprove {
		t.Errorf("plan fields: minOut=%q requiresApprove=%v", resp.MinimumOutRaw, resp.RequiresApprove)
	}
	if resp.EffectiveBPS < 10 || resp.EffectiveBPS > 500 {
		t.Errorf("effective slippage = %d out of bounds", resp.EffectiveBPS)
	}
}

func TestHandleQuoteRejectsUnknownToken(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.handleQuote, quoteRequest{TokenIn: "DOGE", TokenOut: "USDC", Amount: "1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHandleQuoteRejectsBadAmount(t *testing.T) {
	s := newTestServer(t)
	for _, amount := range []string{"", "-1", "abc", "1.2.3"} {
		rec := postJSON(t, s.handleQuote, quoteRequest{TokenIn: "ETH", TokenOut: "USDC", Amount: amount})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("amount %q: status = %d, want 400", amount, rec.Code)
		}
	}
}

func TestHandleBuildShape(t *testing.T) {
	s := newTestServer(t)
	rec := postJSON(t, s.handleBuild, quoteRequest{TokenIn: "USDC", TokenOut: "ETH", Amount: "3000"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp buildResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Direction != "token-to-native" || resp.Kind != "composed-call" {
		t.Errorf("direction/kind = %s/%s", resp.Direction, resp.Kind)
	}
	if len(resp.SubCalls) != 2 {
		t.Errorf("sub-calls = %d, want 2", len(resp.SubCalls))
	}
	if resp.Value != "0" {
		t.Errorf("value = %s, want 0", resp.Value)
	}
}

func TestHandleSubmitWithoutPlan(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/swap/submit", nil)
	rec := httptest.NewRecorder()
	s.handleSubmit(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Code != "stale_quote" {
		t.Errorf("code = %s", resp.Code)
	}
	if resp.Phase != "pre-submission" {
		t.Errorf("phase = %s, want pre-submission", resp.Phase)
	}
}

func TestHandleSubmitRevertedCarriesTxHash(t *testing.T) {
	s := newTestServerWith(t, revertingBackend{})
	rec := postJSON(t, s.handleQuote, quoteRequest{
		TokenIn:  "ETH",
		TokenOut: "USDC",
		Amount:   "1.5",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("quote status = %d, body %s", rec.Code, rec.Body)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/swap/submit", nil)
	rec = httptest.NewRecorder()
	s.handleSubmit(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Code != "transaction_reverted" {
		t.Errorf("code = %s", resp.Code)
	}
	if resp.Phase != "post-submission" {
		t.Errorf("phase = %s, want post-submission", resp.Phase)
	}
	// A transaction reached the chain; the caller needs its reference.
	if resp.TxHash == "" {
		t.Error("error envelope should carry the transaction hash")
	}
}

func TestHandleTokens(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/tokens", nil)
	rec := httptest.NewRecorder()
	s.handleTokens(rec, req)

	var tokens []config.TokenInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &tokens); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(tokens) != 3 {
		t.Fatalf("tokens = %d, want 3", len(tokens))
	}
	if tokens[0].Symbol != "ETH" {
		t.Errorf("first token = %s, want ETH", tokens[0].Symbol)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{swap.ErrInvalidPair, "invalid_pair"},
		{swap.ErrSwapInFlight, "swap_in_flight"},
		{swap.ErrTransactionReverted, "transaction_reverted"},
		{wallet.ErrSigningDeclined, "signing_declined"},
		{errors.New("boom"), "internal"},
	}
	for _, tc := range cases {
		if got := errorCode(tc.err); got != tc.want {
			t.Errorf("errorCode(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
