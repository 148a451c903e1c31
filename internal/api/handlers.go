package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/money"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/config"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/pricing"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/swap"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/units"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/wallet"
)

const displayPrecision = 6

// errorCode maps known errors onto stable machine-readable codes
func errorCode(err error) string {
	switch {
	case errors.Is(err, swap.ErrInvalidPair):
		return "invalid_pair"
	case errors.Is(err, swap.ErrInsufficientInput):
		return "insufficient_input"
	case errors.Is(err, swap.ErrStaleQuote), errors.Is(err, swap.ErrNoQuote):
		return "stale_quote"
	case errors.Is(err, swap.ErrSwapInFlight):
		return "swap_in_flight"
	case errors.Is(err, swap.ErrApprovalRejected):
		return "approval_rejected"
	case errors.Is(err, swap.ErrApprovalReverted):
		return "approval_reverted"
	case errors.Is(err, swap.ErrDeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, swap.ErrTransactionReverted):
		return "transaction_reverted"
	case errors.Is(err, wallet.ErrSigningDeclined):
		return "signing_declined"
	case errors.Is(err, pricing.ErrNoLiquidity):
		return "no_liquidity"
	default:
		var parseErr *units.ParseError
		if errors.As(err, &parseErr) {
			return "invalid_amount"
		}
		return "internal"
	}
}

type quoteRequest struct {
	TokenIn  string `json:"tokenIn"`
	TokenOut string `json:"tokenOut"`
	// Amount is a human decimal string in the input token's units
	Amount string `json:"amount"`
	// SlippageBPS is optional; the configured floor and cap still apply
	SlippageBPS int64 `json:"slippageBps,omitempty"`
}

type quoteResponse struct {
	TokenIn         string `json:"tokenIn"`
	TokenOut        string `json:"tokenOut"`
	AmountIn        string `json:"amountIn"`
	AmountOut       string `json:"amountOut"`
	AmountInRaw     string `json:"amountInRaw"`
	AmountOutRaw    string `json:"amountOutRaw"`
	Method          string `json:"method"`
	Warning         string `json:"warning,omitempty"`
	PriceImpactBPS  int64  `json:"priceImpactBps"`
	EffectiveBPS    int64  `json:"effectiveSlippageBps"`
	MinimumOut      string `json:"minimumOut"`
	MinimumOutRaw   string `json:"minimumOutRaw"`
	RequiresApprove bool   `json:"requiresApproval"`
}

func (s *Server) parseIntent(r *http.Request) (swap.Intent, error) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return swap.Intent{}, fmt.Errorf("decoding request: %w", err)
	}
	tokenIn, err := config.LookupToken(req.TokenIn)
	if err != nil {
		return swap.Intent{}, err
	}
	tokenOut, err := config.LookupToken(req.TokenOut)
	if err != nil {
		return swap.Intent{}, err
	}
	amountIn, err := units.ToBaseUnits(req.Amount, tokenIn.Decimals)
	if err != nil {
		return swap.Intent{}, err
	}
	slippage := money.BPS(req.SlippageBPS)
	if slippage == 0 {
		slippage = pricing.PriceImpactBand(amountIn, tokenIn.Decimals)
	}
	return swap.Intent{
		InToken:  tokenIn,
		OutToken: tokenOut,
		AmountIn: amountIn,
		Slippage: slippage,
	}, nil
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	intent, err := s.parseIntent(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	quote, err := s.swap.Estimate(r.Context(), intent)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.writeQuote(w, intent, quote)
}

func (s *Server) writeQuote(w http.ResponseWriter, intent swap.Intent, quote *pricing.Quote) {
	plan := s.swap.CurrentPlan()
	resp := quoteResponse{
		TokenIn:        quote.InToken.Symbol,
		TokenOut:       quote.OutToken.Symbol,
		AmountIn:       units.FromBaseUnits(quote.AmountIn, quote.InToken.Decimals, displayPrecision),
		AmountOut:      units.FromBaseUnits(quote.AmountOut, quote.OutToken.Decimals, displayPrecision),
		AmountInRaw:    quote.AmountIn.String(),
		AmountOutRaw:   quote.AmountOut.String(),
		Method:         string(quote.Method),
		Warning:        quote.Warning,
		PriceImpactBPS: int64(pricing.PriceImpactBand(quote.AmountIn, quote.InToken.Decimals)),
	}
	if plan != nil {
		resp.MinimumOut = units.FromBaseUnits(plan.MinimumOut, quote.OutToken.Decimals, displayPrecision)
		resp.MinimumOutRaw = plan.MinimumOut.String()
		resp.RequiresApprove = plan.RequiresAllowance()
		resp.EffectiveBPS = int64(plan.SlippageBPS)
	}
	writeJSON(w, http.StatusOK, resp)
}

type buildResponse struct {
	Direction  string        `json:"direction"`
	Kind       string        `json:"kind"`
	Router     string        `json:"router"`
	Value      string        `json:"value"`
	GasLimit   uint64        `json:"gasLimit"`
	Deadline   int64         `json:"deadline"`
	MinimumOut string        `json:"minimumOutRaw"`
	SubCalls   []subCallView `json:"subCalls"`
}

type subCallView struct {
	Method    string `json:"method"`
	Recipient string `json:"recipient"`
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	intent, err := s.parseIntent(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.swap.Estimate(r.Context(), intent); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	plan := s.swap.CurrentPlan()
	if plan == nil {
		writeError(w, http.StatusConflict, swap.ErrNoQuote)
		return
	}

	resp := buildResponse{
		Direction:  plan.Direction.String(),
		Kind:       string(plan.Kind),
		Router:     plan.Router.Hex(),
		Value:      plan.Value.String(),
		GasLimit:   plan.GasLimit,
		Deadline:   plan.Deadline.Unix(),
		MinimumOut: plan.MinimumOut.String(),
	}
	for _, call := range plan.SubCalls {
		resp.SubCalls = append(resp.SubCalls, subCallView{
			Method:    call.Method,
			Recipient: call.Recipient.Hex(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type submitResponse struct {
	TxHash    string `json:"txHash,omitempty"`
	State     string `json:"state"`
	AmountOut string `json:"amountOutRaw,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}

	outcome, err := s.swap.ExecuteSwap(r.Context())
	if err != nil {
		writeSwapError(w, statusFor(err), outcome, err)
		return
	}
	resp := submitResponse{
		TxHash: outcome.TxHash.Hex(),
		State:  outcome.State.String(),
	}
	if outcome.AmountOut != nil {
		resp.AmountOut = outcome.AmountOut.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

type allowanceResponse struct {
	Required   bool   `json:"required"`
	Sufficient bool   `json:"sufficient"`
	Allowance  string `json:"allowance,omitempty"`
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("GET required"))
		return
	}
	allowance, sufficient, err := s.swap.AllowanceStatus(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	resp := allowanceResponse{Required: allowance != nil, Sufficient: sufficient}
	if allowance != nil {
		resp.Allowance = allowance.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

type balanceView struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
	Amount  string `json:"amountRaw"`
	Display string `json:"display"`
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	if s.balances == nil {
		writeError(w, http.StatusNotImplemented, errors.New("balance service not configured"))
		return
	}
	accountHex := r.URL.Query().Get("account")
	if !common.IsHexAddress(accountHex) {
		writeError(w, http.StatusBadRequest, errors.New("valid account query parameter required"))
		return
	}

	balances, err := s.balances.All(r.Context(), common.HexToAddress(accountHex))
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	views := make([]balanceView, 0, len(balances))
	for _, b := range balances {
		views = append(views, balanceView{
			Symbol:  b.Token.Symbol,
			Address: b.Token.Address,
			Amount:  b.Amount.String(),
			Display: b.Display,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	tokens := make([]config.TokenInfo, 0, len(config.TokenRegistry))
	for _, t := range config.TokenRegistry {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Symbol < tokens[j].Symbol })
	writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pool != nil && s.pool.HealthyEndpointCount() == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no healthy RPC endpoints"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, swap.ErrInvalidPair), errors.Is(err, swap.ErrInsufficientInput):
		return http.StatusBadRequest
	case errors.Is(err, swap.ErrStaleQuote), errors.Is(err, swap.ErrNoQuote):
		return http.StatusConflict
	case errors.Is(err, swap.ErrSwapInFlight):
		return http.StatusConflict
	case errors.Is(err, wallet.ErrSigningDeclined),
		errors.Is(err, swap.ErrApprovalRejected):
		return http.StatusForbidden
	case errors.Is(err, swap.ErrTransactionReverted),
		errors.Is(err, swap.ErrApprovalReverted),
		errors.Is(err, swap.ErrDeadlineExceeded):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
