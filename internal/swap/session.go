package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/config"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/pricing"
	"github.com/JosephMiPatchen/uniswap-swap-service/internal/wallet"
)

// Quoter produces output estimates for a token pair. *pricing.Engine
// satisfies it.
type Quoter interface {
	Quote(ctx context.Context, tokenIn, tokenOut config.TokenInfo, amountIn *big.Int) (*pricing.Quote, error)
}

// Outcome describes a finished swap attempt
type Outcome struct {
	TxHash    common.Hash
	State     State
	Intent    Intent
	AmountOut *big.Int
	Err       error
}

// OutcomeReporter receives terminal swap outcomes. Implementations must not
// block; reporting runs on the swap path.
type OutcomeReporter interface {
	ReportSwapOutcome(ctx context.Context, outcome Outcome)
}

// FailurePhase distinguishes errors that happened before a transaction
// reached the network from errors decided on chain.
type FailurePhase int

const (
	// PhaseNone means no failure
	PhaseNone FailurePhase = iota
	// PhasePreSubmission means the transaction never left this process;
	// the user's funds are untouched and the attempt can simply be retried.
	PhasePreSubmission
	// PhasePostSubmission means the transaction was mined and reverted;
	// gas was spent even though the swap did not happen.
	PhasePostSubmission
)

func (p FailurePhase) String() string {
	switch p {
	case PhasePreSubmission:
		return "pre-submission"
	case PhasePostSubmission:
		return "post-submission"
	default:
		return "none"
	}
}

// FailurePhaseOf classifies an error with no transaction reference. Errors
// decided on chain are post-submission; everything else never left the
// process.
func FailurePhaseOf(err error) FailurePhase {
	if err == nil {
		return PhaseNone
	}
	if errors.Is(err, ErrTransactionReverted) || errors.Is(err, ErrDeadlineExceeded) {
		return PhasePostSubmission
	}
	return PhasePreSubmission
}

// Phase classifies a finished attempt. Any outcome carrying a transaction
// hash is post-submission regardless of the error: a receipt wait that
// timed out left a live transaction that may still confirm, so the caller
// must never be told nothing happened.
func (o Outcome) Phase() FailurePhase {
	if o.Err == nil {
		return PhaseNone
	}
	if o.TxHash != (common.Hash{}) {
		return PhasePostSubmission
	}
	return FailurePhaseOf(o.Err)
}

// ServiceConfig wires a swap Service
type ServiceConfig struct {
	Quoter    Quoter
	Builder   *Builder
	Allowance *AllowanceManager
	Submitter *Submitter
	Wallet    *wallet.Session
	Reporter  OutcomeReporter
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tracer    observability.Tracer

	// DebounceInterval is how long intent updates settle before a quote
	// request fires
	DebounceInterval time.Duration
}

// Service owns one user's swap lifecycle: it debounces intent changes into
// quote requests, holds at most one executable plan, and runs at most one
// swap at a time.
type Service struct {
	quoter    Quoter
	builder   *Builder
	allowance *AllowanceManager
	submitter *Submitter
	wallet    *wallet.Session
	reporter  OutcomeReporter
	sm        *StateMachine
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    observability.Tracer
	debounce  time.Duration

	// generation stamps every intent update; results carrying an older
	// stamp are discarded, so only the newest intent ever lands.
	generation atomic.Uint64
	inFlight   atomic.Bool

	mu     sync.Mutex
	intent *Intent
	quote  *pricing.Quote
	plan   *Plan
	timer  *time.Timer
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Quoter == nil {
		return nil, fmt.Errorf("quoter is required")
	}
	if cfg.Builder == nil {
		return nil, fmt.Errorf("builder is required")
	}
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	if cfg.Wallet == nil {
		return nil, fmt.Errorf("wallet session is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewLogger("info", "json")
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.NewTracer("", false)
	}
	debounce := cfg.DebounceInterval
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Service{
		quoter:    cfg.Quoter,
		builder:   cfg.Builder,
		allowance: cfg.Allowance,
		submitter: cfg.Submitter,
		wallet:    cfg.Wallet,
		reporter:  cfg.Reporter,
		sm:        NewStateMachine(logger, cfg.Metrics),
		logger:    logger,
		metrics:   cfg.Metrics,
		tracer:    tracer,
		debounce:  debounce,
	}, nil
}

// State returns the current lifecycle state
func (s *Service) State() State {
	return s.sm.State()
}

// OnStateChange registers a callback for lifecycle transitions
func (s *Service) OnStateChange(fn func(from, to State)) {
	s.sm.OnChange(fn)
}

// CurrentQuote returns the latest applied quote, or nil
func (s *Service) CurrentQuote() *pricing.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quote
}

// CurrentPlan returns the latest built plan, or nil
func (s *Service) CurrentPlan() *Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// Run consumes wallet change events until ctx is done. A chain or account
// change makes every outstanding quote and plan meaningless, so both are
// dropped and the lifecycle returns to idle.
func (s *Service) Run(ctx context.Context) {
	events := s.wallet.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.logger.LogInfo(ctx, "wallet changed, invalidating session",
				"change", ev.Kind.String(),
			)
			s.Invalidate(ctx)
		}
	}
}

// Invalidate drops the current intent, quote, and plan and returns to idle.
// An in-flight swap is not interrupted; its outcome still applies to the
// transaction already broadcast.
func (s *Service) Invalidate(ctx context.Context) {
	s.generation.Add(1)
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.intent = nil
	s.quote = nil
	s.plan = nil
	s.mu.Unlock()
	if !s.inFlight.Load() {
		s.sm.Reset(ctx)
	}
}

// UpdateIntent registers a new trade intent. The quote request fires after
// the debounce interval; a newer update before then supersedes this one.
func (s *Service) UpdateIntent(ctx context.Context, intent Intent) error {
	_, err := s.updateIntent(ctx, intent)
	return err
}

// updateIntent registers the intent and returns the generation it minted,
// so a synchronous caller can act on its own generation rather than
// whatever is current by the time it looks.
func (s *Service) updateIntent(ctx context.Context, intent Intent) (uint64, error) {
	if _, err := classify(intent); err != nil {
		return 0, err
	}
	if intent.AmountIn == nil || intent.AmountIn.Sign() <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInsufficientInput)
	}

	gen := s.generation.Add(1)

	s.mu.Lock()
	s.intent = &intent
	s.quote = nil
	s.plan = nil
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.estimate(context.WithoutCancel(ctx), intent, gen)
	})
	s.mu.Unlock()

	if state := s.sm.State(); state != StateEstimating && !s.inFlight.Load() {
		if err := s.sm.Transition(ctx, StateEstimating); err != nil {
			s.logger.LogWarn(ctx, "could not enter estimating", "error", err)
		}
	}
	return gen, nil
}

// Estimate quotes and plans an intent synchronously, bypassing the
// debounce. Still generation-checked so a concurrent UpdateIntent wins.
func (s *Service) Estimate(ctx context.Context, intent Intent) (*pricing.Quote, error) {
	gen, err := s.updateIntent(ctx, intent)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	// Cancel only our own pending timer; a concurrent update owns the
	// timer once the generation has moved on.
	if s.generation.Load() == gen && s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.estimate(ctx, intent, gen)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quote == nil || s.generation.Load() != gen {
		return nil, ErrNoQuote
	}
	return s.quote, nil
}

func (s *Service) estimate(ctx context.Context, intent Intent, gen uint64) {
	ctx, span := s.tracer.Start(ctx, "swap.estimate")
	defer span.End()

	if s.generation.Load() != gen {
		return
	}

	quote, err := s.quoter.Quote(ctx, intent.InToken, intent.OutToken, intent.AmountIn)
	if err != nil {
		s.logger.LogError(ctx, "quote failed", err,
			"pair", intent.InToken.Symbol+"/"+intent.OutToken.Symbol,
		)
		span.RecordError(err)
		if s.generation.Load() == gen && !s.inFlight.Load() {
			s.sm.Reset(ctx)
		}
		return
	}

	plan, err := s.builder.Build(intent, quote, s.wallet.Account())
	if err != nil {
		s.logger.LogError(ctx, "plan build failed", err)
		span.RecordError(err)
		return
	}

	s.mu.Lock()
	if s.generation.Load() != gen {
		s.mu.Unlock()
		return
	}
	s.quote = quote
	s.plan = plan
	s.mu.Unlock()

	if !s.inFlight.Load() {
		if err := s.sm.Transition(ctx, StateReady); err != nil {
			s.logger.LogWarn(ctx, "could not enter ready", "error", err)
		}
	}
}

// AllowanceStatus reports the router allowance for the current plan's
// input token. Native input never needs an allowance.
func (s *Service) AllowanceStatus(ctx context.Context) (allowance *big.Int, sufficient bool, err error) {
	s.mu.Lock()
	plan := s.plan
	s.mu.Unlock()
	if plan == nil {
		return nil, false, ErrNoQuote
	}
	if !plan.RequiresAllowance() {
		return nil, true, nil
	}
	if s.allowance == nil {
		return nil, false, fmt.Errorf("allowance manager not configured")
	}
	token := common.HexToAddress(plan.Intent.InToken.Address)
	allowance, err = s.allowance.Allowance(ctx, token, s.wallet.Account())
	if err != nil {
		return nil, false, err
	}
	return allowance, allowance.Cmp(plan.Intent.AmountIn) >= 0, nil
}

// ExecuteSwap runs the currently planned swap end to end: allowance first
// when the input is a token, then broadcast, then wait for the receipt.
// Only one swap may be in flight at a time.
func (s *Service) ExecuteSwap(ctx context.Context) (outcome Outcome, err error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return Outcome{}, ErrSwapInFlight
	}
	defer s.inFlight.Store(false)

	ctx, span := s.tracer.Start(ctx, "swap.execute")
	defer span.End()

	s.mu.Lock()
	plan := s.plan
	s.mu.Unlock()
	if plan == nil {
		return Outcome{}, ErrStaleQuote
	}
	if s.sm.State() != StateReady {
		return Outcome{}, fmt.Errorf("swap not ready in state %s", s.sm.State())
	}

	outcome = Outcome{Intent: plan.Intent}
	defer func() {
		outcome.Err = err
		if s.reporter != nil && (err != nil || outcome.State == StateConfirmed) {
			s.reporter.ReportSwapOutcome(ctx, outcome)
		}
	}()

	signer := s.wallet.Signer()
	if signer == nil {
		return outcome, fmt.Errorf("%w: no signer available", wallet.ErrSigningDeclined)
	}

	if plan.RequiresAllowance() {
		if s.allowance == nil {
			return outcome, fmt.Errorf("allowance manager not configured for token input")
		}
		if err = s.sm.Transition(ctx, StateApproving); err != nil {
			return outcome, err
		}
		token := common.HexToAddress(plan.Intent.InToken.Address)
		if _, err = s.allowance.EnsureAllowance(ctx, signer, token, plan.Intent.AmountIn); err != nil {
			return outcome, s.fail(ctx, &outcome, err)
		}
	}

	if err = s.sm.Transition(ctx, StateSubmitting); err != nil {
		return outcome, err
	}
	if !plan.Consume() {
		return outcome, s.fail(ctx, &outcome, ErrPlanConsumed)
	}

	start := time.Now()
	signed, berr := s.submitter.Broadcast(ctx, signer, plan.Router, plan.Value, plan.CallData, plan.GasLimit)
	if berr != nil {
		// Nothing reached the chain; the user may retry with a new quote.
		err = berr
		return outcome, s.fail(ctx, &outcome, err)
	}
	outcome.TxHash = signed.Hash()
	if s.metrics != nil {
		pair := plan.Intent.InToken.Symbol + "/" + plan.Intent.OutToken.Symbol
		s.metrics.RecordSwapSubmitted(ctx, pair, string(plan.Kind))
	}
	if err = s.sm.Transition(ctx, StatePending); err != nil {
		return outcome, err
	}

	receipt, werr := s.submitter.WaitPlanReceipt(ctx, signed.Hash(), plan.Deadline)
	if werr != nil {
		err = werr
		return outcome, s.fail(ctx, &outcome, err)
	}

	outcome.State = StateConfirmed
	if receipt != nil {
		outcome.AmountOut = plan.MinimumOut
	}
	if s.metrics != nil {
		s.metrics.RecordSwapConfirm(ctx, time.Since(start), "confirmed")
	}
	if err = s.sm.Transition(ctx, StateConfirmed); err != nil {
		return outcome, err
	}
	s.logger.LogInfo(ctx, "swap confirmed",
		"tx_hash", outcome.TxHash.Hex(),
		"direction", plan.Direction.String(),
	)
	return outcome, nil
}

// fail records a terminal failure, leaving the machine in Failed
func (s *Service) fail(ctx context.Context, outcome *Outcome, cause error) error {
	outcome.State = StateFailed
	phase := FailurePhaseOf(cause)
	if outcome.TxHash != (common.Hash{}) {
		phase = PhasePostSubmission
	}
	if s.metrics != nil {
		s.metrics.RecordError(ctx, "swap_"+phase.String())
	}
	if terr := s.sm.Transition(ctx, StateFailed); terr != nil {
		s.logger.LogWarn(ctx, "could not enter failed", "error", terr)
	}
	s.logger.LogError(ctx, "swap failed", cause,
		"phase", phase.String(),
		"tx_hash", outcome.TxHash.Hex(),
	)
	return cause
}
