package swap

import (
	"context"
	"fmt"
	"sync"

	"github.com/JosephMiPatchen/uniswap-swap-service/internal/platform/observability"
)

// State is a phase in the swap lifecycle
type State int

const (
	// StateIdle means no active quote or swap
	StateIdle State = iota
	// StateEstimating means a quote request is in flight
	StateEstimating
	// StateReady means a quote and plan are available for submission
	StateReady
	// StateApproving means an allowance approval is being confirmed
	StateApproving
	// StateSubmitting means the swap transaction is being signed and sent
	StateSubmitting
	// StatePending means the swap is broadcast and awaiting its receipt
	StatePending
	// StateConfirmed means the swap landed with a success receipt
	StateConfirmed
	// StateFailed means the swap reached a terminal error
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEstimating:
		return "estimating"
	case StateReady:
		return "ready"
	case StateApproving:
		return "approving"
	case StateSubmitting:
		return "submitting"
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a swap attempt
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// legalTransitions encodes the lifecycle. Failures before broadcast return
// to Ready so the user can retry with the same quote; once Pending the only
// exits are the chain's verdict.
var legalTransitions = map[State][]State{
	StateIdle:       {StateEstimating},
	StateEstimating: {StateEstimating, StateReady, StateIdle},
	StateReady:      {StateApproving, StateSubmitting, StateEstimating, StateIdle},
	StateApproving:  {StateSubmitting, StateReady, StateFailed, StateIdle},
	StateSubmitting: {StatePending, StateReady, StateFailed, StateIdle},
	StatePending:    {StateConfirmed, StateFailed},
	StateConfirmed:  {StateIdle, StateEstimating},
	StateFailed:     {StateIdle, StateEstimating},
}

// StateMachine tracks the swap lifecycle and rejects illegal transitions
type StateMachine struct {
	mu       sync.RWMutex
	state    State
	logger   *observability.Logger
	metrics  *observability.Metrics
	onChange func(from, to State)
}

func NewStateMachine(logger *observability.Logger, metrics *observability.Metrics) *StateMachine {
	if logger == nil {
		logger = observability.NewLogger("info", "json")
	}
	return &StateMachine{
		state:   StateIdle,
		logger:  logger,
		metrics: metrics,
	}
}

// OnChange registers a callback invoked after every successful transition.
// The callback runs outside the machine's lock.
func (sm *StateMachine) OnChange(fn func(from, to State)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onChange = fn
}

// State returns the current state
func (sm *StateMachine) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// Transition moves to the target state, failing if the move is not legal
// from the current state.
func (sm *StateMachine) Transition(ctx context.Context, to State) error {
	sm.mu.Lock()
	from := sm.state
	if !transitionAllowed(from, to) {
		sm.mu.Unlock()
		return fmt.Errorf("illegal swap state transition %s -> %s", from, to)
	}
	sm.state = to
	onChange := sm.onChange
	sm.mu.Unlock()

	sm.logger.LogDebug(ctx, "swap state transition", "from", from.String(), "to", to.String())
	if sm.metrics != nil {
		sm.metrics.RecordStateTransition(ctx, from.String(), to.String())
	}
	if onChange != nil {
		onChange(from, to)
	}
	return nil
}

// Reset forces the machine back to Idle regardless of the current state.
// Used when the wallet's chain or account changes under an active session.
func (sm *StateMachine) Reset(ctx context.Context) {
	sm.mu.Lock()
	from := sm.state
	sm.state = StateIdle
	onChange := sm.onChange
	sm.mu.Unlock()

	if from != StateIdle {
		sm.logger.LogDebug(ctx, "swap state reset", "from", from.String())
		if sm.metrics != nil {
			sm.metrics.RecordStateTransition(ctx, from.String(), StateIdle.String())
		}
		if onChange != nil {
			onChange(from, StateIdle)
		}
	}
}

func transitionAllowed(from, to State) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
