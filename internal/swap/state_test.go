package swap

import (
	"context"
	"testing"
)

func TestStateMachineHappyPath(t *testing.T) {
	sm := NewStateMachine(nil, nil)
	ctx := context.Background()

	path := []State{StateEstimating, StateReady, StateApproving, StateSubmitting, StatePending, StateConfirmed, StateIdle}
	for _, next := range path {
		if err := sm.Transition(ctx, next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
		if sm.State() != next {
			t.Fatalf("state = %s, want %s", sm.State(), next)
		}
	}
}

func TestStateMachineRejectsIllegalTransitions(t *testing.T) {
	cases := []struct {
		from State
		to   State
	}{
		{StateIdle, StatePending},
		{StateIdle, StateConfirmed},
		{StateEstimating, StateSubmitting},
		{StatePending, StateReady},
		{StatePending, StateEstimating},
		{StateConfirmed, StatePending},
		{StateReady, StateConfirmed},
	}
	for _, tc := range cases {
		sm := NewStateMachine(nil, nil)
		sm.state = tc.from
		if err := sm.Transition(context.Background(), tc.to); err == nil {
			t.Errorf("%s -> %s should be rejected", tc.from, tc.to)
		}
		if sm.State() != tc.from {
			t.Errorf("state moved to %s after rejected transition", sm.State())
		}
	}
}

func TestStateMachinePendingOnlyExitsViaChain(t *testing.T) {
	for _, to := range []State{StateConfirmed, StateFailed} {
		sm := NewStateMachine(nil, nil)
		sm.state = StatePending
		if err := sm.Transition(context.Background(), to); err != nil {
			t.Errorf("pending -> %s: %v", to, err)
		}
	}
}

func TestStateMachineResetFromAnywhere(t *testing.T) {
	for _, from := range []State{StateEstimating, StateReady, StatePending, StateFailed} {
		sm := NewStateMachine(nil, nil)
		sm.state = from
		sm.Reset(context.Background())
		if sm.State() != StateIdle {
			t.Errorf("reset from %s left state %s", from, sm.State())
		}
	}
}

func TestStateMachineOnChange(t *testing.T) {
	sm := NewStateMachine(nil, nil)
	var got []State
	sm.OnChange(func(from, to State) { got = append(got, to) })

	ctx := context.Background()
	if err := sm.Transition(ctx, StateEstimating); err != nil {
		t.Fatal(err)
	}
	if err := sm.Transition(ctx, StateReady); err != nil {
		t.Fatal(err)
	}
	// Rejected transitions never fire the callback
	_ = sm.Transition(ctx, StateConfirmed)

	if len(got) != 2 || got[0] != StateEstimating || got[1] != StateReady {
		t.Errorf("callback sequence = %v", got)
	}
}

func TestTerminalStates(t *testing.T) {
	for s, want := range map[State]bool{
		StateIdle: false, StateEstimating: false, StateReady: false,
		StateApproving: false, StateSubmitting: false, StatePending: false,
		StateConfirmed: true, StateFailed: true,
	} {
		if s.Terminal() != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, s.Terminal(), want)
		}
	}
}
