package domain

import (
	"errors"
	"testing"
)

func TestState_CanTransition(t *testing.T) {
	tests := []struct {
		from State
		to   State
		want bool
	}{
		{StateIdle, StateOpening, true},
		{StateOpening, StateActive, true},
		{StateOpening, StateCancelling, true},
		{StateOpening, StateFailing, true},
		{StateActive, StateCompleting, true},
		{StateActive, StateCancelling, true},
		{StateActive, StateFailing, true},
		{StateCompleting, StateCompleted, true},
		{StateCompleting, StateFailing, true},
		{StateCancelling, StateCancelled, true},
		{StateFailing, StateFailed, true},

		{StateIdle, StateActive, false},
		{StateCompleting, StateCancelling, false},
		{StateCompleted, StateFailing, false},
		{StateCancelled, StateOpening, false},
		{StateFailed, StateFailing, false},
		{StateCancelling, StateFailing, false},
		{StateActive, StateCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestState_TransitionTo(t *testing.T) {
	if err := StateActive.TransitionTo(StateCompleting); err != nil {
		t.Fatalf("TransitionTo() error = %v", err)
	}

	err := StateCompleted.TransitionTo(StateFailing)
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("TransitionTo() error = %v, want ErrInvalidStateTransition", err)
	}
	if want := "invalid state transition: completed -> failing"; err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestState_Classification(t *testing.T) {
	for s := StateIdle; s <= StateFailed; s++ {
		terminal := s == StateCompleted || s == StateCancelled || s == StateFailed
		if s.IsTerminal() != terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, s.IsTerminal(), terminal)
		}
		outstanding := !terminal && s != StateIdle
		if s.IsOutstanding() != outstanding {
			t.Errorf("%s.IsOutstanding() = %v, want %v", s, s.IsOutstanding(), outstanding)
		}
		if s.IsTerminal() && len(transitions[s]) != 0 {
			t.Errorf("%s is terminal but has transitions", s)
		}
	}

	if !StateActive.IsCancellable() || !StateOpening.IsCancellable() {
		t.Error("opening and active sessions must be cancellable")
	}
	if StateCompleting.IsCancellable() {
		t.Error("completing session must not be cancellable")
	}
}

func TestParseState(t *testing.T) {
	for s := StateIdle; s <= StateFailed; s++ {
		got, ok := ParseState(s.String())
		if !ok || got != s {
			t.Errorf("ParseState(%q) = %v, %v", s.String(), got, ok)
		}
	}
	if _, ok := ParseState("bogus"); ok {
		t.Error("ParseState(bogus) should fail")
	}
	if State(99).String() != "unknown" {
		t.Error("unknown state should stringify as unknown")
	}
}
