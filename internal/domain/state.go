package domain

import "fmt"

// State is the lifecycle state of a transfer session
type State int

const (
	StateIdle State = iota
	StateOpening
	StateActive
	StateCompleting
	StateCompleted
	StateCancelling
	StateCancelled
	StateFailing
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateOpening:    "opening",
	StateActive:     "active",
	StateCompleting: "completing",
	StateCompleted:  "completed",
	StateCancelling: "cancelling",
	StateCancelled:  "cancelled",
	StateFailing:    "failing",
	StateFailed:     "failed",
}

// transitions lists the allowed successor states
var transitions = map[State][]State{
	StateIdle:       {StateOpening},
	StateOpening:    {StateActive, StateCancelling, StateFailing},
	StateActive:     {StateCompleting, StateCancelling, StateFailing},
	StateCompleting: {StateCompleted, StateFailing},
	StateCancelling: {StateCancelled},
	StateFailing:    {StateFailed},
}

// String returns the state name
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseState converts a state name back to a State
func ParseState(name string) (State, bool) {
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return StateIdle, false
}

// IsTerminal returns true for states without outgoing transitions
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// IsOutstanding returns true while a session holds resources and blocks new starts
func (s State) IsOutstanding() bool {
	switch s {
	case StateOpening, StateActive, StateCompleting, StateCancelling, StateFailing:
		return true
	}
	return false
}

// IsCancellable returns true if a cancel request has an effect in this state
func (s State) IsCancellable() bool {
	return s == StateOpening || s == StateActive
}

// CanTransition reports whether moving from s to next is allowed
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo validates a move from s to next. A refused move wraps
// ErrInvalidStateTransition.
func (s State) TransitionTo(next State) error {
	if !s.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, s, next)
	}
	return nil
}
