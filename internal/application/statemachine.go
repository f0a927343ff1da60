package application

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition indicates a transition the lifecycle does not allow,
// including any transition out of a terminal state.
var ErrInvalidTransition = errors.New("invalid application state transition")

// transitions is the full lifecycle adjacency. States absent from the map are
// terminal.
var transitions = map[State][]State{
	StateDraft:               {StateProofPending},
	StateProofPending:        {StateProofVerified, StateRejected},
	StateProofVerified:       {StateAutoApproved, StatePendingManualReview},
	StateAutoApproved:        {StateApproved},
	StatePendingManualReview: {StateApproved, StateRejected},
	StateApproved:            {StateFunded},
	StateFunded:              {StateRepaying},
	StateRepaying:            {StateClosed, StateDefaulted},
}

// Terminal reports whether no transition leaves the state.
func Terminal(state State) bool {
	return len(transitions[state]) == 0
}

// CanTransition reports whether from -> to is a single legal step.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition applies one legal step and appends it to the history. The
// application is mutated in place; persisting it is the caller's concern.
func transition(a *Application, to State, actor, reason string, at time.Time) error {
	if !CanTransition(a.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, to)
	}
	a.History = append(a.History, Transition{
		From:   a.State,
		To:     to,
		Actor:  actor,
		Reason: reason,
		At:     at.UTC(),
	})
	a.State = to
	return nil
}
