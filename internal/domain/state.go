package domain

import "slices"

// EvaluationState is the lifecycle state of an evaluation.
// States only move forward: in_progress → completed → scored, with
// scoring_failed as a terminal branch out of completed.
type EvaluationState string

const (
	// StateInProgress is the initial state while the respondent is answering.
	StateInProgress EvaluationState = "in_progress"

	// StateCompleted means all required answers were submitted and the
	// evaluation is waiting for a score (accepted/pending).
	StateCompleted EvaluationState = "completed"

	// StateScored means a score and report artifact are attached.
	// A scored evaluation may be re-scored with corrected data.
	StateScored EvaluationState = "scored"

	// StateScoringFailed is terminal. It is only entered when an external
	// retry policy gives up on the scoring engine.
	StateScoringFailed EvaluationState = "scoring_failed"
)

// transitions lists the allowed next states for each state.
var transitions = map[EvaluationState][]EvaluationState{
	StateInProgress: {StateCompleted},
	StateCompleted:  {StateScored, StateScoringFailed},
	StateScored:     {StateScored},
}

// AllStates returns every lifecycle state in lifecycle order.
func AllStates() []EvaluationState {
	return []EvaluationState{StateInProgress, StateCompleted, StateScored, StateScoringFailed}
}

// ParseEvaluationState converts a stored or wire value into a state.
func ParseEvaluationState(s string) (EvaluationState, error) {
	st := EvaluationState(s)
	if !st.Valid() {
		return "", NewValidationError("state", "unknown evaluation state %q", s)
	}
	return st, nil
}

// Valid reports whether s is a known state.
func (s EvaluationState) Valid() bool { return slices.Contains(AllStates(), s) }

// String returns the wire representation.
func (s EvaluationState) String() string { return string(s) }

// IsTerminal reports whether no further transitions are possible.
func (s EvaluationState) IsTerminal() bool { return len(transitions[s]) == 0 }

// AcceptsResult reports whether a scoring result may be applied in this state.
func (s EvaluationState) AcceptsResult() bool {
	return s == StateCompleted || s == StateScored
}

// CanTransitionTo reports whether moving from s to next is permitted.
func (s EvaluationState) CanTransitionTo(next EvaluationState) bool {
	return slices.Contains(transitions[s], next)
}
