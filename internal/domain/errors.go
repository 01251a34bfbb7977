package domain

import (
	"errors"
	"fmt"
)

// Error categories shared by every component of the submission pipeline.
// Callers classify failures with errors.Is against these sentinels.
var (
	// ErrValidation indicates malformed input such as an out-of-range index or
	// an empty required field. Requests failing validation are never persisted.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates that an evaluation is unknown or not owned by the caller.
	ErrNotFound = errors.New("evaluation not found")

	// ErrTransientStorage indicates a database or blob layer hiccup.
	// The caller is expected to retry the same idempotent operation.
	ErrTransientStorage = errors.New("transient storage failure")

	// ErrEngineUnavailable indicates the scoring engine timed out or failed with a 5xx.
	ErrEngineUnavailable = errors.New("scoring engine unavailable")

	// ErrEngineRejected indicates the scoring engine refused the request outright.
	ErrEngineRejected = errors.New("scoring engine rejected request")

	// ErrInvalidTransition indicates a state machine transition that is not allowed
	// from the evaluation's current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrResultRejected indicates a scoring result that was discarded because the
	// target evaluation does not exist or cannot accept a score.
	ErrResultRejected = errors.New("scoring result rejected")
)

// ValidationError describes a single rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransitionError reports a rejected state machine transition.
type TransitionError struct {
	EvaluationID string
	From         EvaluationState
	To           EvaluationState
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("evaluation %s: cannot transition from %s to %s", e.EvaluationID, e.From, e.To)
}

// Unwrap lets errors.Is(err, ErrInvalidTransition) match.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// IsRetryable reports whether the caller should retry the same operation.
// Only storage hiccups qualify; engine failures are absorbed by the gateway.
func IsRetryable(err error) bool { return errors.Is(err, ErrTransientStorage) }

// WrapStorage marks err as a transient storage failure for op.
// Sentinel domain errors pass through unchanged so that a missing row still
// reads as ErrNotFound.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidTransition) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransientStorage, err)
}
