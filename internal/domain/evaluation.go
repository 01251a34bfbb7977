// Package domain defines the core types of the evaluation submission pipeline:
// evaluations and their lifecycle, answers, attachments, scoring requests and
// results, notification events, and the questionnaire contract.
//
// Types in this package are pure values. Persistence, locking, and network
// access live in the storage, ledger, and scoring packages.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Evaluation is the authoritative record of one respondent's attempt at the
// questionnaire. It is mutated only through the transition methods below and
// never physically deleted.
type Evaluation struct {
	// ID uniquely identifies the evaluation.
	ID string `json:"id" validate:"required,uuid"`

	// OwnerID identifies the respondent who owns the evaluation.
	OwnerID string `json:"owner_id" validate:"required"`

	// State is the current lifecycle state.
	State EvaluationState `json:"state" validate:"required,oneof=in_progress completed scored scoring_failed"`

	// ElapsedMinutes is the time the respondent spent answering, if reported.
	ElapsedMinutes *float64 `json:"elapsed_minutes,omitempty" validate:"omitempty,gte=0"`

	// Score is set only while State is scored.
	Score *float64 `json:"score,omitempty" validate:"omitempty,gte=0,lte=100"`

	// ArtifactRef locates the generated report. Set only while State is scored.
	ArtifactRef *string `json:"artifact_ref,omitempty" validate:"omitempty,min=1"`

	// FailureReason records why scoring was abandoned.
	FailureReason string `json:"failure_reason,omitempty"`

	// Customization is free text forwarded to the engine with every dispatch.
	Customization string `json:"customization,omitempty"`

	// DispatchAttempts counts how many times the evaluation was handed to the engine.
	DispatchAttempts int `json:"dispatch_attempts" validate:"min=0"`

	CreatedAt   time.Time  `json:"created_at" validate:"required"`
	UpdatedAt   time.Time  `json:"updated_at" validate:"required"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ScoredAt    *time.Time `json:"scored_at,omitempty"`
}

// NewEvaluation creates an in-progress evaluation owned by ownerID.
func NewEvaluation(ownerID string, now time.Time) (*Evaluation, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, NewValidationError("owner_id", "must not be empty")
	}
	now = now.UTC()
	e := &Evaluation{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		State:     StateInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return e, nil
}

// Validate checks field constraints and the score/artifact invariant:
// both are present if and only if the evaluation is scored.
func (e *Evaluation) Validate() error {
	if err := validateStruct(e); err != nil {
		return err
	}
	hasResult := e.Score != nil || e.ArtifactRef != nil
	if e.State == StateScored && (e.Score == nil || e.ArtifactRef == nil) {
		return NewValidationError("score", "scored evaluation requires score and artifact_ref")
	}
	if e.State != StateScored && hasResult {
		return NewValidationError("score", "score and artifact_ref are only allowed in state scored")
	}
	return nil
}

// OwnedBy reports whether ownerID owns the evaluation.
func (e *Evaluation) OwnedBy(ownerID string) bool { return e.OwnerID == ownerID }

// IsPending reports whether the evaluation was submitted but not yet scored.
func (e *Evaluation) IsPending() bool { return e.State == StateCompleted }

// Clone returns a deep copy so callers cannot alias stored pointers.
func (e *Evaluation) Clone() *Evaluation {
	if e == nil {
		return nil
	}
	c := *e
	c.ElapsedMinutes = clonePtr(e.ElapsedMinutes)
	c.Score = clonePtr(e.Score)
	c.ArtifactRef = clonePtr(e.ArtifactRef)
	c.CompletedAt = clonePtr(e.CompletedAt)
	c.ScoredAt = clonePtr(e.ScoredAt)
	return &c
}

// RecordElapsed stores the elapsed answering time. It only applies while the
// evaluation is in progress; in any other state it reports changed=false
// because a late progress save may race the final submission.
func (e *Evaluation) RecordElapsed(minutes float64, now time.Time) (bool, error) {
	if minutes < 0 {
		return false, NewValidationError("elapsed_minutes", "must be >= 0, got %v", minutes)
	}
	if e.State != StateInProgress {
		return false, nil
	}
	if e.ElapsedMinutes != nil && *e.ElapsedMinutes == minutes {
		return false, nil
	}
	e.ElapsedMinutes = &minutes
	e.UpdatedAt = now.UTC()
	return true, nil
}

// SetCustomization stores the free-text customization sent with scoring
// requests. It applies while the evaluation is in progress or awaiting a
// score; once scored or failed the stored text is kept and changed=false.
func (e *Evaluation) SetCustomization(text string, now time.Time) bool {
	if e.State != StateInProgress && e.State != StateCompleted {
		return false
	}
	if e.Customization == text {
		return false
	}
	e.Customization = text
	e.UpdatedAt = now.UTC()
	return true
}

// Complete moves an in-progress evaluation to completed.
// Calling it in any later state is a no-op reporting changed=false.
func (e *Evaluation) Complete(now time.Time) (bool, error) {
	if e.State != StateInProgress {
		return false, nil
	}
	now = now.UTC()
	e.State = StateCompleted
	e.CompletedAt = &now
	e.UpdatedAt = now
	return true, nil
}

// ApplyResult attaches a score and artifact. It is allowed from completed and
// scored; a scored evaluation is overwritten when the result differs. An
// identical result reports changed=false.
func (e *Evaluation) ApplyResult(r ScoringResult, now time.Time) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}
	if !e.State.AcceptsResult() {
		return false, &TransitionError{EvaluationID: e.ID, From: e.State, To: StateScored}
	}
	if e.State == StateScored && e.Score != nil && e.ArtifactRef != nil &&
		*e.Score == r.Score && *e.ArtifactRef == r.ArtifactRef {
		return false, nil
	}

	now = now.UTC()
	score, ref := r.Score, r.ArtifactRef
	e.State = StateScored
	e.Score = &score
	e.ArtifactRef = &ref
	e.ScoredAt = &now
	e.UpdatedAt = now
	return true, nil
}

// FailScoring moves a completed evaluation to the terminal scoring_failed state.
// Repeating it on an already failed evaluation is a no-op.
func (e *Evaluation) FailScoring(reason string, now time.Time) (bool, error) {
	if e.State == StateScoringFailed {
		return false, nil
	}
	if !e.State.CanTransitionTo(StateScoringFailed) {
		return false, &TransitionError{EvaluationID: e.ID, From: e.State, To: StateScoringFailed}
	}
	e.State = StateScoringFailed
	e.FailureReason = reason
	e.UpdatedAt = now.UTC()
	return true, nil
}

// RecordDispatch counts one more hand-off to the scoring engine.
func (e *Evaluation) RecordDispatch(now time.Time) {
	e.DispatchAttempts++
	e.UpdatedAt = now.UTC()
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
