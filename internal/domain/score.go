package domain

import (
	"math"
	"strings"
)

// Score bounds accepted from the scoring engine.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// ScoringResult is what the external engine produces for an evaluation.
type ScoringResult struct {
	EvaluationID string  `json:"evaluation_id" validate:"required"`
	Score        float64 `json:"score" validate:"gte=0,lte=100"`
	ArtifactRef  string  `json:"artifact_ref" validate:"required"`
}

// Validate checks the score range and artifact reference.
func (r ScoringResult) Validate() error {
	if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
		return NewValidationError("score", "must be a finite number")
	}
	if strings.TrimSpace(r.ArtifactRef) == "" {
		return NewValidationError("artifact_ref", "must not be empty")
	}
	return validateStruct(r)
}

// RespondentProfile is the owner metadata forwarded to the scoring engine.
// It is read from the profile system and never modified here.
type RespondentProfile struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Organization string `json:"organization,omitempty"`
	Contact      string `json:"contact,omitempty"`
}

// AttachmentPayload is an attachment with its content inlined for scoring.
type AttachmentPayload struct {
	SlotIndex   int    `json:"slot_index"`
	Kind        string `json:"kind"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Content     []byte `json:"content"`
}

// ScoringRequest is assembled once per scoring attempt and never persisted.
type ScoringRequest struct {
	EvaluationID  string              `json:"evaluation_id" validate:"required"`
	Answers       map[int]string      `json:"answers" validate:"required,min=1"`
	Respondent    RespondentProfile   `json:"respondent"`
	Attachments   []AttachmentPayload `json:"attachments,omitempty"`
	Customization string              `json:"customization,omitempty"`
	CallbackURL   string              `json:"callback_url,omitempty" validate:"omitempty,url"`
}

// Validate checks the request before it leaves the process.
func (r ScoringRequest) Validate() error { return validateStruct(r) }

// DispatchOutcome classifies the result of handing an evaluation to the engine.
type DispatchOutcome string

const (
	// OutcomeScoredSynchronously means the engine answered in time and the
	// result was ingested inline.
	OutcomeScoredSynchronously DispatchOutcome = "scored"

	// OutcomeAcceptedAsync means the engine was slow or unreachable; the
	// evaluation stays completed and a callback may deliver the result later.
	OutcomeAcceptedAsync DispatchOutcome = "accepted"

	// OutcomeHardFailure means the engine rejected the request outright.
	// The evaluation stays completed and the caller sees a warning.
	OutcomeHardFailure DispatchOutcome = "hard_failure"
)

// DispatchResult is returned by the scoring gateway.
type DispatchResult struct {
	Outcome     DispatchOutcome `json:"outcome"`
	Score       float64         `json:"score,omitempty"`
	ArtifactRef string          `json:"artifact_ref,omitempty"`
	Reason      string          `json:"reason,omitempty"`
}

// ScoredSynchronously builds a DispatchResult for an inline score.
func ScoredSynchronously(score float64, artifactRef string) DispatchResult {
	return DispatchResult{Outcome: OutcomeScoredSynchronously, Score: score, ArtifactRef: artifactRef}
}

// AcceptedAsync builds a DispatchResult for a pending score.
func AcceptedAsync() DispatchResult { return DispatchResult{Outcome: OutcomeAcceptedAsync} }

// HardFailure builds a DispatchResult for a rejected request.
func HardFailure(reason string) DispatchResult {
	return DispatchResult{Outcome: OutcomeHardFailure, Reason: reason}
}
