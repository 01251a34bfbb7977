// Package storage defines the persistence contracts of the submission pipeline.
// The evaluation ledger, answers, and attachments are three independent
// collections; no operation spans more than one of them in a transaction.
//
// Implementations report missing evaluations with domain.ErrNotFound and wrap
// every other backend failure with domain.ErrTransientStorage.
package storage

import (
	"context"
	"time"

	"github.com/ahrav/go-assess/internal/domain"
)

// MutateFunc updates an evaluation in place and reports whether anything changed.
// Returning changed=false skips the write.
type MutateFunc func(e *domain.Evaluation) (changed bool, err error)

// ListFilter selects evaluations for operational listing.
type ListFilter struct {
	// State restricts results to one state; empty matches all.
	State domain.EvaluationState
	// UpdatedBefore restricts results to evaluations untouched since the cutoff.
	UpdatedBefore time.Time
	// Limit caps the result size; zero means no limit.
	Limit int
}

// EvaluationRepository persists the evaluation ledger.
type EvaluationRepository interface {
	// CreateEvaluation inserts a new evaluation.
	CreateEvaluation(ctx context.Context, e *domain.Evaluation) error

	// GetEvaluation returns a copy of the stored evaluation.
	GetEvaluation(ctx context.Context, id string) (*domain.Evaluation, error)

	// UpdateEvaluation applies fn to the stored evaluation atomically and returns
	// the resulting record. Concurrent updates of the same id are serialized.
	UpdateEvaluation(ctx context.Context, id string, fn MutateFunc) (*domain.Evaluation, bool, error)

	// ListEvaluations returns evaluations matching filter, oldest update first.
	ListEvaluations(ctx context.Context, filter ListFilter) ([]*domain.Evaluation, error)
}

// AnswerStore persists per-question answers with upsert semantics.
type AnswerStore interface {
	// UpsertAnswer creates or replaces the answer for (EvaluationID, QuestionIndex).
	UpsertAnswer(ctx context.Context, a domain.Answer) error

	// GetAnswers returns all answers ordered by question index.
	GetAnswers(ctx context.Context, evaluationID string) ([]domain.Answer, error)

	// CountAnswers returns the number of stored answers.
	CountAnswers(ctx context.Context, evaluationID string) (int, error)
}

// AttachmentStore persists attachment metadata with last-write-wins slots.
type AttachmentStore interface {
	// PutAttachment stores metadata for (EvaluationID, SlotIndex) and returns the
	// attachment id. Replacing a slot keeps its existing id.
	PutAttachment(ctx context.Context, a domain.Attachment) (string, error)

	// ListAttachments returns attachments ordered by slot.
	ListAttachments(ctx context.Context, evaluationID string) ([]domain.Attachment, error)
}

// RespondentDirectory reads owner metadata maintained by the profile system.
type RespondentDirectory interface {
	// LookupRespondent returns domain.ErrNotFound when no profile exists.
	LookupRespondent(ctx context.Context, id string) (domain.RespondentProfile, error)
}

// Store bundles every collection behind one backend.
type Store interface {
	EvaluationRepository
	AnswerStore
	AttachmentStore
	RespondentDirectory
	Close() error
}
