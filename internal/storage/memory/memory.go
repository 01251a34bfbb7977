// Package memory provides an in-process implementation of the storage contracts
// for tests and single-node development.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps all collections in maps guarded by a single RWMutex.
// Stored values are copied on the way in and out so callers cannot alias them.
type Store struct {
	mu          sync.RWMutex
	evaluations map[string]*domain.Evaluation
	answers     map[string]map[int]domain.Answer
	attachments map[string]map[int]domain.Attachment
	respondents map[string]domain.RespondentProfile
}

// New creates an empty store.
func New() *Store {
	return &Store{
		evaluations: make(map[string]*domain.Evaluation),
		answers:     make(map[string]map[int]domain.Answer),
		attachments: make(map[string]map[int]domain.Attachment),
		respondents: make(map[string]domain.RespondentProfile),
	}
}

// CreateEvaluation implements storage.EvaluationRepository.
func (s *Store) CreateEvaluation(_ context.Context, e *domain.Evaluation) error {
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.evaluations[e.ID]; exists {
		return fmt.Errorf("evaluation %s already exists: %w", e.ID, domain.ErrValidation)
	}
	s.evaluations[e.ID] = e.Clone()
	return nil
}

// GetEvaluation implements storage.EvaluationRepository.
func (s *Store) GetEvaluation(_ context.Context, id string) (*domain.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.evaluations[id]
	if !ok {
		return nil, fmt.Errorf("evaluation %s: %w", id, domain.ErrNotFound)
	}
	return e.Clone(), nil
}

// UpdateEvaluation implements storage.EvaluationRepository.
func (s *Store) UpdateEvaluation(
	_ context.Context, id string, fn storage.MutateFunc,
) (*domain.Evaluation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.evaluations[id]
	if !ok {
		return nil, false, fmt.Errorf("evaluation %s: %w", id, domain.ErrNotFound)
	}

	working := current.Clone()
	changed, err := fn(working)
	if err != nil {
		return current.Clone(), false, err
	}
	if !changed {
		return current.Clone(), false, nil
	}
	if err := working.Validate(); err != nil {
		return current.Clone(), false, err
	}
	s.evaluations[id] = working
	return working.Clone(), true, nil
}

// ListEvaluations implements storage.EvaluationRepository.
func (s *Store) ListEvaluations(_ context.Context, f storage.ListFilter) ([]*domain.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Evaluation
	for _, e := range s.evaluations {
		if f.State != "" && e.State != f.State {
			continue
		}
		if !f.UpdatedBefore.IsZero() && !e.UpdatedAt.Before(f.UpdatedBefore) {
			continue
		}
		out = append(out, e.Clone())
	}
	slices.SortFunc(out, func(a, b *domain.Evaluation) int {
		return cmp.Or(a.UpdatedAt.Compare(b.UpdatedAt), cmp.Compare(a.ID, b.ID))
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// UpsertAnswer implements storage.AnswerStore.
func (s *Store) UpsertAnswer(_ context.Context, a domain.Answer) error {
	if err := a.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byIndex, ok := s.answers[a.EvaluationID]
	if !ok {
		byIndex = make(map[int]domain.Answer)
		s.answers[a.EvaluationID] = byIndex
	}
	byIndex[a.QuestionIndex] = a
	return nil
}

// GetAnswers implements storage.AnswerStore.
func (s *Store) GetAnswers(_ context.Context, evaluationID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Answer, 0, len(s.answers[evaluationID]))
	for _, a := range s.answers[evaluationID] {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b domain.Answer) int { return cmp.Compare(a.QuestionIndex, b.QuestionIndex) })
	return out, nil
}

// CountAnswers implements storage.AnswerStore.
func (s *Store) CountAnswers(_ context.Context, evaluationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.answers[evaluationID]), nil
}

// PutAttachment implements storage.AttachmentStore.
func (s *Store) PutAttachment(_ context.Context, a domain.Attachment) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := a.ValidateRecord(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bySlot, ok := s.attachments[a.EvaluationID]
	if !ok {
		bySlot = make(map[int]domain.Attachment)
		s.attachments[a.EvaluationID] = bySlot
	}
	if prev, exists := bySlot[a.SlotIndex]; exists {
		a.ID = prev.ID
	}
	bySlot[a.SlotIndex] = a
	return a.ID, nil
}

// ListAttachments implements storage.AttachmentStore.
func (s *Store) ListAttachments(_ context.Context, evaluationID string) ([]domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Attachment, 0, len(s.attachments[evaluationID]))
	for _, a := range s.attachments[evaluationID] {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b domain.Attachment) int { return cmp.Compare(a.SlotIndex, b.SlotIndex) })
	return out, nil
}

// LookupRespondent implements storage.RespondentDirectory.
func (s *Store) LookupRespondent(_ context.Context, id string) (domain.RespondentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.respondents[id]
	if !ok {
		return domain.RespondentProfile{}, fmt.Errorf("respondent %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// PutRespondent seeds a respondent profile. The profile system owns these
// records in production; the memory store accepts them for tests and demos.
func (s *Store) PutRespondent(p domain.RespondentProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.respondents[p.ID] = p
}

// Close implements storage.Store.
func (s *Store) Close() error { return nil }
