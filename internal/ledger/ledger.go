// Package ledger owns the evaluation state machine. Every mutation goes
// through Service, which serializes work per evaluation id, persists through
// an atomic read-modify-write, and publishes lifecycle events after the
// transition is durable.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/notify"
	"github.com/ahrav/go-assess/internal/storage"
)

// Service is the evaluation ledger.
type Service struct {
	repo      storage.EvaluationRepository
	publisher notify.Publisher
	locks     keyedLocks
	now       func() time.Time
	logger    *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a ledger over repo. publisher may be nil.
func New(repo storage.EvaluationRepository, publisher notify.Publisher, opts ...Option) *Service {
	if publisher == nil {
		publisher = notify.Nop()
	}
	s := &Service{
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "ledger")
	return s
}

// Create starts a new in-progress evaluation owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID string) (*domain.Evaluation, error) {
	e, err := domain.NewEvaluation(ownerID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateEvaluation(ctx, e); err != nil {
		return nil, fmt.Errorf("create evaluation: %w", err)
	}
	s.logger.InfoContext(ctx, "evaluation created", "evaluation_id", e.ID, "owner_id", ownerID)
	return e, nil
}

// Get returns the evaluation without access checks.
func (s *Service) Get(ctx context.Context, id string) (*domain.Evaluation, error) {
	return s.repo.GetEvaluation(ctx, id)
}

// GetFor returns the evaluation if caller may read it. Evaluations the caller
// cannot read are reported as not found.
func (s *Service) GetFor(ctx context.Context, id string, caller domain.Principal) (*domain.Evaluation, error) {
	e, err := s.repo.GetEvaluation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanRead(e) {
		return nil, fmt.Errorf("evaluation %s: %w", id, domain.ErrNotFound)
	}
	return e, nil
}

// GetOwned returns the evaluation if caller may write answers to it.
func (s *Service) GetOwned(ctx context.Context, id string, caller domain.Principal) (*domain.Evaluation, error) {
	e, err := s.repo.GetEvaluation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanWrite(e) {
		return nil, fmt.Errorf("evaluation %s: %w", id, domain.ErrNotFound)
	}
	return e, nil
}

func (s *Service) update(ctx context.Context, id string, fn storage.MutateFunc) (*domain.Evaluation, bool, error) {
	unlock := s.locks.lock(id)
	defer unlock()
	return s.repo.UpdateEvaluation(ctx, id, fn)
}

// RecordProgress stores elapsed minutes. Outside in_progress the call is a
// no-op returning the current record.
func (s *Service) RecordProgress(ctx context.Context, id string, elapsedMinutes float64) (*domain.Evaluation, error) {
	e, _, err := s.update(ctx, id, func(e *domain.Evaluation) (bool, error) {
		return e.RecordElapsed(elapsedMinutes, s.now())
	})
	return e, err
}

// RecordCustomization stores the customization forwarded with every scoring
// dispatch. Scored and failed evaluations keep their stored text.
func (s *Service) RecordCustomization(ctx context.Context, id, text string) (*domain.Evaluation, error) {
	e, _, err := s.update(ctx, id, func(e *domain.Evaluation) (bool, error) {
		return e.SetCustomization(text, s.now()), nil
	})
	return e, err
}

// Complete transitions in_progress → completed and publishes
// EvaluationCompleted. Repeating it in any later state is a silent no-op.
func (s *Service) Complete(ctx context.Context, id string, answeredCount int) (*domain.Evaluation, bool, error) {
	e, changed, err := s.update(ctx, id, func(e *domain.Evaluation) (bool, error) {
		return e.Complete(s.now())
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.logger.InfoContext(ctx, "evaluation completed", "evaluation_id", id, "answered", answeredCount)
		s.publisher.Publish(ctx, domain.EvaluationCompleted{
			EvaluationID:  e.ID,
			OwnerID:       e.OwnerID,
			AnsweredCount: answeredCount,
		})
	}
	return e, changed, nil
}

// MarkScored applies a scoring result. It is allowed from completed and scored
// and reports changed=false when the stored result is identical. Publishing
// ResultsGenerated is left to the result ingestor.
func (s *Service) MarkScored(ctx context.Context, result domain.ScoringResult) (*domain.Evaluation, bool, error) {
	e, changed, err := s.update(ctx, result.EvaluationID, func(e *domain.Evaluation) (bool, error) {
		return e.ApplyResult(result, s.now())
	})
	if err != nil {
		return e, false, err
	}
	if changed {
		s.logger.InfoContext(ctx, "evaluation scored",
			"evaluation_id", result.EvaluationID, "score", result.Score, "artifact_ref", result.ArtifactRef)
	}
	return e, changed, nil
}

// MarkScoringFailed moves a completed evaluation to scoring_failed. Only the
// follow-up retry policy calls it, after its attempts are exhausted.
func (s *Service) MarkScoringFailed(ctx context.Context, id, reason string) (*domain.Evaluation, bool, error) {
	e, changed, err := s.update(ctx, id, func(e *domain.Evaluation) (bool, error) {
		return e.FailScoring(reason, s.now())
	})
	if err != nil {
		return e, false, err
	}
	if changed {
		s.logger.WarnContext(ctx, "scoring abandoned", "evaluation_id", id, "reason", reason)
	}
	return e, changed, nil
}

// RecordDispatch increments the dispatch counter of a completed or scored evaluation.
func (s *Service) RecordDispatch(ctx context.Context, id string) (*domain.Evaluation, error) {
	e, _, err := s.update(ctx, id, func(e *domain.Evaluation) (bool, error) {
		if !e.State.AcceptsResult() {
			return false, &domain.TransitionError{EvaluationID: e.ID, From: e.State, To: domain.StateScored}
		}
		e.RecordDispatch(s.now())
		return true, nil
	})
	return e, err
}

// ListPending returns completed evaluations that have not changed for at
// least olderThan, oldest first.
func (s *Service) ListPending(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Evaluation, error) {
	return s.repo.ListEvaluations(ctx, storage.ListFilter{
		State:         domain.StateCompleted,
		UpdatedBefore: s.now().Add(-olderThan),
		Limit:         limit,
	})
}
