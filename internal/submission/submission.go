// Package submission implements the answer-saving and final-submission flows.
//
// A progress save writes one answer and never evaluates completion. A full
// submission writes every non-empty answer and attachment, evaluates
// completion, and when complete hands the evaluation to the scoring gateway.
package submission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahrav/go-assess/internal/attachment"
	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/scoring"
)

// Ledger is the subset of the evaluation ledger used by submissions.
type Ledger interface {
	Create(ctx context.Context, ownerID string) (*domain.Evaluation, error)
	GetFor(ctx context.Context, id string, caller domain.Principal) (*domain.Evaluation, error)
	GetOwned(ctx context.Context, id string, caller domain.Principal) (*domain.Evaluation, error)
	RecordProgress(ctx context.Context, id string, elapsedMinutes float64) (*domain.Evaluation, error)
	RecordCustomization(ctx context.Context, id, text string) (*domain.Evaluation, error)
	Complete(ctx context.Context, id string, answeredCount int) (*domain.Evaluation, bool, error)
}

// AnswerStore persists answers.
type AnswerStore interface {
	UpsertAnswer(ctx context.Context, a domain.Answer) error
	GetAnswers(ctx context.Context, evaluationID string) ([]domain.Answer, error)
	CountAnswers(ctx context.Context, evaluationID string) (int, error)
}

// Attachments stores uploaded documents.
type Attachments interface {
	Put(ctx context.Context, evaluationID string, slot int, up attachment.Upload) (domain.Attachment, error)
}

// Dispatcher scores a completed evaluation.
type Dispatcher interface {
	Dispatch(ctx context.Context, evaluationID string, opts ...scoring.DispatchOption) (domain.DispatchResult, error)
}

// ProgressInput is a single-answer save. QuestionIndex is 0-based.
type ProgressInput struct {
	EvaluationID   string
	QuestionIndex  int
	Answer         string
	ElapsedMinutes *float64
}

// ProgressResult reports what a progress save did.
type ProgressResult struct {
	EvaluationID  string `json:"evaluation_id"`
	QuestionIndex int    `json:"question_index"`
	// Skipped is true when the answer was blank and nothing was written.
	Skipped bool `json:"skipped"`
}

// AttachmentInput is one uploaded document addressed to a slot.
type AttachmentInput struct {
	Slot   int
	Upload attachment.Upload
}

// SubmitInput is a full submission. Answers are positional: element i
// answers question i+1. Blank elements are skipped.
type SubmitInput struct {
	EvaluationID   string
	Answers        []string
	ElapsedMinutes *float64
	Customization  string
	Attachments    []AttachmentInput
}

// SubmitResult is the outcome of a full submission.
type SubmitResult struct {
	EvaluationID string                 `json:"evaluation_id"`
	State        domain.EvaluationState `json:"state"`
	Answered     int                    `json:"answered"`
	Complete     bool                   `json:"complete"`
	// Outcome is empty when the evaluation is not complete.
	Outcome     domain.DispatchOutcome `json:"outcome,omitempty"`
	Score       *float64               `json:"score,omitempty"`
	ArtifactRef *string                `json:"artifact_ref,omitempty"`
	Warning     string                 `json:"warning,omitempty"`
}

// Service orchestrates submissions.
type Service struct {
	q           domain.Questionnaire
	ledger      Ledger
	answers     AnswerStore
	attachments Attachments
	dispatcher  Dispatcher
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// New creates a submission service.
func New(
	q domain.Questionnaire,
	ledger Ledger,
	answers AnswerStore,
	attachments Attachments,
	dispatcher Dispatcher,
	opts ...Option,
) *Service {
	s := &Service{
		q:           q,
		ledger:      ledger,
		answers:     answers,
		attachments: attachments,
		dispatcher:  dispatcher,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "submission")
	return s
}

// Create begins a new evaluation for caller.
func (s *Service) Create(ctx context.Context, caller domain.Principal) (*domain.Evaluation, error) {
	if err := requireRespondent(caller); err != nil {
		return nil, err
	}
	return s.ledger.Create(ctx, caller.ID)
}

// Answers returns the stored answers keyed by 1-based question number so a
// client can restore its state.
func (s *Service) Answers(ctx context.Context, caller domain.Principal, evaluationID string) (map[int]string, error) {
	if _, err := s.ledger.GetFor(ctx, evaluationID, caller); err != nil {
		return nil, err
	}
	answers, err := s.answers.GetAnswers(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	return domain.AnswerMap(answers), nil
}

// SubmitProgress saves one answer. Completion is never evaluated here, and
// once the evaluation has been submitted further saves are rejected with
// ErrInvalidTransition.
func (s *Service) SubmitProgress(ctx context.Context, caller domain.Principal, in ProgressInput) (ProgressResult, error) {
	if err := requireRespondent(caller); err != nil {
		return ProgressResult{}, err
	}
	if in.EvaluationID == "" {
		return ProgressResult{}, domain.NewValidationError("evaluation_id", "must not be empty")
	}
	index, err := s.q.QuestionFromWire(in.QuestionIndex)
	if err != nil {
		return ProgressResult{}, err
	}
	e, err := s.ledger.GetOwned(ctx, in.EvaluationID, caller)
	if err != nil {
		return ProgressResult{}, err
	}
	if e.State != domain.StateInProgress {
		return ProgressResult{}, &domain.TransitionError{
			EvaluationID: e.ID,
			From:         e.State,
			To:           domain.StateInProgress,
		}
	}

	res := ProgressResult{EvaluationID: in.EvaluationID, QuestionIndex: in.QuestionIndex}
	if domain.IsBlankAnswer(in.Answer) {
		res.Skipped = true
	} else {
		a, err := domain.NewAnswer(s.q, in.EvaluationID, index, in.Answer, s.now())
		if err != nil {
			return ProgressResult{}, err
		}
		if err := s.answers.UpsertAnswer(ctx, a); err != nil {
			return ProgressResult{}, err
		}
	}

	if in.ElapsedMinutes != nil {
		if _, err := s.ledger.RecordProgress(ctx, in.EvaluationID, *in.ElapsedMinutes); err != nil {
			return ProgressResult{}, err
		}
	}
	return res, nil
}

// Submit persists a full submission and, once the completion threshold is
// reached, dispatches the evaluation for scoring.
func (s *Service) Submit(ctx context.Context, caller domain.Principal, in SubmitInput) (SubmitResult, error) {
	if err := requireRespondent(caller); err != nil {
		return SubmitResult{}, err
	}
	if err := s.validate(in); err != nil {
		return SubmitResult{}, err
	}

	id := in.EvaluationID
	if id == "" {
		e, err := s.ledger.Create(ctx, caller.ID)
		if err != nil {
			return SubmitResult{}, err
		}
		id = e.ID
	} else if _, err := s.ledger.GetOwned(ctx, id, caller); err != nil {
		return SubmitResult{}, err
	}

	now := s.now()
	for i, text := range in.Answers {
		if domain.IsBlankAnswer(text) {
			continue
		}
		a, err := domain.NewAnswer(s.q, id, i+1, text, now)
		if err != nil {
			return SubmitResult{}, err
		}
		if err := s.answers.UpsertAnswer(ctx, a); err != nil {
			return SubmitResult{}, fmt.Errorf("save answer %d: %w", i+1, err)
		}
	}
	for _, att := range in.Attachments {
		if _, err := s.attachments.Put(ctx, id, att.Slot, att.Upload); err != nil {
			return SubmitResult{}, fmt.Errorf("save attachment slot %d: %w", att.Slot, err)
		}
	}
	if in.ElapsedMinutes != nil {
		if _, err := s.ledger.RecordProgress(ctx, id, *in.ElapsedMinutes); err != nil {
			return SubmitResult{}, err
		}
	}
	// A blank customization keeps whatever an earlier submit stored.
	if strings.TrimSpace(in.Customization) != "" {
		if _, err := s.ledger.RecordCustomization(ctx, id, in.Customization); err != nil {
			return SubmitResult{}, err
		}
	}

	answered, err := s.answers.CountAnswers(ctx, id)
	if err != nil {
		return SubmitResult{}, err
	}
	res := SubmitResult{EvaluationID: id, Answered: answered, State: domain.StateInProgress}
	if !s.q.IsComplete(answered) {
		s.logger.DebugContext(ctx, "submission incomplete",
			"evaluation_id", id, "answered", answered, "required", s.q.QuestionCount)
		return res, nil
	}
	res.Complete = true

	e, _, err := s.ledger.Complete(ctx, id, answered)
	if err != nil {
		return SubmitResult{}, err
	}
	res.State = e.State

	// A repeated submit of an already scored evaluation reports the stored result.
	if e.State == domain.StateScored {
		res.Outcome = domain.OutcomeScoredSynchronously
		res.Score, res.ArtifactRef = e.Score, e.ArtifactRef
		return res, nil
	}

	out, err := s.dispatcher.Dispatch(ctx, id)
	if err != nil {
		return SubmitResult{}, err
	}
	res.Outcome = out.Outcome
	switch out.Outcome {
	case domain.OutcomeScoredSynchronously:
		score, ref := out.Score, out.ArtifactRef
		res.State = domain.StateScored
		res.Score, res.ArtifactRef = &score, &ref
	case domain.OutcomeHardFailure:
		res.Warning = "scoring engine rejected the submission; scoring is pending: " + out.Reason
	}
	return res, nil
}

func (s *Service) validate(in SubmitInput) error {
	if len(in.Answers) > s.q.QuestionCount {
		return domain.NewValidationError("answers", "at most %d answers, got %d", s.q.QuestionCount, len(in.Answers))
	}
	if len(in.Attachments) > s.q.MaxAttachments {
		return domain.NewValidationError("attachments", "at most %d attachments, got %d", s.q.MaxAttachments, len(in.Attachments))
	}
	for _, a := range in.Attachments {
		if err := s.q.CheckSlot(a.Slot); err != nil {
			return err
		}
	}
	if in.ElapsedMinutes != nil && *in.ElapsedMinutes < 0 {
		return domain.NewValidationError("elapsed_minutes", "must not be negative")
	}
	return nil
}

func requireRespondent(caller domain.Principal) error {
	if err := caller.Validate(); err != nil {
		return err
	}
	if caller.Type != domain.PrincipalRespondent {
		return domain.NewValidationError("principal", "only respondents submit answers")
	}
	return nil
}
