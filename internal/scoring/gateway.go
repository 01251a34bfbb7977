// Package scoring hands completed evaluations to the external scoring engine.
//
// Dispatch never blocks longer than the configured timeout. Engine failures
// are absorbed into the returned domain.DispatchResult; only storage and
// state errors surface as Go errors.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/engine"
)

// DefaultTimeout bounds a dispatch when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Engine scores a request synchronously.
type Engine interface {
	Score(ctx context.Context, req domain.ScoringRequest) (domain.ScoringResult, error)
}

// Ledger is the subset of the evaluation ledger the gateway needs.
type Ledger interface {
	Get(ctx context.Context, id string) (*domain.Evaluation, error)
	RecordDispatch(ctx context.Context, id string) (*domain.Evaluation, error)
}

// Answers reads the answers of an evaluation.
type Answers interface {
	GetAnswers(ctx context.Context, evaluationID string) ([]domain.Answer, error)
}

// Attachments loads attachment content for scoring.
type Attachments interface {
	Payloads(ctx context.Context, evaluationID string) ([]domain.AttachmentPayload, error)
}

// Respondents looks up owner metadata.
type Respondents interface {
	LookupRespondent(ctx context.Context, id string) (domain.RespondentProfile, error)
}

// Ingestor applies a result produced inline.
type Ingestor interface {
	Ingest(ctx context.Context, result domain.ScoringResult) (bool, error)
}

// FollowUpScheduler starts the out-of-band follow-up policy for an evaluation
// whose result is still outstanding.
type FollowUpScheduler interface {
	ScheduleFollowUp(ctx context.Context, evaluationID string) error
}

// Config tunes the gateway.
type Config struct {
	// Timeout bounds the whole engine call including retries.
	Timeout time.Duration
	// CallbackURL is advertised to the engine for out-of-band delivery.
	CallbackURL string
}

// Deps groups the gateway's collaborators.
type Deps struct {
	Ledger      Ledger
	Answers     Answers
	Attachments Attachments
	Respondents Respondents
	Engine      Engine
	Ingestor    Ingestor
	// FollowUp is optional.
	FollowUp FollowUpScheduler
	Logger   *slog.Logger
}

// Gateway dispatches evaluations to the engine.
type Gateway struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(cfg Config, deps Deps) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{cfg: cfg, deps: deps, log: logger.With("component", "scoring_gateway")}
}

// DispatchOption customizes a single dispatch.
type DispatchOption func(*domain.ScoringRequest)

// WithCustomization overrides the customization stored on the evaluation for
// a single dispatch.
func WithCustomization(text string) DispatchOption {
	return func(r *domain.ScoringRequest) { r.Customization = text }
}

// Dispatch builds the scoring payload for evaluationID and sends it to the
// engine under the configured timeout.
func (g *Gateway) Dispatch(ctx context.Context, evaluationID string, opts ...DispatchOption) (domain.DispatchResult, error) {
	eval, err := g.deps.Ledger.Get(ctx, evaluationID)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	if !eval.State.AcceptsResult() {
		return domain.DispatchResult{}, &domain.TransitionError{
			EvaluationID: evaluationID,
			From:         eval.State,
			To:           domain.StateScored,
		}
	}

	req, err := g.buildRequest(ctx, eval)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	for _, opt := range opts {
		opt(&req)
	}

	if _, err := g.deps.Ledger.RecordDispatch(ctx, evaluationID); err != nil {
		return domain.DispatchResult{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	result, err := g.deps.Engine.Score(callCtx, req)
	cancel()

	if err != nil {
		out := g.classify(ctx, evaluationID, err)
		g.scheduleFollowUp(ctx, evaluationID, out)
		return out, nil
	}

	if _, err := g.deps.Ingestor.Ingest(ctx, result); err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrResultRejected) {
			out := domain.HardFailure(err.Error())
			g.log.WarnContext(ctx, "engine result could not be ingested",
				"evaluation_id", evaluationID, "error", err)
			g.scheduleFollowUp(ctx, evaluationID, out)
			return out, nil
		}
		return domain.DispatchResult{}, fmt.Errorf("ingest inline result: %w", err)
	}
	return domain.ScoredSynchronously(result.Score, result.ArtifactRef), nil
}

func (g *Gateway) buildRequest(ctx context.Context, eval *domain.Evaluation) (domain.ScoringRequest, error) {
	answers, err := g.deps.Answers.GetAnswers(ctx, eval.ID)
	if err != nil {
		return domain.ScoringRequest{}, err
	}
	attachments, err := g.deps.Attachments.Payloads(ctx, eval.ID)
	if err != nil {
		return domain.ScoringRequest{}, err
	}

	profile := domain.RespondentProfile{ID: eval.OwnerID}
	if g.deps.Respondents != nil {
		p, err := g.deps.Respondents.LookupRespondent(ctx, eval.OwnerID)
		switch {
		case err == nil:
			profile = p
		case errors.Is(err, domain.ErrNotFound):
		default:
			return domain.ScoringRequest{}, err
		}
	}

	return domain.ScoringRequest{
		EvaluationID:  eval.ID,
		Answers:       domain.AnswerMap(answers),
		Respondent:    profile,
		Attachments:   attachments,
		Customization: eval.Customization,
		CallbackURL:   g.cfg.CallbackURL,
	}, nil
}

func (g *Gateway) classify(ctx context.Context, evaluationID string, err error) domain.DispatchResult {
	switch engine.Classify(err) {
	case engine.ErrAccepted:
		g.log.InfoContext(ctx, "engine will deliver result asynchronously", "evaluation_id", evaluationID)
		return domain.AcceptedAsync()
	case domain.ErrEngineRejected:
		g.log.WarnContext(ctx, "engine rejected evaluation", "evaluation_id", evaluationID, "error", err)
		return domain.HardFailure(err.Error())
	default:
		g.log.InfoContext(ctx, "engine unavailable; result pending",
			"evaluation_id", evaluationID, "error", err)
		return domain.AcceptedAsync()
	}
}

func (g *Gateway) scheduleFollowUp(ctx context.Context, evaluationID string, out domain.DispatchResult) {
	if g.deps.FollowUp == nil {
		return
	}
	if err := g.deps.FollowUp.ScheduleFollowUp(ctx, evaluationID); err != nil {
		g.log.WarnContext(ctx, "failed to schedule scoring follow-up",
			"evaluation_id", evaluationID, "outcome", string(out.Outcome), "error", err)
	}
}
