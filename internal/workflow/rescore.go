package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/scoring"
)

// Rescore defaults.
const (
	DefaultGracePeriod = 10 * time.Minute
	DefaultMaxAttempts = 5

	// activityTimeout must exceed the gateway's dispatch timeout.
	activityTimeout = 2 * time.Minute
)

// Outcome is how a follow-up run ended.
type Outcome string

const (
	// OutcomeResolved means a result arrived without further action.
	OutcomeResolved Outcome = "resolved"
	// OutcomeScored means a redispatch produced the score inline.
	OutcomeScored Outcome = "scored"
	// OutcomeFailed means attempts ran out and the evaluation is scoring_failed.
	OutcomeFailed Outcome = "failed"
)

// RescoreRequest starts a follow-up run for one evaluation.
type RescoreRequest struct {
	EvaluationID string        `json:"evaluation_id"`
	GracePeriod  time.Duration `json:"grace_period"`
	MaxAttempts  int           `json:"max_attempts"`
}

// Validate checks the request and fills defaults.
func (r *RescoreRequest) Validate() error {
	if r.EvaluationID == "" {
		return domain.NewValidationError("evaluation_id", "must not be empty")
	}
	if r.GracePeriod < 0 {
		return domain.NewValidationError("grace_period", "must not be negative")
	}
	if r.MaxAttempts < 0 {
		return domain.NewValidationError("max_attempts", "must not be negative")
	}
	if r.GracePeriod == 0 {
		r.GracePeriod = DefaultGracePeriod
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = DefaultMaxAttempts
	}
	return nil
}

// RescoreResult summarizes a follow-up run.
type RescoreResult struct {
	EvaluationID string  `json:"evaluation_id"`
	Outcome      Outcome `json:"outcome"`
	Redispatches int     `json:"redispatches"`
}

// WorkflowID is the deterministic workflow id for an evaluation, so that at
// most one follow-up runs per evaluation.
func WorkflowID(evaluationID string) string { return "rescore-" + evaluationID }

// RescoreWorkflow waits for a callback, redispatches while the evaluation is
// still pending, and marks it scoring_failed once MaxAttempts redispatches
// have not produced a result.
func RescoreWorkflow(ctx workflow.Context, req RescoreRequest) (*RescoreResult, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "rescore.v", workflow.DefaultVersion, currentVersion)

	if err := req.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid rescore request", "Validation", err)
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout,
		HeartbeatTimeout:    activityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})
	logger := workflow.GetLogger(ctx)
	var acts *scoring.Activities
	out := &RescoreResult{EvaluationID: req.EvaluationID}

	for {
		if err := workflow.Sleep(ctx, req.GracePeriod); err != nil {
			return nil, err
		}

		var pending bool
		if err := workflow.ExecuteActivity(ctx, acts.CheckPending, req.EvaluationID).Get(ctx, &pending); err != nil {
			return nil, err
		}
		if !pending {
			out.Outcome = OutcomeResolved
			return out, nil
		}
		if out.Redispatches >= req.MaxAttempts {
			break
		}

		var res domain.DispatchResult
		if err := workflow.ExecuteActivity(ctx, acts.Redispatch, req.EvaluationID).Get(ctx, &res); err != nil {
			return nil, err
		}
		out.Redispatches++
		logger.Info("follow-up redispatch", "evaluation_id", req.EvaluationID,
			"attempt", out.Redispatches, "outcome", res.Outcome)
		if res.Outcome == domain.OutcomeScoredSynchronously {
			out.Outcome = OutcomeScored
			return out, nil
		}
	}

	reason := fmt.Sprintf("no scoring result after %d follow-up attempts", out.Redispatches)
	var changed bool
	if err := workflow.ExecuteActivity(ctx, acts.MarkScoringFailed, req.EvaluationID, reason).Get(ctx, &changed); err != nil {
		return nil, err
	}
	if !changed {
		out.Outcome = OutcomeResolved
		return out, nil
	}
	out.Outcome = OutcomeFailed
	return out, nil
}
