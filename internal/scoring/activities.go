package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/pkg/activity"
)

// FollowUpLedger is the ledger surface used by the follow-up activities.
type FollowUpLedger interface {
	Get(ctx context.Context, id string) (*domain.Evaluation, error)
	MarkScoringFailed(ctx context.Context, id, reason string) (*domain.Evaluation, bool, error)
}

// Dispatcher hands an evaluation to the engine again.
type Dispatcher interface {
	Dispatch(ctx context.Context, id string, opts ...DispatchOption) (domain.DispatchResult, error)
}

// Activities are the Temporal activities behind the follow-up scoring
// workflow. The dispatcher must not schedule follow-ups itself, otherwise
// every redispatch would try to start another workflow.
type Activities struct {
	ledger     FollowUpLedger
	dispatcher Dispatcher
}

// NewActivities creates follow-up activities.
func NewActivities(ledger FollowUpLedger, dispatcher Dispatcher) *Activities {
	return &Activities{ledger: ledger, dispatcher: dispatcher}
}

// CheckPending reports whether the evaluation is still waiting for a score.
func (a *Activities) CheckPending(ctx context.Context, evaluationID string) (bool, error) {
	e, err := a.ledger.Get(ctx, evaluationID)
	if err != nil {
		return false, activity.Classify("check pending", err)
	}
	return e.IsPending(), nil
}

// Redispatch sends a pending evaluation to the engine again. The outcome is
// returned as data; only storage and state errors fail the activity.
func (a *Activities) Redispatch(ctx context.Context, evaluationID string) (domain.DispatchResult, error) {
	exec := activity.ExecutionOf(ctx)
	activity.RecordHeartbeat(ctx, evaluationID)

	res, err := a.dispatcher.Dispatch(ctx, evaluationID)
	if err != nil {
		activity.SafeLogError(ctx, "redispatch failed",
			"evaluation_id", evaluationID, "attempt", exec.Attempt, "error", err)
		return domain.DispatchResult{}, activity.Classify("redispatch", err)
	}
	activity.SafeLog(ctx, "redispatched",
		"evaluation_id", evaluationID, "outcome", res.Outcome, "workflow_id", exec.WorkflowID)
	return res, nil
}

// MarkScoringFailed gives up on an evaluation. It reports false when the
// evaluation was scored in the meantime.
func (a *Activities) MarkScoringFailed(ctx context.Context, evaluationID, reason string) (bool, error) {
	_, changed, err := a.ledger.MarkScoringFailed(ctx, evaluationID, reason)
	var te *domain.TransitionError
	if errors.As(err, &te) && te.From == domain.StateScored {
		activity.SafeLog(ctx, "evaluation scored before follow-up gave up", "evaluation_id", evaluationID)
		return false, nil
	}
	if err != nil {
		return false, activity.Classify(fmt.Sprintf("mark %s scoring_failed", evaluationID), err)
	}
	return changed, nil
}
