package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/ahrav/go-assess/internal/workflow"
)

// WorkflowStarter is the part of client.Client the scheduler uses.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow any, args ...any) (client.WorkflowRun, error)
}

// TemporalScheduler starts RescoreWorkflow runs. It implements
// scoring.FollowUpScheduler.
type TemporalScheduler struct {
	starter     WorkflowStarter
	taskQueue   string
	gracePeriod time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// NewTemporalScheduler creates a scheduler posting to taskQueue.
func NewTemporalScheduler(starter WorkflowStarter, taskQueue string, grace time.Duration, maxAttempts int, logger *slog.Logger) *TemporalScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemporalScheduler{
		starter:     starter,
		taskQueue:   taskQueue,
		gracePeriod: grace,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "followup_scheduler"),
	}
}

// ScheduleFollowUp starts the follow-up run for evaluationID. A run that is
// already in flight for the same evaluation is reused.
func (s *TemporalScheduler) ScheduleFollowUp(ctx context.Context, evaluationID string) error {
	opts := client.StartWorkflowOptions{
		ID:        workflow.WorkflowID(evaluationID),
		TaskQueue: s.taskQueue,
	}
	run, err := s.starter.ExecuteWorkflow(ctx, opts, workflow.RescoreWorkflow, workflow.RescoreRequest{
		EvaluationID: evaluationID,
		GracePeriod:  s.gracePeriod,
		MaxAttempts:  s.maxAttempts,
	})
	if err != nil {
		return fmt.Errorf("start follow-up for %s: %w", evaluationID, err)
	}
	s.logger.InfoContext(ctx, "follow-up scheduled",
		"evaluation_id", evaluationID, "workflow_id", run.GetID(), "run_id", run.GetRunID())
	return nil
}
