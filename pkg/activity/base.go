// Package activity provides helpers shared by Temporal activity
// implementations: execution metadata, context-safe logging and heartbeats,
// and mapping of domain errors onto Temporal retry semantics.
package activity

import (
	"context"

	"go.temporal.io/sdk/activity"
)

// Execution identifies the activity run a call belongs to.
type Execution struct {
	WorkflowID string
	RunID      string
	ActivityID string
	Attempt    int32
}

// ExecutionOf extracts execution metadata from ctx. Outside an activity
// context (plain unit tests) it returns a fixed placeholder so callers never
// need to special-case tests.
func ExecutionOf(ctx context.Context) (exec Execution) {
	defer func() {
		if recover() != nil {
			exec = Execution{WorkflowID: "test-workflow", RunID: "test-run", ActivityID: "test-activity", Attempt: 1}
		}
	}()
	info := activity.GetInfo(ctx)
	return Execution{
		WorkflowID: info.WorkflowExecution.ID,
		RunID:      info.WorkflowExecution.RunID,
		ActivityID: info.ActivityID,
		Attempt:    info.Attempt,
	}
}

// SafeLog logs through the activity logger and is a no-op outside an
// activity context.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Info(msg, keyvals...)
}

// SafeLogError is SafeLog at error level.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	defer func() { _ = recover() }()
	activity.GetLogger(ctx).Error(msg, keyvals...)
}

// RecordHeartbeat records a heartbeat and is a no-op outside an activity context.
func RecordHeartbeat(ctx context.Context, details ...any) {
	defer func() { _ = recover() }()
	activity.RecordHeartbeat(ctx, details...)
}
