// Package worker wires the follow-up scoring workflow into Temporal: worker
// registration, client setup, and the scheduler the API server uses to start
// follow-up runs.
package worker

import (
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ahrav/go-assess/internal/scoring"
	"github.com/ahrav/go-assess/internal/workflow"
)

// RegisterAll registers the workflow and its activities. Call it once before
// starting the worker.
func RegisterAll(w sdkworker.Registry, acts *scoring.Activities) {
	w.RegisterWorkflow(workflow.RescoreWorkflow)
	w.RegisterActivity(acts)
}
