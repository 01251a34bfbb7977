package domain

// Status is the polling view of an evaluation.
type Status struct {
	EvaluationID   string          `json:"evaluation_id"`
	State          EvaluationState `json:"state"`
	Ready          bool            `json:"ready"`
	Score          *float64        `json:"score"`
	ArtifactRef    *string         `json:"artifact_ref"`
	ElapsedMinutes *float64        `json:"elapsed_minutes"`
}

// StatusOf derives the polling view. Ready is true only in state scored.
func StatusOf(e *Evaluation) Status {
	return Status{
		EvaluationID:   e.ID,
		State:          e.State,
		Ready:          e.State == StateScored,
		Score:          clonePtr(e.Score),
		ArtifactRef:    clonePtr(e.ArtifactRef),
		ElapsedMinutes: clonePtr(e.ElapsedMinutes),
	}
}
