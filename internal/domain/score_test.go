package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoringResultValidate(t *testing.T) {
	tests := []struct {
		name    string
		result  ScoringResult
		wantErr bool
	}{
		{name: "lower bound", result: ScoringResult{EvaluationID: "e", Score: 0, ArtifactRef: "r"}},
		{name: "upper bound", result: ScoringResult{EvaluationID: "e", Score: 100, ArtifactRef: "r"}},
		{name: "above range", result: ScoringResult{EvaluationID: "e", Score: 100.01, ArtifactRef: "r"}, wantErr: true},
		{name: "negative", result: ScoringResult{EvaluationID: "e", Score: -0.5, ArtifactRef: "r"}, wantErr: true},
		{name: "nan", result: ScoringResult{EvaluationID: "e", Score: math.NaN(), ArtifactRef: "r"}, wantErr: true},
		{name: "missing artifact", result: ScoringResult{EvaluationID: "e", Score: 10}, wantErr: true},
		{name: "missing evaluation", result: ScoringResult{Score: 10, ArtifactRef: "r"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestScoringRequestValidate(t *testing.T) {
	req := ScoringRequest{EvaluationID: "e", Answers: map[int]string{1: "a"}}
	require.NoError(t, req.Validate())

	req.Answers = nil
	assert.ErrorIs(t, req.Validate(), ErrValidation)

	req.Answers = map[int]string{1: "a"}
	req.CallbackURL = "not a url"
	assert.ErrorIs(t, req.Validate(), ErrValidation)
}

func TestDispatchResults(t *testing.T) {
	assert.Equal(t, OutcomeScoredSynchronously, ScoredSynchronously(50, "r").Outcome)
	assert.Equal(t, OutcomeAcceptedAsync, AcceptedAsync().Outcome)
	hf := HardFailure("bad payload")
	assert.Equal(t, OutcomeHardFailure, hf.Outcome)
	assert.Equal(t, "bad payload", hf.Reason)
}

func TestWrapStorage(t *testing.T) {
	assert.NoError(t, WrapStorage("op", nil))

	err := WrapStorage("upsert answer", assert.AnError)
	assert.ErrorIs(t, err, ErrTransientStorage)
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, IsRetryable(err))

	assert.Equal(t, ErrNotFound, WrapStorage("get", ErrNotFound))
}
