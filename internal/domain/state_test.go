package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluationStateTransitions(t *testing.T) {
	tests := []struct {
		from, to EvaluationState
		allowed  bool
	}{
		{StateInProgress, StateCompleted, true},
		{StateInProgress, StateScored, false},
		{StateInProgress, StateScoringFailed, false},
		{StateCompleted, StateScored, true},
		{StateCompleted, StateScoringFailed, true},
		{StateCompleted, StateInProgress, false},
		{StateScored, StateScored, true},
		{StateScored, StateCompleted, false},
		{StateScored, StateInProgress, false},
		{StateScoringFailed, StateScored, false},
		{StateScoringFailed, StateCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestEvaluationStateProperties(t *testing.T) {
	assert.True(t, StateScoringFailed.IsTerminal())
	assert.False(t, StateScored.IsTerminal(), "scored may be re-scored")

	assert.True(t, StateCompleted.AcceptsResult())
	assert.True(t, StateScored.AcceptsResult())
	assert.False(t, StateInProgress.AcceptsResult())
	assert.False(t, StateScoringFailed.AcceptsResult())
}

func TestParseEvaluationState(t *testing.T) {
	for _, s := range AllStates() {
		got, err := ParseEvaluationState(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseEvaluationState("archived")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}
