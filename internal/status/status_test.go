package status

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/ledger"
	"github.com/ahrav/go-assess/internal/notify"
	"github.com/ahrav/go-assess/internal/storage/memory"
)

func TestGetStatus(t *testing.T) {
	ctx := context.Background()
	led := ledger.New(memory.New(), notify.Nop())
	svc := New(led)

	e, err := led.Create(ctx, "alice")
	require.NoError(t, err)

	tests := []struct {
		name    string
		caller  domain.Principal
		wantErr error
	}{
		{"owner", domain.Respondent("alice"), nil},
		{"admin", domain.Admin("ops"), nil},
		{"other respondent", domain.Respondent("bob"), domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := svc.GetStatus(ctx, e.ID, tt.caller)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, e.ID, st.EvaluationID)
			assert.Equal(t, domain.StateInProgress, st.State)
			assert.False(t, st.Ready)
			assert.Nil(t, st.Score)
		})
	}
}

func TestGetStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	led := ledger.New(memory.New(), notify.Nop())
	svc := New(led)
	owner := domain.Respondent("alice")

	e, err := led.Create(ctx, "alice")
	require.NoError(t, err)
	_, err = led.RecordProgress(ctx, e.ID, 12.5)
	require.NoError(t, err)

	st, err := svc.GetStatus(ctx, e.ID, owner)
	require.NoError(t, err)
	require.NotNil(t, st.ElapsedMinutes)
	assert.InDelta(t, 12.5, *st.ElapsedMinutes, 0.001)

	_, _, err = led.Complete(ctx, e.ID, 50)
	require.NoError(t, err)
	st, err = svc.GetStatus(ctx, e.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, st.State)
	assert.False(t, st.Ready)

	_, _, err = led.MarkScored(ctx, domain.ScoringResult{EvaluationID: e.ID, Score: 91, ArtifactRef: "r/9"})
	require.NoError(t, err)
	st, err = svc.GetStatus(ctx, e.ID, owner)
	require.NoError(t, err)
	assert.True(t, st.Ready)
	require.NotNil(t, st.Score)
	assert.InDelta(t, 91.0, *st.Score, 0.001)
	require.NotNil(t, st.ArtifactRef)
	assert.Equal(t, "r/9", *st.ArtifactRef)
}

func TestGetStatusUnknown(t *testing.T) {
	svc := New(ledger.New(memory.New(), notify.Nop()))
	_, err := svc.GetStatus(context.Background(), "missing", domain.Admin("ops"))
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetStatus(context.Background(), "", domain.Admin("ops"))
	require.ErrorIs(t, err, domain.ErrValidation)
}
