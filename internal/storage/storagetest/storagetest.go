// Package storagetest holds a conformance suite run against every storage.Store
// implementation.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/storage"
)

// Harness is a fresh, empty store plus a way to seed respondent profiles,
// which the storage contracts only read.
type Harness struct {
	Store          storage.Store
	SeedRespondent func(t *testing.T, p domain.RespondentProfile)
}

// Factory builds a Harness for one subtest.
type Factory func(t *testing.T) Harness

var baseTime = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

// Run exercises the storage contracts against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("evaluation round trip", func(t *testing.T) { testEvaluationRoundTrip(t, newStore(t).Store) })
	t.Run("missing evaluation", func(t *testing.T) { testMissingEvaluation(t, newStore(t).Store) })
	t.Run("update transitions", func(t *testing.T) { testUpdateTransitions(t, newStore(t).Store) })
	t.Run("concurrent updates serialize", func(t *testing.T) { testConcurrentUpdates(t, newStore(t).Store) })
	t.Run("list by state", func(t *testing.T) { testListEvaluations(t, newStore(t).Store) })
	t.Run("answer upsert is idempotent", func(t *testing.T) { testAnswerUpsert(t, newStore(t).Store) })
	t.Run("attachment last write wins", func(t *testing.T) { testAttachmentSlots(t, newStore(t).Store) })
	t.Run("attachment constraints", func(t *testing.T) { testAttachmentConstraints(t, newStore(t).Store) })
	t.Run("customization persists", func(t *testing.T) { testCustomizationPersists(t, newStore(t).Store) })
	t.Run("respondent lookup", func(t *testing.T) { testRespondentLookup(t, newStore(t)) })
}

func mustCreate(t *testing.T, s storage.Store, owner string, now time.Time) *domain.Evaluation {
	t.Helper()
	e, err := domain.NewEvaluation(owner, now)
	require.NoError(t, err)
	require.NoError(t, s.CreateEvaluation(context.Background(), e))
	return e
}

func testEvaluationRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	e := mustCreate(t, s, "owner-1", baseTime)

	got, err := s.GetEvaluation(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "owner-1", got.OwnerID)
	assert.Equal(t, domain.StateInProgress, got.State)
	assert.Nil(t, got.ElapsedMinutes)
	assert.Nil(t, got.Score)
	assert.True(t, baseTime.Equal(got.CreatedAt))
}

func testMissingEvaluation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.GetEvaluation(ctx, "does-not-exist")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = s.UpdateEvaluation(ctx, "does-not-exist", func(*domain.Evaluation) (bool, error) {
		return true, nil
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testUpdateTransitions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	e := mustCreate(t, s, "owner-1", baseTime)

	updated, changed, err := s.UpdateEvaluation(ctx, e.ID, func(ev *domain.Evaluation) (bool, error) {
		return ev.RecordElapsed(42.5, baseTime.Add(time.Minute))
	})
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, updated.ElapsedMinutes)
	assert.InDelta(t, 42.5, *updated.ElapsedMinutes, 0)

	_, changed, err = s.UpdateEvaluation(ctx, e.ID, func(ev *domain.Evaluation) (bool, error) {
		return ev.Complete(baseTime.Add(2 * time.Minute))
	})
	require.NoError(t, err)
	assert.True(t, changed)

	_, changed, err = s.UpdateEvaluation(ctx, e.ID, func(ev *domain.Evaluation) (bool, error) {
		return ev.Complete(baseTime.Add(3 * time.Minute))
	})
	require.NoError(t, err)
	assert.False(t, changed)

	res := domain.ScoringResult{EvaluationID: e.ID, Score: 81.5, ArtifactRef: "reports/x.pdf"}
	scored, changed, err := s.UpdateEvaluation(ctx, e.ID, func(ev *domain.Evaluation) (bool, error) {
		return ev.ApplyResult(res, baseTime.Add(4*time.Minute))
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.StateScored, scored.State)

	got, err := s.GetEvaluation(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateScored, got.State)
	require.NotNil(t, got.Score)
	require.NotNil(t, got.ArtifactRef)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.ScoredAt)
	assert.InDelta(t, 81.5, *got.Score, 0)
	assert.Equal(t, "reports/x.pdf", *got.ArtifactRef)

	_, _, err = s.UpdateEvaluation(ctx, e.ID, func(ev *domain.Evaluation) (bool, error) {
		return ev.FailScoring("late", baseTime)
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	after, err := s.GetEvaluation(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateScored, after.State, "failed mutation leaves the record untouched")
}

func testConcurrentUpdates(t *testing.T, s storage.Store) {
	ctx := context.Background()
	e := mustCreate(t, s, "owner-1", baseTime)
	_, _, err := s.UpdateEvaluation(ctx, e.ID, func(ev *domain.Evaluation) (bool, error) {
		return ev.Complete(baseTime)
	})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.UpdateEvaluation(ctx, e.ID, func(ev *domain.Evaluation) (bool, error) {
				ev.RecordDispatch(baseTime)
				return true, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetEvaluation(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.DispatchAttempts, "no lost updates")
}

func testListEvaluations(t *testing.T, s storage.Store) {
	ctx := context.Background()
	var completed []string
	for i := range 4 {
		e := mustCreate(t, s, fmt.Sprintf("owner-%d", i), baseTime)
		if i%2 == 0 {
			continue
		}
		_, _, err := s.UpdateEvaluation(ctx, e.ID, func(ev *domain.Evaluation) (bool, error) {
			return ev.Complete(baseTime.Add(time.Duration(i) * time.Minute))
		})
		require.NoError(t, err)
		completed = append(completed, e.ID)
	}

	got, err := s.ListEvaluations(ctx, storage.ListFilter{State: domain.StateCompleted})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, completed, []string{got[0].ID, got[1].ID}, "oldest update first")

	got, err = s.ListEvaluations(ctx, storage.ListFilter{
		State:         domain.StateCompleted,
		UpdatedBefore: baseTime.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, completed[0], got[0].ID)

	got, err = s.ListEvaluations(ctx, storage.ListFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func testAnswerUpsert(t *testing.T, s storage.Store) {
	ctx := context.Background()
	q := domain.DefaultQuestionnaire()
	e := mustCreate(t, s, "owner-1", baseTime)

	first, err := domain.NewAnswer(q, e.ID, 3, "first draft", baseTime)
	require.NoError(t, err)
	require.NoError(t, s.UpsertAnswer(ctx, first))
	require.NoError(t, s.UpsertAnswer(ctx, first))

	second, err := domain.NewAnswer(q, e.ID, 3, "final text", baseTime.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.UpsertAnswer(ctx, second))

	other, err := domain.NewAnswer(q, e.ID, 1, "one", baseTime)
	require.NoError(t, err)
	require.NoError(t, s.UpsertAnswer(ctx, other))

	n, err := s.CountAnswers(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	answers, err := s.GetAnswers(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, answers, 2)
	assert.Equal(t, 1, answers[0].QuestionIndex)
	assert.Equal(t, 3, answers[1].QuestionIndex)
	assert.Equal(t, "final text", answers[1].Text)

	empty, err := s.GetAnswers(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)

	err = s.UpsertAnswer(ctx, domain.Answer{EvaluationID: e.ID, QuestionIndex: 4, Text: "   "})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func testAttachmentSlots(t *testing.T, s storage.Store) {
	ctx := context.Background()
	e := mustCreate(t, s, "owner-1", baseTime)

	id1, err := s.PutAttachment(ctx, domain.Attachment{
		EvaluationID: e.ID, SlotIndex: 1, StorageRef: "blobs/a", Kind: "supporting_document",
		Filename: "a.pdf", Size: 10, CreatedAt: baseTime,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := s.PutAttachment(ctx, domain.Attachment{
		EvaluationID: e.ID, SlotIndex: 1, StorageRef: "blobs/b", Kind: "supporting_document",
		Filename: "b.pdf", Size: 20, CreatedAt: baseTime.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "slot keeps its attachment id")

	_, err = s.PutAttachment(ctx, domain.Attachment{
		EvaluationID: e.ID, SlotIndex: 0, StorageRef: "blobs/c", Kind: "supporting_document", CreatedAt: baseTime,
	})
	require.NoError(t, err)

	list, err := s.ListAttachments(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 0, list[0].SlotIndex)
	assert.Equal(t, 1, list[1].SlotIndex)
	assert.Equal(t, "blobs/b", list[1].StorageRef)
	assert.Equal(t, "b.pdf", list[1].Filename)
	assert.Equal(t, int64(20), list[1].Size)
}

func testAttachmentConstraints(t *testing.T, s storage.Store) {
	ctx := context.Background()
	e := mustCreate(t, s, "owner-1", baseTime)
	valid := domain.Attachment{
		EvaluationID: e.ID, SlotIndex: 0, StorageRef: "blobs/a", Kind: "supporting_document", CreatedAt: baseTime,
	}

	tests := []struct {
		name   string
		mutate func(*domain.Attachment)
	}{
		{"negative slot", func(a *domain.Attachment) { a.SlotIndex = -1 }},
		{"empty kind", func(a *domain.Attachment) { a.Kind = "" }},
		{"empty storage ref", func(a *domain.Attachment) { a.StorageRef = "" }},
		{"empty evaluation id", func(a *domain.Attachment) { a.EvaluationID = "" }},
		{"negative size", func(a *domain.Attachment) { a.Size = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			_, err := s.PutAttachment(ctx, a)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	list, err := s.ListAttachments(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, list, "rejected attachments are not stored")
}

func testCustomizationPersists(t *testing.T, s storage.Store) {
	ctx := context.Background()
	e := mustCreate(t, s, "owner-1", baseTime)

	_, changed, err := s.UpdateEvaluation(ctx, e.ID, func(ev *domain.Evaluation) (bool, error) {
		return ev.SetCustomization("weight leadership answers", baseTime.Add(time.Minute)), nil
	})
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := s.GetEvaluation(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "weight leadership answers", got.Customization)
}

func testRespondentLookup(t *testing.T, h Harness) {
	_, err := h.Store.LookupRespondent(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	want := domain.RespondentProfile{ID: "r1", Name: "Dana", Organization: "Acme", Contact: "dana@acme.test"}
	h.SeedRespondent(t, want)
	got, err := h.Store.LookupRespondent(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
