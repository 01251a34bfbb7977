package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-assess/internal/domain"
)

var fastPoll = PollConfig{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond, MaxWait: 500 * time.Millisecond}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, "alice", append([]Option{WithPollConfig(fastPoll)}, opts...)...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewValidation(t *testing.T) {
	_, err := New("not a url", "alice")
	require.Error(t, err)
	_, err = New("http://localhost:8080", " ")
	require.Error(t, err)
	c, err := New("http://localhost:8080/", "alice")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.baseURL)
	assert.Equal(t, DefaultPollInitial, c.poll.Initial)
}

func TestSubmitSendsIdentityAndReportsAccepted(t *testing.T) {
	var gotBody SubmitRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/evaluations/submit", r.URL.Path)
		assert.Equal(t, "alice", r.Header.Get(HeaderRespondentID))
		assert.Empty(t, r.Header.Get(HeaderPrincipalType))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeJSON(w, http.StatusAccepted, map[string]any{
			"evaluation_id": "e1", "state": "completed", "answered": 50, "complete": true, "outcome": "accepted",
		})
	})

	res, err := c.Submit(context.Background(), SubmitRequest{
		Answers:     []string{"a", "b"},
		Attachments: []Attachment{{Slot: 0, Filename: "doc.pdf", Content: []byte("%PDF")}},
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.True(t, res.Complete)
	assert.Equal(t, domain.OutcomeAcceptedAsync, res.Outcome)
	assert.Equal(t, []string{"a", "b"}, gotBody.Answers)
	assert.Equal(t, []byte("%PDF"), gotBody.Attachments[0].Content)
}

func TestAPIErrorDecoding(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "question_index: must be in [0,50)", "code": "validation", "field": "question_index",
		})
	})

	_, err := c.SaveProgress(context.Background(), ProgressRequest{EvaluationID: "e1", QuestionIndex: 99, Answer: "x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "validation", apiErr.Code)
	assert.Equal(t, "question_index", apiErr.Field)
	assert.False(t, apiErr.Temporary())
}

func TestAdminHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "admin", r.Header.Get(HeaderPrincipalType))
		assert.Equal(t, "/api/v1/evaluations/e1/answers", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"answers": map[string]string{"1": "yes"}})
	}, WithAdmin())

	answers, err := c.Answers(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "yes"}, answers)
}

func TestWaitForResult(t *testing.T) {
	score, ref := 81.0, "reports/81"

	tests := []struct {
		name      string
		handler   func(n int32, w http.ResponseWriter)
		wantErr   error
		wantReady bool
		minCalls  int32
	}{
		{
			name: "ready after a few polls",
			handler: func(n int32, w http.ResponseWriter) {
				if n < 3 {
					writeJSON(w, http.StatusOK, domain.Status{EvaluationID: "e1", State: domain.StateCompleted})
					return
				}
				writeJSON(w, http.StatusOK, domain.Status{EvaluationID: "e1", State: domain.StateScored, Ready: true, Score: &score, ArtifactRef: &ref})
			},
			wantReady: true,
			minCalls:  3,
		},
		{
			name: "transient errors are retried",
			handler: func(n int32, w http.ResponseWriter) {
				if n == 1 {
					writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy", "code": "transient_storage"})
					return
				}
				writeJSON(w, http.StatusOK, domain.Status{EvaluationID: "e1", State: domain.StateScored, Ready: true, Score: &score, ArtifactRef: &ref})
			},
			wantReady: true,
			minCalls:  2,
		},
		{
			name: "scoring failed",
			handler: func(_ int32, w http.ResponseWriter) {
				writeJSON(w, http.StatusOK, domain.Status{EvaluationID: "e1", State: domain.StateScoringFailed})
			},
			wantErr:  ErrScoringFailed,
			minCalls: 1,
		},
		{
			name: "never ready",
			handler: func(_ int32, w http.ResponseWriter) {
				writeJSON(w, http.StatusOK, domain.Status{EvaluationID: "e1", State: domain.StateCompleted})
			},
			wantErr:  ErrWaitTimeout,
			minCalls: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				tt.handler(calls.Add(1), w)
			})

			st, err := c.WaitForResult(context.Background(), "e1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantReady, st.Ready)
			assert.GreaterOrEqual(t, calls.Load(), tt.minCalls)
		})
	}
}

func TestWaitForResultStopsOnNotFound(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "code": "not_found"})
	})

	_, err := c.WaitForResult(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWaitForResultHonorsCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, domain.Status{State: domain.StateCompleted})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.WaitForResult(ctx, "e1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrWaitTimeout))
}

func TestWaitForResultCallerDeadlineIsNotWaitTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, domain.Status{State: domain.StateCompleted})
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.WaitForResult(ctx, "e1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrWaitTimeout), "the caller's deadline is shorter than MaxWait")
}
