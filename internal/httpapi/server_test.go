package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-assess/internal/attachment"
	"github.com/ahrav/go-assess/internal/blob"
	"github.com/ahrav/go-assess/internal/callback"
	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/engine"
	"github.com/ahrav/go-assess/internal/ingest"
	"github.com/ahrav/go-assess/internal/ledger"
	"github.com/ahrav/go-assess/internal/notify"
	"github.com/ahrav/go-assess/internal/scoring"
	"github.com/ahrav/go-assess/internal/status"
	"github.com/ahrav/go-assess/internal/storage/memory"
	"github.com/ahrav/go-assess/internal/submission"
)

var callbackSecret = callback.StaticSecret("test-callback-secret-0123456789")

type testAPI struct {
	handler http.Handler
	signer  *callback.Signer
	store   *memory.Store
}

func newTestAPI(t *testing.T, engineHandler http.HandlerFunc, timeout time.Duration) *testAPI {
	t.Helper()
	srv := httptest.NewServer(engineHandler)
	t.Cleanup(srv.Close)

	ecfg := engine.DefaultConfig()
	ecfg.Endpoint = srv.URL
	ecfg.Retry.MaxAttempts = 1
	eng, err := engine.New(ecfg)
	require.NoError(t, err)

	q := domain.DefaultQuestionnaire()
	store := memory.New()
	led := ledger.New(store, notify.Nop())
	ing := ingest.New(led, notify.Nop(), nil)
	att := attachment.New(q, store, blob.NewMemoryStore(), nil)
	gw := scoring.NewGateway(scoring.Config{Timeout: timeout}, scoring.Deps{
		Ledger: led, Answers: store, Attachments: att, Respondents: store, Engine: eng, Ingestor: ing,
	})

	s := New(Config{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second, ShutdownTimeout: time.Second, BodyLimit: "8M"}, Deps{
		Submissions: submission.New(q, led, store, att, gw),
		Status:      status.New(led),
		Verifier:    callback.NewVerifier(callback.VerifierConfig{}, callbackSecret, nil, nil),
		Ingestor:    ing,
	})
	return &testAPI{handler: s.Handler(), signer: callback.NewSigner(callbackSecret, "", time.Minute), store: store}
}

func (a *testAPI) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(HeaderRespondentID, user)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func scoringEngine(score float64) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"score":` + strconv.FormatFloat(score, 'f', -1, 64) + `,"artifact_ref":"reports/x.pdf"}`))
	}
}

func slowEngine(_ http.ResponseWriter, r *http.Request) { <-r.Context().Done() }

func answers(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "answer " + strconv.Itoa(i)
	}
	return out
}

func TestScenarioAScoredInline(t *testing.T) {
	api := newTestAPI(t, scoringEngine(88), time.Second)

	rec := api.do(t, http.MethodPost, "/api/v1/evaluations/submit", "alice", map[string]any{"answers": answers(50)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[submission.SubmitResult](t, rec)
	assert.Equal(t, domain.OutcomeScoredSynchronously, res.Outcome)

	rec = api.do(t, http.MethodGet, "/api/v1/evaluations/"+res.EvaluationID+"/status", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[domain.Status](t, rec)
	assert.True(t, st.Ready)
	require.NotNil(t, st.Score)
	assert.InDelta(t, 88.0, *st.Score, 0.001)
	require.NotNil(t, st.ArtifactRef)

	rec = api.do(t, http.MethodPost, "/api/v1/evaluations/progress", "alice", map[string]any{
		"evaluation_id": res.EvaluationID, "question_index": 0, "answer": "too late",
	})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestScenarioBIncomplete(t *testing.T) {
	api := newTestAPI(t, scoringEngine(88), time.Second)

	ans := answers(50)
	ans[49] = ""
	rec := api.do(t, http.MethodPost, "/api/v1/evaluations/submit", "alice", map[string]any{"answers": ans})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[submission.SubmitResult](t, rec)
	assert.False(t, res.Complete)
	assert.Equal(t, 49, res.Answered)

	rec = api.do(t, http.MethodGet, "/api/v1/evaluations/"+res.EvaluationID+"/status", "alice", nil)
	st := decode[domain.Status](t, rec)
	assert.Equal(t, domain.StateInProgress, st.State)
	assert.False(t, st.Ready)
}

func TestScenarioCTimeoutThenCallback(t *testing.T) {
	api := newTestAPI(t, slowEngine, 50*time.Millisecond)

	rec := api.do(t, http.MethodPost, "/api/v1/evaluations/submit", "alice", map[string]any{"answers": answers(50)})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	res := decode[submission.SubmitResult](t, rec)

	rec = api.do(t, http.MethodGet, "/api/v1/evaluations/"+res.EvaluationID+"/status", "alice", nil)
	assert.False(t, decode[domain.Status](t, rec).Ready)

	token, err := api.signer.Sign(domain.ScoringResult{EvaluationID: res.EvaluationID, Score: 61, ArtifactRef: "late.pdf"})
	require.NoError(t, err)
	cb := postCallback(t, api, token)
	require.Equal(t, http.StatusOK, cb.Code, cb.Body.String())
	assert.True(t, decode[callbackResponse](t, cb).Applied)

	rec = api.do(t, http.MethodGet, "/api/v1/evaluations/"+res.EvaluationID+"/status", "alice", nil)
	st := decode[domain.Status](t, rec)
	assert.True(t, st.Ready)
	assert.InDelta(t, 61.0, *st.Score, 0.001)

	replay := postCallback(t, api, token)
	require.Equal(t, http.StatusOK, replay.Code)
	assert.True(t, decode[callbackResponse](t, replay).Duplicate)
}

func postCallback(t *testing.T, api *testAPI, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/engine/callback", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	return rec
}

func TestCallbackErrors(t *testing.T) {
	api := newTestAPI(t, scoringEngine(1), time.Second)
	ctx := context.Background()

	inProgress, err := ledger.New(api.store, notify.Nop()).Create(ctx, "alice")
	require.NoError(t, err)

	forged, err := callback.NewSigner(callback.StaticSecret("wrong-secret"), "", time.Minute).
		Sign(domain.ScoringResult{EvaluationID: inProgress.ID, Score: 1, ArtifactRef: "r"})
	require.NoError(t, err)
	unknown, err := api.signer.Sign(domain.ScoringResult{EvaluationID: "missing", Score: 1, ArtifactRef: "r"})
	require.NoError(t, err)
	early, err := api.signer.Sign(domain.ScoringResult{EvaluationID: inProgress.ID, Score: 1, ArtifactRef: "r"})
	require.NoError(t, err)
	outOfRange, err := api.signer.Sign(domain.ScoringResult{EvaluationID: inProgress.ID, Score: 101, ArtifactRef: "r"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"forged", forged, http.StatusUnauthorized},
		{"unknown evaluation", unknown, http.StatusUnprocessableEntity},
		{"not yet completed", early, http.StatusUnprocessableEntity},
		{"score out of range", outOfRange, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postCallback(t, api, tt.token)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestEvaluationEndpoints(t *testing.T) {
	api := newTestAPI(t, scoringEngine(1), time.Second)

	rec := api.do(t, http.MethodPost, "/api/v1/evaluations", "alice", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[evaluationResponse](t, rec)
	assert.Equal(t, domain.StateInProgress, created.State)

	progress := func(idx int, answer string) *httptest.ResponseRecorder {
		return api.do(t, http.MethodPost, "/api/v1/evaluations/progress", "alice", map[string]any{
			"evaluation_id": created.EvaluationID, "question_index": idx, "answer": answer,
		})
	}
	require.Equal(t, http.StatusOK, progress(0, "first").Code)
	require.Equal(t, http.StatusOK, progress(49, "last").Code)

	skipped := progress(3, "")
	require.Equal(t, http.StatusOK, skipped.Code)
	assert.True(t, decode[submission.ProgressResult](t, skipped).Skipped)

	assert.Equal(t, http.StatusBadRequest, progress(50, "x").Code)

	rec = api.do(t, http.MethodGet, "/api/v1/evaluations/"+created.EvaluationID+"/answers", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Answers map[string]string `json:"answers"`
	}](t, rec)
	assert.Equal(t, map[string]string{"1": "first", "50": "last"}, body.Answers)
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t, scoringEngine(1), time.Second)

	rec := api.do(t, http.MethodPost, "/api/v1/evaluations", "alice", nil)
	created := decode[evaluationResponse](t, rec)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		want   int
	}{
		{"missing identity", http.MethodGet, "/api/v1/evaluations/" + created.EvaluationID + "/status", "", nil, http.StatusUnauthorized},
		{"foreign status", http.MethodGet, "/api/v1/evaluations/" + created.EvaluationID + "/status", "bob", nil, http.StatusNotFound},
		{"unknown status", http.MethodGet, "/api/v1/evaluations/nope/status", "alice", nil, http.StatusNotFound},
		{"missing question index", http.MethodPost, "/api/v1/evaluations/progress", "alice", map[string]any{"evaluation_id": created.EvaluationID, "answer": "x"}, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/v1/evaluations/submit", "alice", "not an object", http.StatusBadRequest},
		{"too many answers", http.MethodPost, "/api/v1/evaluations/submit", "alice", map[string]any{"answers": answers(51)}, http.StatusBadRequest},
		{"bad slot", http.MethodPost, "/api/v1/evaluations/submit", "alice", map[string]any{"attachments": []map[string]any{{"slot": 5}}}, http.StatusBadRequest},
		{"foreign submit", http.MethodPost, "/api/v1/evaluations/submit", "bob", map[string]any{"evaluation_id": created.EvaluationID}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Code)
		})
	}
}

func TestAdminCanReadStatus(t *testing.T) {
	api := newTestAPI(t, scoringEngine(1), time.Second)
	created := decode[evaluationResponse](t, api.do(t, http.MethodPost, "/api/v1/evaluations", "alice", nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/evaluations/"+created.EvaluationID+"/status", nil)
	req.Header.Set(HeaderRespondentID, "ops")
	req.Header.Set(HeaderPrincipalType, "admin")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitWithAttachmentAndHardFailure(t *testing.T) {
	api := newTestAPI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"message":"cannot score"}}`))
	}, time.Second)

	rec := api.do(t, http.MethodPost, "/api/v1/evaluations/submit", "alice", map[string]any{
		"answers": answers(50),
		"attachments": []map[string]any{
			{"slot": 0, "filename": "evidence.txt", "content": []byte("evidence")},
		},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	res := decode[submission.SubmitResult](t, rec)
	assert.Equal(t, domain.OutcomeHardFailure, res.Outcome)
	assert.Contains(t, res.Warning, "cannot score")

	atts, err := api.store.ListAttachments(context.Background(), res.EvaluationID)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, "evidence.txt", atts[0].Filename)
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, scoringEngine(1), time.Second)
	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
