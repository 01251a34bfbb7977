package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-assess/internal/domain"
)

func testConfig(endpoint string) Config {
	cfg := DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.APIKey = "secret-key"
	cfg.Timeout = 2 * time.Second
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = 5 * time.Millisecond
	cfg.RateLimit = RateLimitConfig{}
	return cfg
}

func testRequest() domain.ScoringRequest {
	return domain.ScoringRequest{
		EvaluationID: "eval-1",
		Answers:      map[int]string{1: "yes", 2: "no", 10: "maybe"},
		Respondent:   domain.RespondentProfile{ID: "user-1", Name: "Ada"},
		Attachments: []domain.AttachmentPayload{
			{SlotIndex: 0, Kind: "supporting_document", Filename: "a.pdf", Content: []byte("%PDF")},
		},
		Customization: "focus on security",
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(testConfig(srv.URL))
	require.NoError(t, err)
	return c, srv
}

func TestScoreSuccess(t *testing.T) {
	var got map[string]any
	var headers http.Header
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		assert.Equal(t, "/score", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"score": 87.5, "artifact_ref": "reports/eval-1.pdf"}`))
	})

	res, err := c.Score(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.ScoringResult{EvaluationID: "eval-1", Score: 87.5, ArtifactRef: "reports/eval-1.pdf"}, res)

	assert.Equal(t, "Bearer secret-key", headers.Get("Authorization"))
	assert.Len(t, headers.Get("Idempotency-Key"), 64)
	answers := got["answers"].(map[string]any)
	assert.Equal(t, "yes", answers["1"])
	assert.Equal(t, "maybe", answers["10"])
	atts := got["attachments"].([]any)
	require.Len(t, atts, 1)
	assert.Equal(t, "JVBERg==", atts[0].(map[string]any)["content"])
}

func TestScoreCustomPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"result":{"value":42,"report":"r/42"}}}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ScorePath = "data.result.value"
	cfg.ArtifactPath = "data.result.report"
	c, err := New(cfg)
	require.NoError(t, err)

	res, err := c.Score(context.Background(), testRequest())
	require.NoError(t, err)
	assert.InDelta(t, 42.0, res.Score, 0.0001)
	assert.Equal(t, "r/42", res.ArtifactRef)
}

func TestScoreClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantType  ErrorType
		wantClass error
		wantCalls int32
	}{
		{"accepted", http.StatusAccepted, `{}`, ErrorTypeAccepted, ErrAccepted, 1},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"answers missing"}}`, ErrorTypeRejected, domain.ErrEngineRejected, 1},
		{"unprocessable", http.StatusUnprocessableEntity, `{"message":"bad"}`, ErrorTypeRejected, domain.ErrEngineRejected, 1},
		{"server error retried", http.StatusInternalServerError, `oops`, ErrorTypeUnavailable, domain.ErrEngineUnavailable, 3},
		{"bad gateway retried", http.StatusBadGateway, ``, ErrorTypeUnavailable, domain.ErrEngineUnavailable, 3},
		{"rate limited retried", http.StatusTooManyRequests, `{}`, ErrorTypeRateLimit, domain.ErrEngineUnavailable, 3},
		{"malformed body", http.StatusOK, `not json`, ErrorTypeInvalidResponse, domain.ErrEngineRejected, 1},
		{"missing score", http.StatusOK, `{"artifact_ref":"x"}`, ErrorTypeInvalidResponse, domain.ErrEngineRejected, 1},
		{"score out of range", http.StatusOK, `{"score":140,"artifact_ref":"x"}`, ErrorTypeInvalidResponse, domain.ErrEngineRejected, 1},
		{"empty artifact", http.StatusOK, `{"score":10,"artifact_ref":""}`, ErrorTypeInvalidResponse, domain.ErrEngineRejected, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Score(context.Background(), testRequest())
			require.Error(t, err)

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.wantType, e.Type)
			assert.ErrorIs(t, Classify(err), tt.wantClass)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestScoreRejectedMessage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"answers missing"}}`))
	})
	_, err := c.Score(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "answers missing")
}

func TestScoreRetryThenSuccess(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"score": 10, "artifact_ref": "r"}`))
	})

	res, err := c.Score(context.Background(), testRequest())
	require.NoError(t, err)
	assert.InDelta(t, 10.0, res.Score, 0.0001)
	assert.Equal(t, int32(3), calls.Load())
}

func TestScoreTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Score(ctx, testRequest())
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, Classify(err), domain.ErrEngineUnavailable)
}

func TestScoreNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(testConfig(url))
	require.NoError(t, err)

	_, err = c.Score(context.Background(), testRequest())
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrorTypeNetwork, e.Type)
	assert.ErrorIs(t, err, domain.ErrEngineUnavailable)
}

func TestScoreInvalidRequest(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("engine must not be called")
	})
	req := testRequest()
	req.Answers = nil

	_, err := c.Score(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEngineRejected)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCircuitOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker = BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Hour, HalfOpenProbes: 1}
	c, err := New(cfg)
	require.NoError(t, err)

	for range 2 {
		_, err := c.Score(context.Background(), testRequest())
		require.Error(t, err)
	}
	assert.Equal(t, StateOpen, c.BreakerState())

	_, err = c.Score(context.Background(), testRequest())
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ErrorTypeCircuitOpen, e.Type)
	assert.ErrorIs(t, Classify(err), domain.ErrEngineUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotencyKeyDeterministic(t *testing.T) {
	a, err := EncodePayload(testRequest())
	require.NoError(t, err)
	b, err := EncodePayload(testRequest())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, IdempotencyKey("eval-1", a), IdempotencyKey("eval-1", b))

	other := testRequest()
	other.Answers[1] = "changed"
	c, err := EncodePayload(other)
	require.NoError(t, err)
	assert.NotEqual(t, IdempotencyKey("eval-1", a), IdempotencyKey("eval-1", c))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate())

	cfg.Endpoint = "http://engine.local"
	require.NoError(t, cfg.Validate())

	cfg.ScorePath = ""
	require.Error(t, cfg.Validate())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))
	assert.ErrorIs(t, Classify(errors.New("mystery")), domain.ErrEngineUnavailable)
	assert.ErrorIs(t, Classify(&Error{Type: ErrorTypeAccepted}), ErrAccepted)
	assert.ErrorIs(t, Classify(&Error{Type: ErrorTypeRejected}), domain.ErrEngineRejected)
}
