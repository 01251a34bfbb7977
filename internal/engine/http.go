package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ahrav/go-assess/internal/domain"
)

// maxResponseBytes bounds how much of an engine response body is read.
const maxResponseBytes = 1 << 20

// httpHandler is the core handler that talks to the engine over HTTP.
type httpHandler struct {
	client       *http.Client
	endpoint     string
	apiKey       string
	scorePath    string
	artifactPath string
}

func newHTTPHandler(cfg Config, client *http.Client) *httpHandler {
	return &httpHandler{
		client:       client,
		endpoint:     strings.TrimRight(cfg.Endpoint, "/") + "/score",
		apiKey:       cfg.APIKey,
		scorePath:    cfg.ScorePath,
		artifactPath: cfg.ArtifactPath,
	}
}

// Handle implements Handler.
func (h *httpHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return nil, &Error{Type: ErrorTypeRejected, Message: err.Error(), Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if err := classifyStatus(resp, body); err != nil {
		return nil, err
	}
	return h.parseResult(req.EvaluationID, resp.StatusCode, body)
}

// classifyStatus turns non-200 responses into an *Error.
func classifyStatus(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusAccepted:
		return &Error{Type: ErrorTypeAccepted, StatusCode: code, Message: "queued by engine"}
	case code == http.StatusTooManyRequests:
		return &Error{
			Type:       ErrorTypeRateLimit,
			StatusCode: code,
			Message:    errorMessage(body, "rate limited"),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case code == http.StatusRequestTimeout || code >= 500:
		return &Error{
			Type:       ErrorTypeUnavailable,
			StatusCode: code,
			Message:    errorMessage(body, http.StatusText(code)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	default:
		return &Error{Type: ErrorTypeRejected, StatusCode: code, Message: errorMessage(body, http.StatusText(code))}
	}
}

func (h *httpHandler) parseResult(evaluationID string, code int, body []byte) (*Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, &Error{Type: ErrorTypeInvalidResponse, StatusCode: code, Message: "response is not valid JSON"}
	}
	score := gjson.GetBytes(body, h.scorePath)
	if !score.Exists() || score.Type != gjson.Number {
		return nil, &Error{
			Type:       ErrorTypeInvalidResponse,
			StatusCode: code,
			Message:    fmt.Sprintf("missing numeric %q", h.scorePath),
		}
	}
	artifact := gjson.GetBytes(body, h.artifactPath)
	if !artifact.Exists() || artifact.Type != gjson.String {
		return nil, &Error{
			Type:       ErrorTypeInvalidResponse,
			StatusCode: code,
			Message:    fmt.Sprintf("missing string %q", h.artifactPath),
		}
	}

	result := domain.ScoringResult{
		EvaluationID: evaluationID,
		Score:        score.Float(),
		ArtifactRef:  artifact.String(),
	}
	if err := result.Validate(); err != nil {
		return nil, &Error{Type: ErrorTypeInvalidResponse, StatusCode: code, Message: err.Error(), Cause: err}
	}
	return &Response{StatusCode: code, Result: result}, nil
}

// errorMessage extracts a human readable message from common error body shapes.
func errorMessage(body []byte, fallback string) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "message", "error"} {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) <= 200 {
		return s
	}
	return fallback
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
