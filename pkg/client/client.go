// Package client is a Go client for the evaluation API. Besides one method
// per endpoint it offers WaitForResult, which polls the status endpoint with
// exponential backoff until a score is ready.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ahrav/go-assess/internal/domain"
)

// Identity headers understood by the API.
const (
	HeaderRespondentID  = "X-Respondent-ID"
	HeaderPrincipalType = "X-Principal-Type"
)

// Polling defaults.
const (
	DefaultPollInitial = 3 * time.Second
	DefaultPollMax     = 15 * time.Second
	DefaultMaxWait     = 5 * time.Minute
)

var (
	// ErrWaitTimeout is returned by WaitForResult when MaxWait elapses first.
	ErrWaitTimeout = errors.New("timed out waiting for scoring result")

	// ErrScoringFailed is returned by WaitForResult when the evaluation was
	// abandoned by the follow-up policy.
	ErrScoringFailed = errors.New("scoring failed")
)

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
	Code       string `json:"code"`
	Field      string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("api error %d (%s): %s: %s", e.StatusCode, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == http.StatusTooManyRequests
}

// PollConfig tunes WaitForResult.
type PollConfig struct {
	Initial time.Duration
	Max     time.Duration
	MaxWait time.Duration
}

// Evaluation is returned by Create.
type Evaluation struct {
	EvaluationID string                 `json:"evaluation_id"`
	State        domain.EvaluationState `json:"state"`
}

// ProgressRequest saves one answer. QuestionIndex is 0-based.
type ProgressRequest struct {
	EvaluationID   string   `json:"evaluation_id"`
	QuestionIndex  int      `json:"question_index"`
	Answer         string   `json:"answer"`
	ElapsedMinutes *float64 `json:"elapsed_minutes,omitempty"`
}

// ProgressResponse acknowledges a saved answer.
type ProgressResponse struct {
	EvaluationID  string `json:"evaluation_id"`
	QuestionIndex int    `json:"question_index"`
	Skipped       bool   `json:"skipped"`
}

// Attachment is one supporting document. Content is sent base64 encoded.
type Attachment struct {
	Slot        int    `json:"slot"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Content     []byte `json:"content"`
}

// SubmitRequest submits answers positionally: Answers[i] answers question i+1.
type SubmitRequest struct {
	EvaluationID   string       `json:"evaluation_id,omitempty"`
	Answers        []string     `json:"answers"`
	ElapsedMinutes *float64     `json:"elapsed_minutes,omitempty"`
	Customization  string       `json:"customization,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// SubmitResponse is the submit outcome. Accepted is true for a 202, meaning
// the score will arrive later.
type SubmitResponse struct {
	EvaluationID string                 `json:"evaluation_id"`
	State        domain.EvaluationState `json:"state"`
	Answered     int                    `json:"answered"`
	Complete     bool                   `json:"complete"`
	Outcome      domain.DispatchOutcome `json:"outcome,omitempty"`
	Score        *float64               `json:"score,omitempty"`
	ArtifactRef  *string                `json:"artifact_ref,omitempty"`
	Warning      string                 `json:"warning,omitempty"`
	Accepted     bool                   `json:"-"`
}

// Client calls the evaluation API on behalf of one principal.
type Client struct {
	baseURL    string
	principal  domain.Principal
	httpClient *http.Client
	poll       PollConfig
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPollConfig overrides the polling schedule. Zero fields keep defaults.
func WithPollConfig(p PollConfig) Option {
	return func(c *Client) {
		if p.Initial > 0 {
			c.poll.Initial = p.Initial
		}
		if p.Max > 0 {
			c.poll.Max = p.Max
		}
		if p.MaxWait > 0 {
			c.poll.MaxWait = p.MaxWait
		}
	}
}

// WithAdmin makes the client act as an administrator.
func WithAdmin() Option {
	return func(c *Client) { c.principal = domain.Admin(c.principal.ID) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the API at baseURL acting as respondentID.
func New(baseURL, respondentID string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	if strings.TrimSpace(respondentID) == "" {
		return nil, errors.New("respondent id is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		principal:  domain.Respondent(respondentID),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		poll:       PollConfig{Initial: DefaultPollInitial, Max: DefaultPollMax, MaxWait: DefaultMaxWait},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "assess_client")
	return c, nil
}

// Create starts a new evaluation.
func (c *Client) Create(ctx context.Context) (Evaluation, error) {
	var out Evaluation
	_, err := c.do(ctx, http.MethodPost, "/api/v1/evaluations", struct{}{}, &out)
	return out, err
}

// SaveProgress stores one answer.
func (c *Client) SaveProgress(ctx context.Context, req ProgressRequest) (ProgressResponse, error) {
	var out ProgressResponse
	_, err := c.do(ctx, http.MethodPost, "/api/v1/evaluations/progress", req, &out)
	return out, err
}

// Submit submits answers and attachments.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	var out SubmitResponse
	code, err := c.do(ctx, http.MethodPost, "/api/v1/evaluations/submit", req, &out)
	out.Accepted = code == http.StatusAccepted
	return out, err
}

// Answers returns the saved answers keyed by 1-based question index.
func (c *Client) Answers(ctx context.Context, evaluationID string) (map[string]string, error) {
	var out struct {
		Answers map[string]string `json:"answers"`
	}
	_, err := c.do(ctx, http.MethodGet, "/api/v1/evaluations/"+url.PathEscape(evaluationID)+"/answers", nil, &out)
	return out.Answers, err
}

// Status fetches the polling view of an evaluation.
func (c *Client) Status(ctx context.Context, evaluationID string) (domain.Status, error) {
	var out domain.Status
	_, err := c.do(ctx, http.MethodGet, "/api/v1/evaluations/"+url.PathEscape(evaluationID)+"/status", nil, &out)
	return out, err
}

// WaitForResult polls Status until the evaluation is scored. The interval
// starts at Initial and doubles up to Max. Temporary API errors are retried;
// ErrWaitTimeout is returned once MaxWait has elapsed. When the caller's
// context ends first its error is returned instead.
func (c *Client) WaitForResult(parent context.Context, evaluationID string) (domain.Status, error) {
	ctx, cancel := context.WithTimeout(parent, c.poll.MaxWait)
	defer cancel()

	interval := c.poll.Initial
	for attempt := 1; ; attempt++ {
		st, err := c.Status(ctx, evaluationID)
		var apiErr *APIError
		switch {
		case err == nil && st.Ready:
			return st, nil
		case err == nil && st.State == domain.StateScoringFailed:
			return st, fmt.Errorf("evaluation %s: %w", evaluationID, ErrScoringFailed)
		case errors.As(err, &apiErr) && !apiErr.Temporary():
			return st, err
		case err != nil && ctx.Err() == nil:
			c.logger.DebugContext(ctx, "status poll failed", "evaluation_id", evaluationID, "attempt", attempt, "error", err)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			if err := parent.Err(); err != nil {
				return st, err
			}
			return st, fmt.Errorf("evaluation %s after %s: %w", evaluationID, c.poll.MaxWait, ErrWaitTimeout)
		case <-timer.C:
		}
		interval = min(interval*2, c.poll.Max)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderRespondentID, c.principal.ID)
	if c.principal.Type == domain.PrincipalAdmin {
		req.Header.Set(HeaderPrincipalType, "admin")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, apiErr
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
