// Package engine is the HTTP client for the external scoring engine.
//
// Calls flow through a middleware chain (logging, rate limiting, circuit
// breaking, retry) around a core handler that POSTs the scoring payload and
// reads the result at configurable JSON paths. All failures surface as *Error,
// which maps onto domain.ErrEngineUnavailable, domain.ErrEngineRejected or
// ErrAccepted.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-assess/internal/domain"
)

// Config configures the engine client.
type Config struct {
	Endpoint     string          `yaml:"endpoint" validate:"required,url"`
	APIKey       string          `yaml:"api_key"`
	Timeout      time.Duration   `yaml:"timeout" validate:"gt=0"`
	ScorePath    string          `yaml:"score_path" validate:"required"`
	ArtifactPath string          `yaml:"artifact_path" validate:"required"`
	Retry        RetryConfig     `yaml:"retry"`
	Breaker      BreakerConfig   `yaml:"breaker"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// DefaultConfig returns production defaults. Endpoint must still be set.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		ScorePath:    "score",
		ArtifactPath: "artifact_ref",
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 250 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2.0,
			UseJitter:       true,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 1,
			OpenTimeout:      30 * time.Second,
			HalfOpenProbes:   1,
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 10, Burst: 20},
	}
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	return nil
}

// Client scores evaluations against the external engine.
type Client struct {
	handler Handler
	breaker *Breaker
}

// Option customizes a Client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// WithLogger sets the logger used by the middleware chain.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// New builds a Client with the full middleware chain.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	retry, err := NewRetryMiddleware(cfg.Retry, o.logger)
	if err != nil {
		return nil, err
	}
	breaker := NewBreaker(cfg.Breaker, o.logger)

	h := Chain(newHTTPHandler(cfg, o.httpClient),
		NewLoggingMiddleware(o.logger),
		NewRateLimitMiddleware(cfg.RateLimit),
		breaker.Middleware(),
		retry,
	)
	return &Client{handler: h, breaker: breaker}, nil
}

// BreakerState exposes the circuit breaker state for health reporting.
func (c *Client) BreakerState() BreakerState { return c.breaker.State() }

// Score sends req to the engine and returns its result. On failure the error
// is an *Error; use Classify to map it onto the domain taxonomy.
func (c *Client) Score(ctx context.Context, req domain.ScoringRequest) (domain.ScoringResult, error) {
	if err := req.Validate(); err != nil {
		return domain.ScoringResult{}, &Error{Type: ErrorTypeRejected, Message: err.Error(), Cause: err}
	}
	body, err := EncodePayload(req)
	if err != nil {
		return domain.ScoringResult{}, &Error{Type: ErrorTypeRejected, Message: err.Error(), Cause: err}
	}

	resp, err := c.handler.Handle(ctx, &Request{
		EvaluationID:   req.EvaluationID,
		IdempotencyKey: IdempotencyKey(req.EvaluationID, body),
		Body:           body,
	})
	if err != nil {
		return domain.ScoringResult{}, err
	}
	return resp.Result, nil
}
