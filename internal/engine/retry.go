package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

var (
	errMaxAttemptsInvalid     = errors.New("retry max attempts must be greater than 0")
	errInitialIntervalInvalid = errors.New("retry initial interval must be greater than 0")
	errMaxIntervalInvalid     = errors.New("retry max interval must be >= initial interval")
	errMultiplierInvalid      = errors.New("retry multiplier must be >= 1.0")
)

// RetryConfig controls the retry middleware.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" validate:"min=1,max=10"`
	InitialInterval time.Duration `yaml:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `yaml:"max_interval" validate:"gtefield=InitialInterval"`
	Multiplier      float64       `yaml:"multiplier" validate:"gte=1"`
	UseJitter       bool          `yaml:"use_jitter"`
}

func (c RetryConfig) check() error {
	switch {
	case c.MaxAttempts <= 0:
		return fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, c.MaxAttempts)
	case c.InitialInterval <= 0:
		return fmt.Errorf("%w, got %v", errInitialIntervalInvalid, c.InitialInterval)
	case c.MaxInterval < c.InitialInterval:
		return fmt.Errorf("%w, max: %v, initial: %v", errMaxIntervalInvalid, c.MaxInterval, c.InitialInterval)
	case c.Multiplier < 1.0:
		return fmt.Errorf("%w, got %f", errMultiplierInvalid, c.Multiplier)
	}
	return nil
}

// NewRetryMiddleware retries retryable engine errors with exponential backoff
// and full jitter. A Retry-After from the engine takes precedence over the
// computed delay. The loop never sleeps past the caller's deadline.
func NewRetryMiddleware(cfg RetryConfig, logger *slog.Logger) (Middleware, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine_retry")

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			var lastErr error
			for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
				if err := ctx.Err(); err != nil {
					return nil, classifyTransportError(err)
				}

				resp, err := next.Handle(ctx, req)
				if err == nil {
					resp.Attempts = attempt
					if attempt > 1 {
						logger.Info("engine call succeeded after retry",
							"evaluation_id", req.EvaluationID, "attempt", attempt)
					}
					return resp, nil
				}
				if !Retryable(err) {
					return nil, err
				}
				lastErr = err
				if attempt == cfg.MaxAttempts {
					break
				}

				backoff := cfg.backoff(attempt, err)
				if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < backoff {
					logger.Debug("no time left for another attempt",
						"evaluation_id", req.EvaluationID, "attempt", attempt, "backoff", backoff)
					break
				}

				logger.Debug("retrying engine call",
					"evaluation_id", req.EvaluationID,
					"attempt", attempt,
					"backoff", backoff,
					"error", err)

				timer := time.NewTimer(backoff)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return nil, classifyTransportError(ctx.Err())
				}
			}
			return nil, lastErr
		})
	}, nil
}

// backoff computes the delay before the next attempt.
func (c RetryConfig) backoff(attempt int, err error) time.Duration {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter
	}

	d := c.InitialInterval
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * c.Multiplier)
		if d > c.MaxInterval {
			d = c.MaxInterval
			break
		}
	}
	if c.UseJitter {
		return time.Duration(rand.Int64N(int64(d) + 1)) // #nosec G404 -- jitter only
	}
	return d
}
