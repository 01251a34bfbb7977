package engine

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket in front of the engine.
// A zero RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// NewRateLimitMiddleware waits for a token before each call. When the caller's
// deadline cannot accommodate the wait it fails fast with a rate limit error.
func NewRateLimitMiddleware(cfg RateLimitConfig) Middleware {
	if cfg.RequestsPerSecond <= 0 {
		return func(next Handler) Handler { return next }
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			if err := limiter.Wait(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, classifyTransportError(err)
				}
				return nil, &Error{Type: ErrorTypeRateLimit, Message: "local rate limit: " + err.Error(), Cause: err}
			}
			return next.Handle(ctx, req)
		})
	}
}
