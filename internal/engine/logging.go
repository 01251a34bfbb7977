package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// NewLoggingMiddleware logs one line per engine call with its outcome and latency.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine_client")

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			start := time.Now()
			resp, err := next.Handle(ctx, req)
			attrs := []any{
				"evaluation_id", req.EvaluationID,
				"idempotency_key", req.IdempotencyKey,
				"duration", time.Since(start),
			}
			if err == nil {
				logger.InfoContext(ctx, "engine call scored",
					append(attrs, "score", resp.Result.Score, "attempts", resp.Attempts)...)
				return resp, nil
			}

			var e *Error
			if errors.As(err, &e) {
				attrs = append(attrs, "error_type", string(e.Type), "status_code", e.StatusCode)
			}
			if errors.Is(err, ErrAccepted) {
				logger.InfoContext(ctx, "engine accepted evaluation for async scoring", attrs...)
			} else {
				logger.WarnContext(ctx, "engine call failed", append(attrs, "error", err)...)
			}
			return nil, err
		})
	}
}
