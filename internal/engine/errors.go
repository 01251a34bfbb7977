package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ahrav/go-assess/internal/domain"
)

// ErrorType categorizes scoring engine failures for retry and dispatch decisions.
type ErrorType string

const (
	// ErrorTypeTimeout indicates the call exceeded its deadline (retryable).
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeNetwork indicates a connection failure (retryable).
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeUnavailable indicates a 5xx or 408 from the engine (retryable).
	ErrorTypeUnavailable ErrorType = "unavailable"

	// ErrorTypeRateLimit indicates a 429 from the engine or the local limiter (retryable).
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeCircuitOpen indicates the local circuit breaker refused the call.
	ErrorTypeCircuitOpen ErrorType = "circuit_open"

	// ErrorTypeRejected indicates a 4xx: the engine will never accept this payload.
	ErrorTypeRejected ErrorType = "rejected"

	// ErrorTypeInvalidResponse indicates a success status with an unusable body.
	ErrorTypeInvalidResponse ErrorType = "invalid_response"

	// ErrorTypeAccepted indicates the engine queued the work and will call back.
	ErrorTypeAccepted ErrorType = "accepted"
)

// ErrAccepted is matched by errors.Is when the engine answered 202 Accepted.
var ErrAccepted = errors.New("scoring accepted for asynchronous processing")

// Error is a classified scoring engine failure.
type Error struct {
	Type       ErrorType     `json:"type"`
	StatusCode int           `json:"status_code,omitempty"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Cause      error         `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("scoring engine %s (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("scoring engine %s: %s", e.Type, e.Message)
}

// Is maps the error onto the domain taxonomy.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAccepted:
		return e.Type == ErrorTypeAccepted
	case domain.ErrEngineRejected:
		return e.Type == ErrorTypeRejected || e.Type == ErrorTypeInvalidResponse
	case domain.ErrEngineUnavailable:
		return e.IsRetryable() || e.Type == ErrorTypeCircuitOpen
	}
	return false
}

// Unwrap returns the underlying transport error, if any.
func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable reports whether repeating the same call may succeed.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeNetwork, ErrorTypeUnavailable, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// GetRetryAfter returns the server supplied delay, if any.
func (e *Error) GetRetryAfter() time.Duration { return e.RetryAfter }

// classifyTransportError turns an http.Client error into an *Error.
func classifyTransportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Type: ErrorTypeTimeout, Message: "deadline exceeded", Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Type: ErrorTypeTimeout, Message: netErr.Error(), Cause: err}
	}
	return &Error{Type: ErrorTypeNetwork, Message: err.Error(), Cause: err}
}

// Retryable reports whether err is a retryable engine error.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	return false
}

// Classify maps any error returned by Client.Score onto the domain taxonomy.
// Unknown errors count as unavailable: the engine may still produce a result.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAccepted):
		return ErrAccepted
	case errors.Is(err, domain.ErrEngineRejected):
		return domain.ErrEngineRejected
	default:
		return domain.ErrEngineUnavailable
	}
}
