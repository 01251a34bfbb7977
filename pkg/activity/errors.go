package activity

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/ahrav/go-assess/internal/domain"
)

// Application error types reported to Temporal. Workflows match on these.
const (
	ErrorTypeValidation = "Validation"
	ErrorTypeNotFound   = "NotFound"
	ErrorTypeTransition = "InvalidTransition"
	ErrorTypeTransient  = "Transient"
	ErrorTypeInternal   = "Internal"
)

// NonRetryable wraps cause as a Temporal application error that is never retried.
func NonRetryable(errType string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, errType, cause)
}

// Retryable wraps cause as a Temporal application error subject to the
// activity retry policy.
func Retryable(errType string, cause error, msg string) error {
	return temporal.NewApplicationErrorWithCause(msg, errType, cause)
}

// Classify maps a domain error onto Temporal retry semantics. Programming
// and state errors are final; transient storage errors and anything unknown
// are retried.
func Classify(msg string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrValidation):
		return NonRetryable(ErrorTypeValidation, err, msg)
	case errors.Is(err, domain.ErrNotFound):
		return NonRetryable(ErrorTypeNotFound, err, msg)
	case errors.Is(err, domain.ErrInvalidTransition):
		return NonRetryable(ErrorTypeTransition, err, msg)
	case domain.IsRetryable(err):
		return Retryable(ErrorTypeTransient, err, msg)
	default:
		return Retryable(ErrorTypeInternal, err, msg)
	}
}
