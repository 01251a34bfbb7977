// Package status answers "is my score ready?" for polling clients.
package status

import (
	"context"

	"github.com/ahrav/go-assess/internal/domain"
)

// Reader returns an evaluation if caller may read it.
type Reader interface {
	GetFor(ctx context.Context, id string, caller domain.Principal) (*domain.Evaluation, error)
}

// Service is a pure read over the ledger.
type Service struct {
	reader Reader
}

// New creates a status service.
func New(reader Reader) *Service { return &Service{reader: reader} }

// GetStatus returns the polling view of evaluationID. Respondents only see
// their own evaluations; anything else is reported as domain.ErrNotFound.
func (s *Service) GetStatus(ctx context.Context, evaluationID string, caller domain.Principal) (domain.Status, error) {
	if evaluationID == "" {
		return domain.Status{}, domain.NewValidationError("evaluation_id", "must not be empty")
	}
	e, err := s.reader.GetFor(ctx, evaluationID, caller)
	if err != nil {
		return domain.Status{}, err
	}
	return domain.StatusOf(e), nil
}
