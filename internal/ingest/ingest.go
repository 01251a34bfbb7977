// Package ingest applies scoring results to the ledger. Results arrive either
// inline from the scoring gateway or later through the engine callback; both
// paths share Ingest, which is idempotent.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/notify"
)

// Ledger is the part of the evaluation ledger the ingestor needs.
type Ledger interface {
	MarkScored(ctx context.Context, result domain.ScoringResult) (*domain.Evaluation, bool, error)
}

// Ingestor is the result ingestor.
type Ingestor struct {
	ledger    Ledger
	publisher notify.Publisher
	logger    *slog.Logger
}

// New creates an Ingestor. publisher may be nil.
func New(ledger Ledger, publisher notify.Publisher, logger *slog.Logger) *Ingestor {
	if publisher == nil {
		publisher = notify.Nop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{ledger: ledger, publisher: publisher, logger: logger.With("component", "ingestor")}
}

// Ingest validates result and applies it to the ledger.
//
// Results for unknown evaluations, or for evaluations not in completed or
// scored, are logged and discarded with ErrResultRejected. Re-delivering an
// identical result changes nothing and does not publish a second
// ResultsGenerated. Storage failures are returned unwrapped so callers can retry.
func (i *Ingestor) Ingest(ctx context.Context, result domain.ScoringResult) (bool, error) {
	log := i.logger.With("evaluation_id", result.EvaluationID)

	if err := result.Validate(); err != nil {
		log.WarnContext(ctx, "discarding invalid scoring result", "error", err)
		return false, err
	}

	e, changed, err := i.ledger.MarkScored(ctx, result)
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidTransition):
		log.WarnContext(ctx, "discarding scoring result", "error", err)
		return false, fmt.Errorf("%w: %w", domain.ErrResultRejected, err)
	case err != nil:
		return false, err
	}

	if !changed {
		log.DebugContext(ctx, "duplicate scoring result ignored")
		return false, nil
	}

	i.publisher.Publish(ctx, domain.ResultsGenerated{
		EvaluationID: e.ID,
		OwnerID:      e.OwnerID,
		Score:        result.Score,
		ArtifactRef:  result.ArtifactRef,
	})
	return true, nil
}
