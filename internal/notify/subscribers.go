package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/pkg/events"
)

// LogSubscriber writes one structured log line per event.
type LogSubscriber struct {
	logger *slog.Logger
}

// NewLogSubscriber creates a LogSubscriber.
func NewLogSubscriber(logger *slog.Logger) *LogSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSubscriber{logger: logger.With("component", "event_log")}
}

// Handle implements Subscriber.
func (l *LogSubscriber) Handle(ctx context.Context, event domain.NotificationEvent) error {
	attrs := []any{"event", event.Tag(), "subject_id", event.SubjectID()}
	switch e := event.(type) {
	case domain.EvaluationCompleted:
		attrs = append(attrs, "owner_id", e.OwnerID, "answered", e.AnsweredCount)
	case domain.ResultsGenerated:
		attrs = append(attrs, "owner_id", e.OwnerID, "score", e.Score, "artifact_ref", e.ArtifactRef)
	}
	l.logger.InfoContext(ctx, "lifecycle event", attrs...)
	return nil
}

// Envelope wraps event for an events.EventSink.
func Envelope(event domain.NotificationEvent, source string, now time.Time) (events.Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return events.Envelope{}, fmt.Errorf("marshal %s payload: %w", event.Tag(), err)
	}
	return events.Envelope{
		ID:             uuid.NewString(),
		Type:           string(event.Tag()),
		Source:         source,
		Version:        "1.0.0",
		Timestamp:      now.UTC(),
		IdempotencyKey: domain.EventIdempotencyKey(event),
		SubjectID:      event.SubjectID(),
		Payload:        payload,
	}, nil
}

// SinkSubscriber forwards events to a durable sink with a short bounded retry.
type SinkSubscriber struct {
	sink        events.EventSink
	source      string
	maxAttempts int
	retryDelay  time.Duration
	now         func() time.Time
}

// SinkOption customizes a SinkSubscriber.
type SinkOption func(*SinkSubscriber)

// WithRetry sets the attempt count and the delay between attempts.
func WithRetry(maxAttempts int, delay time.Duration) SinkOption {
	return func(s *SinkSubscriber) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		s.retryDelay = delay
	}
}

// NewSinkSubscriber creates a subscriber appending envelopes to sink.
func NewSinkSubscriber(sink events.EventSink, source string, opts ...SinkOption) *SinkSubscriber {
	s := &SinkSubscriber{
		sink:        sink,
		source:      source,
		maxAttempts: 2,
		retryDelay:  200 * time.Millisecond,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle implements Subscriber.
func (s *SinkSubscriber) Handle(ctx context.Context, event domain.NotificationEvent) error {
	if s.sink == nil {
		return nil
	}
	env, err := Envelope(event, s.source, s.now())
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := range s.maxAttempts {
		if attempt > 0 {
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return fmt.Errorf("event emission cancelled: %w", ctx.Err())
			}
		}
		if lastErr = s.sink.Append(ctx, env); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("append %s after %d attempts: %w", env.Type, s.maxAttempts, lastErr)
}
