// Package events provides the generic event infrastructure used to hand
// lifecycle notifications to downstream consumers. It defines the Envelope
// wrapper and the EventSink interface with no-op, in-memory, and Redis
// stream implementations.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Envelope wraps a domain event with consistent metadata for routing and
// deduplication by consumers such as mailers or dashboards.
type Envelope struct {
	// ID uniquely identifies this emission.
	ID string `json:"id"`

	// Type identifies the event for routing, e.g. "results_generated".
	Type string `json:"type"`

	// Source identifies the component that emitted this event.
	Source string `json:"source"`

	// Version enables schema evolution. Starts at "1.0.0".
	Version string `json:"version"`

	// Timestamp records when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey is deterministic for one logical event so that
	// duplicates can be dropped.
	IdempotencyKey string `json:"idempotency_key"`

	// SubjectID is the evaluation or user the event is about.
	SubjectID string `json:"subject_id"`

	// Payload contains the event data as JSON. Schema varies by Type and Version.
	Payload json.RawMessage `json:"payload"`
}

// EventSink defines the interface for emitting events to downstream consumers.
type EventSink interface {
	// Append adds an event to the sink with best-effort delivery.
	// Implementations should treat a repeated IdempotencyKey as a no-op.
	// Callers must not fail their primary operation when Append fails.
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink is a null implementation of EventSink for when events are disabled.
type NoOpEventSink struct{}

// Append implements EventSink.Append with no-op behavior.
func (n *NoOpEventSink) Append(_ context.Context, _ Envelope) error {
	return nil
}

// NewNoOpEventSink creates a new no-op event sink.
func NewNoOpEventSink() EventSink {
	return &NoOpEventSink{}
}

// MemorySink records envelopes in order and drops repeated idempotency keys.
type MemorySink struct {
	mu        sync.Mutex
	envelopes []Envelope
	seen      map[string]struct{}
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{seen: make(map[string]struct{})}
}

// Append implements EventSink.
func (m *MemorySink) Append(_ context.Context, env Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if env.IdempotencyKey != "" {
		if _, dup := m.seen[env.IdempotencyKey]; dup {
			return nil
		}
		m.seen[env.IdempotencyKey] = struct{}{}
	}
	m.envelopes = append(m.envelopes, env)
	return nil
}

// Envelopes returns a copy of everything appended so far.
func (m *MemorySink) Envelopes() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Envelope(nil), m.envelopes...)
}
