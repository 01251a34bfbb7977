package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// EventTag identifies a notification event kind. Subscribers register per tag.
type EventTag string

const (
	// EventUserRegistered is fired by the registration flow.
	EventUserRegistered EventTag = "user_registered"

	// EventEvaluationCompleted is fired when an evaluation enters completed.
	EventEvaluationCompleted EventTag = "evaluation_completed"

	// EventResultsGenerated is fired when a result is ingested and changed the ledger.
	EventResultsGenerated EventTag = "results_generated"
)

// AllEventTags returns every event kind.
func AllEventTags() []EventTag {
	return []EventTag{EventUserRegistered, EventEvaluationCompleted, EventResultsGenerated}
}

// NotificationEvent is the closed set of lifecycle events dispatched by the notifier.
// Events are never stored by the pipeline.
type NotificationEvent interface {
	// Tag returns the event kind used for subscriber lookup.
	Tag() EventTag
	// SubjectID returns the id the event is about (user or evaluation).
	SubjectID() string

	notificationEvent()
}

// UserRegistered carries the new user's id.
type UserRegistered struct {
	UserID string `json:"user_id"`
}

// EvaluationCompleted is published by the ledger on the in_progress → completed transition.
type EvaluationCompleted struct {
	EvaluationID  string `json:"evaluation_id"`
	OwnerID       string `json:"owner_id"`
	AnsweredCount int    `json:"answered_count"`
}

// ResultsGenerated is published by the result ingestor.
type ResultsGenerated struct {
	EvaluationID string  `json:"evaluation_id"`
	OwnerID      string  `json:"owner_id"`
	Score        float64 `json:"score"`
	ArtifactRef  string  `json:"artifact_ref"`
}

func (UserRegistered) Tag() EventTag      { return EventUserRegistered }
func (EvaluationCompleted) Tag() EventTag { return EventEvaluationCompleted }
func (ResultsGenerated) Tag() EventTag    { return EventResultsGenerated }

func (e UserRegistered) SubjectID() string      { return e.UserID }
func (e EvaluationCompleted) SubjectID() string { return e.EvaluationID }
func (e ResultsGenerated) SubjectID() string    { return e.EvaluationID }

func (UserRegistered) notificationEvent()      {}
func (EvaluationCompleted) notificationEvent() {}
func (ResultsGenerated) notificationEvent()    {}

// EventIdempotencyKey derives a deterministic key from the tag and payload so
// that a durable sink can drop duplicates of the same logical event.
func EventIdempotencyKey(e NotificationEvent) string {
	payload, err := json.Marshal(e)
	if err != nil {
		payload = []byte(e.SubjectID())
	}
	hasher := sha256.New()
	hasher.Write([]byte(e.Tag()))
	hasher.Write([]byte{':'})
	hasher.Write(payload)
	return hex.EncodeToString(hasher.Sum(nil))
}
