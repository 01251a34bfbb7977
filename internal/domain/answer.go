package domain

import (
	"strings"
	"time"
)

// Answer is one respondent's text for one question. (EvaluationID, QuestionIndex)
// identifies it; writes replace the text and keep no history.
type Answer struct {
	EvaluationID  string    `json:"evaluation_id" validate:"required"`
	QuestionIndex int       `json:"question_index" validate:"min=1"`
	Text          string    `json:"text" validate:"required"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsBlankAnswer reports whether text is empty after trimming. Blank answers
// are skipped by callers rather than stored.
func IsBlankAnswer(text string) bool { return strings.TrimSpace(text) == "" }

// NewAnswer builds a validated answer for a 1-based question index.
func NewAnswer(q Questionnaire, evaluationID string, index int, text string, now time.Time) (Answer, error) {
	if evaluationID == "" {
		return Answer{}, NewValidationError("evaluation_id", "must not be empty")
	}
	if err := q.CheckQuestionIndex(index); err != nil {
		return Answer{}, err
	}
	if IsBlankAnswer(text) {
		return Answer{}, NewValidationError("text", "must not be empty")
	}
	return Answer{
		EvaluationID:  evaluationID,
		QuestionIndex: index,
		Text:          text,
		UpdatedAt:     now.UTC(),
	}, nil
}

// Validate checks field constraints.
func (a Answer) Validate() error {
	if IsBlankAnswer(a.Text) {
		return NewValidationError("text", "must not be empty")
	}
	return validateStruct(a)
}

// AnswerMap converts stored answers to a map keyed by 1-based question number.
func AnswerMap(answers []Answer) map[int]string {
	m := make(map[int]string, len(answers))
	for _, a := range answers {
		m[a.QuestionIndex] = a.Text
	}
	return m
}
