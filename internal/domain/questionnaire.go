package domain

// Questionnaire defaults match the production questionnaire.
const (
	DefaultQuestionCount      = 50
	DefaultMaxAttachments     = 3
	DefaultAttachmentKind     = "supporting_document"
	DefaultMaxAttachmentBytes = 10 << 20
)

// Questionnaire is the schema contract shared by the stores and services.
// It is loaded once at process start and passed explicitly to every component
// that needs it; nothing probes the schema at runtime.
type Questionnaire struct {
	// QuestionCount is N, the completion threshold and the upper bound of
	// 1-based question indexes.
	QuestionCount int `json:"question_count" yaml:"question_count" validate:"min=1"`

	// MaxAttachments is M; attachment slots are numbered [0, M).
	MaxAttachments int `json:"max_attachments" yaml:"max_attachments" validate:"min=0"`

	// AttachmentKind is the fixed document type stamped on every attachment.
	AttachmentKind string `json:"attachment_kind" yaml:"attachment_kind" validate:"required"`

	// MaxAttachmentBytes bounds a single attachment's content.
	MaxAttachmentBytes int64 `json:"max_attachment_bytes" yaml:"max_attachment_bytes" validate:"min=1"`
}

// DefaultQuestionnaire returns the standard 50 question, 3 attachment contract.
func DefaultQuestionnaire() Questionnaire {
	return Questionnaire{
		QuestionCount:      DefaultQuestionCount,
		MaxAttachments:     DefaultMaxAttachments,
		AttachmentKind:     DefaultAttachmentKind,
		MaxAttachmentBytes: DefaultMaxAttachmentBytes,
	}
}

// Validate checks the contract itself.
func (q Questionnaire) Validate() error { return validateStruct(q) }

// IsComplete reports whether answered reaches the completion threshold.
func (q Questionnaire) IsComplete(answered int) bool { return answered >= q.QuestionCount }

// CheckQuestionIndex validates a 1-based question index against [1, N].
func (q Questionnaire) CheckQuestionIndex(index int) error {
	if index < 1 || index > q.QuestionCount {
		return NewValidationError("question_index", "must be in [1, %d], got %d", q.QuestionCount, index)
	}
	return nil
}

// QuestionFromWire converts a 0-based wire index in [0, N) to the 1-based
// internal question index.
func (q Questionnaire) QuestionFromWire(wire int) (int, error) {
	if wire < 0 || wire >= q.QuestionCount {
		return 0, NewValidationError("question_index", "must be in [0, %d), got %d", q.QuestionCount, wire)
	}
	return wire + 1, nil
}

// CheckSlot validates an attachment slot against [0, M).
func (q Questionnaire) CheckSlot(slot int) error {
	if slot < 0 || slot >= q.MaxAttachments {
		return NewValidationError("slot_index", "must be in [0, %d), got %d", q.MaxAttachments, slot)
	}
	return nil
}
