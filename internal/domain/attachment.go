package domain

import "time"

// Attachment is the metadata of a supporting document stored in one slot.
// The content itself lives in the blob store under StorageRef. A second write
// to the same slot replaces the first but keeps the attachment ID.
type Attachment struct {
	ID           string    `json:"id" validate:"required"`
	EvaluationID string    `json:"evaluation_id" validate:"required"`
	SlotIndex    int       `json:"slot_index" validate:"min=0"`
	StorageRef   string    `json:"storage_ref" validate:"required"`
	Kind         string    `json:"kind" validate:"required"`
	Filename     string    `json:"filename,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	Size         int64     `json:"size" validate:"min=0"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks field constraints against the questionnaire contract.
func (a Attachment) Validate(q Questionnaire) error {
	if err := q.CheckSlot(a.SlotIndex); err != nil {
		return err
	}
	return a.ValidateRecord()
}

// ValidateRecord checks the constraints every stored attachment satisfies,
// independent of a questionnaire.
func (a Attachment) ValidateRecord() error {
	return validateStruct(a)
}
