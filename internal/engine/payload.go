package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ahrav/go-assess/internal/domain"
)

// wireAttachment is an attachment inlined into the scoring payload.
// encoding/json emits Content as base64.
type wireAttachment struct {
	Slot        int    `json:"slot"`
	Kind        string `json:"kind"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Content     []byte `json:"content"`
}

type wireRespondent struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	Organization string `json:"organization,omitempty"`
	Contact      string `json:"contact,omitempty"`
}

// wirePayload is the body POSTed to the engine. Answers are keyed by the
// 1-based question number as a string.
type wirePayload struct {
	EvaluationID  string            `json:"evaluation_id"`
	Answers       map[string]string `json:"answers"`
	Respondent    wireRespondent    `json:"respondent"`
	Attachments   []wireAttachment  `json:"attachments"`
	Customization string            `json:"customization,omitempty"`
	CallbackURL   string            `json:"callback_url,omitempty"`
}

// EncodePayload renders req as the engine's JSON body. Map keys are sorted by
// encoding/json, so equal requests encode to equal bytes.
func EncodePayload(req domain.ScoringRequest) ([]byte, error) {
	p := wirePayload{
		EvaluationID:  req.EvaluationID,
		Answers:       make(map[string]string, len(req.Answers)),
		Respondent:    wireRespondent(req.Respondent),
		Attachments:   make([]wireAttachment, 0, len(req.Attachments)),
		Customization: req.Customization,
		CallbackURL:   req.CallbackURL,
	}
	for idx, text := range req.Answers {
		p.Answers[strconv.Itoa(idx)] = text
	}
	for _, a := range req.Attachments {
		p.Attachments = append(p.Attachments, wireAttachment{
			Slot:        a.SlotIndex,
			Kind:        a.Kind,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     a.Content,
		})
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal scoring payload: %w", err)
	}
	return body, nil
}

// IdempotencyKey derives the Idempotency-Key header from the encoded body so
// retries of the same payload are recognizable by the engine.
func IdempotencyKey(evaluationID string, body []byte) string {
	hasher := sha256.New()
	hasher.Write([]byte(evaluationID))
	hasher.Write([]byte{':'})
	hasher.Write(body)
	return hex.EncodeToString(hasher.Sum(nil))
}
