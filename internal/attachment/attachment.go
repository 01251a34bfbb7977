// Package attachment stores supporting documents for an evaluation. Content
// goes to a blob store and metadata to the attachment store, in that order.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-assess/internal/blob"
	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/storage"
)

// Upload is one attachment as received from the caller.
type Upload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Service writes and reads attachments.
type Service struct {
	q      domain.Questionnaire
	meta   storage.AttachmentStore
	blobs  blob.Store
	now    func() time.Time
	logger *slog.Logger
}

// New creates an attachment service.
func New(q domain.Questionnaire, meta storage.AttachmentStore, blobs blob.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		q:      q,
		meta:   meta,
		blobs:  blobs,
		now:    time.Now,
		logger: logger.With("component", "attachment"),
	}
}

// blobKey is stable per slot so a replacement overwrites the previous content.
func blobKey(evaluationID string, slot int) string {
	return path.Join(evaluationID, "slot-"+strconv.Itoa(slot))
}

// Put stores an upload in slot, replacing whatever the slot held. The blob is
// written before the metadata; if the metadata write fails the blob is left
// behind and logged.
func (s *Service) Put(ctx context.Context, evaluationID string, slot int, up Upload) (domain.Attachment, error) {
	if evaluationID == "" {
		return domain.Attachment{}, domain.NewValidationError("evaluation_id", "must not be empty")
	}
	if err := s.q.CheckSlot(slot); err != nil {
		return domain.Attachment{}, err
	}
	size := int64(len(up.Content))
	if size > s.q.MaxAttachmentBytes {
		return domain.Attachment{}, domain.NewValidationError("content",
			"exceeds %d bytes, got %d", s.q.MaxAttachmentBytes, size)
	}

	contentType := up.ContentType
	if contentType == "" && size > 0 {
		contentType = http.DetectContentType(up.Content)
	}

	key := blobKey(evaluationID, slot)
	ref, err := s.blobs.Put(ctx, key, up.Content)
	if err != nil {
		return domain.Attachment{}, domain.WrapStorage("put attachment blob", err)
	}

	a := domain.Attachment{
		ID:           uuid.NewString(),
		EvaluationID: evaluationID,
		SlotIndex:    slot,
		StorageRef:   ref,
		Kind:         s.q.AttachmentKind,
		Filename:     cleanFilename(up.Filename),
		ContentType:  contentType,
		Size:         size,
		CreatedAt:    s.now().UTC(),
	}
	if err := a.Validate(s.q); err != nil {
		return domain.Attachment{}, err
	}

	id, err := s.meta.PutAttachment(ctx, a)
	if err != nil {
		s.logger.WarnContext(ctx, "attachment metadata write failed; blob orphaned",
			"evaluation_id", evaluationID,
			"slot", slot,
			"storage_ref", ref,
			"error", err)
		return domain.Attachment{}, fmt.Errorf("put attachment metadata: %w", err)
	}
	a.ID = id
	return a, nil
}

// cleanFilename drops any directory components a client may have sent.
func cleanFilename(name string) string {
	if name == "" {
		return ""
	}
	return path.Base(strings.ReplaceAll(name, "\\", "/"))
}

// List returns attachment metadata ordered by slot.
func (s *Service) List(ctx context.Context, evaluationID string) ([]domain.Attachment, error) {
	return s.meta.ListAttachments(ctx, evaluationID)
}

// Payloads loads every attachment with its content for scoring. An attachment
// whose content is gone from the blob store is logged and left out so the
// answers still reach the engine.
func (s *Service) Payloads(ctx context.Context, evaluationID string) ([]domain.AttachmentPayload, error) {
	atts, err := s.meta.ListAttachments(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AttachmentPayload, 0, len(atts))
	for _, a := range atts {
		content, err := s.blobs.Get(ctx, a.StorageRef)
		if errors.Is(err, blob.ErrNotFound) {
			s.logger.WarnContext(ctx, "attachment content missing; sending without it",
				"evaluation_id", evaluationID,
				"slot", a.SlotIndex,
				"storage_ref", a.StorageRef)
			continue
		}
		if err != nil {
			return nil, domain.WrapStorage(fmt.Sprintf("load attachment %s", a.ID), err)
		}
		out = append(out, domain.AttachmentPayload{
			SlotIndex:   a.SlotIndex,
			Kind:        a.Kind,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     content,
		})
	}
	return out, nil
}
