package attachment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-assess/internal/blob"
	"github.com/ahrav/go-assess/internal/domain"
	"github.com/ahrav/go-assess/internal/storage"
	"github.com/ahrav/go-assess/internal/storage/memory"
)

type failingMeta struct{ storage.AttachmentStore }

func (failingMeta) PutAttachment(context.Context, domain.Attachment) (string, error) {
	return "", domain.WrapStorage("put attachment", errors.New("disk full"))
}

type brokenBlobs struct{ blob.Store }

func (brokenBlobs) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("read: input/output error")
}

func TestPut(t *testing.T) {
	q := domain.DefaultQuestionnaire()
	q.MaxAttachmentBytes = 8

	tests := []struct {
		name    string
		slot    int
		upload  Upload
		wantErr error
	}{
		{"first slot", 0, Upload{Filename: "a.txt", Content: []byte("hello")}, nil},
		{"last slot", 2, Upload{Filename: "dir/c.pdf", ContentType: "application/pdf", Content: []byte("%PDF")}, nil},
		{"slot too high", 3, Upload{Content: []byte("x")}, domain.ErrValidation},
		{"negative slot", -1, Upload{Content: []byte("x")}, domain.ErrValidation},
		{"too large", 0, Upload{Content: []byte("123456789")}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs := blob.NewMemoryStore()
			svc := New(q, memory.New(), blobs, nil)

			a, err := svc.Put(context.Background(), "eval-1", tt.slot, tt.upload)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, blobs.Len())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.slot, a.SlotIndex)
			assert.Equal(t, domain.DefaultAttachmentKind, a.Kind)
			assert.NotEmpty(t, a.ID)
			assert.NotContains(t, a.Filename, "/")
			assert.NotEmpty(t, a.ContentType)
			assert.Equal(t, int64(len(tt.upload.Content)), a.Size)
		})
	}
}

func TestPutReplacesSlot(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemoryStore()
	svc := New(domain.DefaultQuestionnaire(), memory.New(), blobs, nil)

	first, err := svc.Put(ctx, "eval-1", 1, Upload{Filename: "v1.txt", Content: []byte("one")})
	require.NoError(t, err)
	second, err := svc.Put(ctx, "eval-1", 1, Upload{Filename: "v2.txt", Content: []byte("two")})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, blobs.Len())

	payloads, err := svc.Payloads(ctx, "eval-1")
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, "v2.txt", payloads[0].Filename)
	assert.Equal(t, []byte("two"), payloads[0].Content)
}

func TestPutOrphansBlobOnMetadataFailure(t *testing.T) {
	blobs := blob.NewMemoryStore()
	svc := New(domain.DefaultQuestionnaire(), failingMeta{}, blobs, nil)

	_, err := svc.Put(context.Background(), "eval-1", 0, Upload{Content: []byte("data")})
	require.ErrorIs(t, err, domain.ErrTransientStorage)
	assert.Equal(t, 1, blobs.Len())
}

func TestPayloadsOrderedBySlot(t *testing.T) {
	ctx := context.Background()
	svc := New(domain.DefaultQuestionnaire(), memory.New(), blob.NewMemoryStore(), nil)
	for _, slot := range []int{2, 0, 1} {
		_, err := svc.Put(ctx, "eval-1", slot, Upload{Content: []byte{byte('a' + slot)}})
		require.NoError(t, err)
	}

	payloads, err := svc.Payloads(ctx, "eval-1")
	require.NoError(t, err)
	require.Len(t, payloads, 3)
	for i, p := range payloads {
		assert.Equal(t, i, p.SlotIndex)
		assert.Equal(t, []byte{byte('a' + i)}, p.Content)
	}

	empty, err := svc.Payloads(ctx, "eval-2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPayloadsSkipsMissingContent(t *testing.T) {
	ctx := context.Background()
	meta := memory.New()
	q := domain.DefaultQuestionnaire()

	before := New(q, meta, blob.NewMemoryStore(), nil)
	_, err := before.Put(ctx, "eval-1", 0, Upload{Filename: "lost.txt", Content: []byte("gone")})
	require.NoError(t, err)

	// Metadata survives while the content store starts empty, as after a restart.
	after := New(q, meta, blob.NewMemoryStore(), nil)
	_, err = after.Put(ctx, "eval-1", 1, Upload{Filename: "kept.txt", Content: []byte("here")})
	require.NoError(t, err)

	payloads, err := after.Payloads(ctx, "eval-1")
	require.NoError(t, err)
	require.Len(t, payloads, 1)
	assert.Equal(t, 1, payloads[0].SlotIndex)
	assert.Equal(t, []byte("here"), payloads[0].Content)

	list, err := after.List(ctx, "eval-1")
	require.NoError(t, err)
	assert.Len(t, list, 2, "metadata is left in place")
}

func TestPayloadsFailsOnBlobReadError(t *testing.T) {
	ctx := context.Background()
	meta := memory.New()
	_, err := New(domain.DefaultQuestionnaire(), meta, blob.NewMemoryStore(), nil).
		Put(ctx, "eval-1", 0, Upload{Content: []byte("x")})
	require.NoError(t, err)

	svc := New(domain.DefaultQuestionnaire(), meta, brokenBlobs{}, nil)
	_, err = svc.Payloads(ctx, "eval-1")
	assert.ErrorIs(t, err, domain.ErrTransientStorage)
}
