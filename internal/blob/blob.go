// Package blob stores attachment content outside the metadata store.
// References returned by Put are opaque keys understood only by the store
// that produced them.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Blob store errors.
var (
	ErrKeyEmpty   = errors.New("blob key cannot be empty")
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("blob key escapes the store root")
)

// Store provides content storage and retrieval for attachments.
type Store interface {
	// Put stores content under key and returns the storage reference.
	Put(ctx context.Context, key string, content []byte) (string, error)

	// Get retrieves stored content by reference.
	Get(ctx context.Context, ref string) ([]byte, error)

	// Delete removes content. Deleting a missing reference is not an error.
	Delete(ctx context.Context, ref string) error
}

// MemoryStore keeps content in a map. Suitable for tests and development.
type MemoryStore struct {
	mu      sync.RWMutex
	storage map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{storage: make(map[string][]byte)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key string, content []byte) (string, error) {
	if key == "" {
		return "", ErrKeyEmpty
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage[key] = append([]byte(nil), content...)
	return key, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, ErrKeyEmpty
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.storage[ref]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	return append([]byte(nil), content...), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, ref string) error {
	if ref == "" {
		return ErrKeyEmpty
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.storage, ref)
	return nil
}

// Len reports the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.storage)
}

// FileStore writes blobs below a root directory.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" {
		return "", ErrKeyEmpty
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}
	return filepath.Join(s.root, clean), nil
}

// Put implements Store. Content is written to a temp file and renamed so a
// reader never observes a partial blob.
func (s *FileStore) Put(ctx context.Context, key string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".blob-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(key))), nil
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return content, nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
