package callback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrEmptySecret is returned when no signing secret is available.
var ErrEmptySecret = errors.New("callback secret is empty")

// SecretSource supplies the current shared signing secret.
type SecretSource interface {
	Secret() []byte
}

// StaticSecret is a fixed secret from configuration.
type StaticSecret []byte

// Secret implements SecretSource.
func (s StaticSecret) Secret() []byte { return s }

// FileSecret reads the secret from a file and reloads it when the file changes,
// so the secret can be rotated without a restart. A reload that yields an
// empty or unreadable file keeps the previous secret.
type FileSecret struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu     sync.RWMutex
	secret []byte
}

// NewFileSecret loads path and starts watching it until ctx is done or Close
// is called.
func NewFileSecret(ctx context.Context, path string, logger *slog.Logger) (*FileSecret, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fs := &FileSecret{path: filepath.Clean(path), logger: logger.With("component", "callback_secret")}
	if err := fs.reload(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create secret watcher: %w", err)
	}
	// Watch the directory: editors and secret mounts replace files by rename.
	if err := w.Add(filepath.Dir(fs.path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch secret dir: %w", err)
	}
	fs.watcher = w
	go fs.watch(ctx)
	return fs, nil
}

// Secret implements SecretSource.
func (f *FileSecret) Secret() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.secret
}

// Close stops watching the file.
func (f *FileSecret) Close() error { return f.watcher.Close() }

func (f *FileSecret) reload() error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read callback secret: %w", err)
	}
	secret := bytes.TrimSpace(raw)
	if len(secret) == 0 {
		return ErrEmptySecret
	}
	f.mu.Lock()
	f.secret = secret
	f.mu.Unlock()
	return nil
}

func (f *FileSecret) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = f.watcher.Close()
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path || (!ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create)) {
				continue
			}
			if err := f.reload(); err != nil {
				f.logger.Warn("keeping previous callback secret", "error", err)
				continue
			}
			f.logger.Info("callback secret reloaded")
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("secret watcher error", "error", err)
		}
	}
}
