package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileBackend keeps each collection in <dir>/<collection>.json.
type FileBackend struct {
	dir string
}

// NewFileBackend prepares the data directory.
func NewFileBackend(dir string) (*FileBackend, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	return &FileBackend{dir: dir}, nil
}

// Path returns the file backing a collection.
func (b *FileBackend) Path(name Collection) string {
	return filepath.Join(b.dir, string(name)+".json")
}

// Read returns the raw document or ErrDocumentNotFound.
func (b *FileBackend) Read(_ context.Context, name Collection) ([]byte, error) {
	data, err := os.ReadFile(b.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}

	return data, nil
}

// Write replaces the document through a temp file and rename so readers never
// see a partial write.
func (b *FileBackend) Write(_ context.Context, name Collection, data []byte) error {
	tmp, err := os.CreateTemp(b.dir, string(name)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, b.Path(name)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace document: %w", err)
	}

	return nil
}

// Ping verifies the data directory is still present.
func (b *FileBackend) Ping(context.Context) error {
	info, err := os.Stat(b.dir)
	if err != nil {
		return fmt.Errorf("stat data directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", b.dir)
	}
	return nil
}

// Close is a no-op for files.
func (b *FileBackend) Close(context.Context) error {
	return nil
}
