package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend stores the snapshot in a local JSON file
type FileBackend struct {
	path string
}

// NewFileBackend creates a file backend for path
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Read implements Backend
func (f *FileBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrUnavailable, f.path, err)
	}
	return data, nil
}

// Write implements Backend. The payload goes to a temporary file in the same
// directory which is then renamed over the target, so readers see either the
// old or the new snapshot.
func (f *FileBackend) Write(ctx context.Context, data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create %s: %v", ErrUnavailable, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: failed to write temp file: %v", ErrUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: failed to sync temp file: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close temp file: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("%w: failed to replace %s: %v", ErrUnavailable, f.path, err)
	}
	return nil
}

// Location implements Backend
func (f *FileBackend) Location() string {
	return "file:" + f.path
}
