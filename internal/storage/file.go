package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"eventcal/internal/model"
)

// FileBackend keeps the collection in a single JSON document on disk.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend for path. The file is created on the first
// Replace; its parent directory is created eagerly.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("storage: file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return &FileBackend{path: path}, nil
}

func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Load(_ context.Context) ([]model.Event, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.Event{}, nil
		}
		return nil, err
	}

	events := make([]model.Event, 0)
	if len(data) == 0 {
		return events, nil
	}
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Replace writes events atomically:
//   - marshal to indented JSON
//   - write to a temp file in the same directory and fsync it
//   - rename over the target path (0600)
func (b *FileBackend) Replace(_ context.Context, events []model.Event) error {
	if events == nil {
		events = []model.Event{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, ".eventcal-events-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, b.path)
}

func (b *FileBackend) Close() error { return nil }
