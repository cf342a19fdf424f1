package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"pump-graduates/internal/domain"
)

// Snapshotter persists the full ordered graduate collection as a single
// named blob. Persistence is best-effort durability: the in-memory store
// remains authoritative when a Save fails.
type Snapshotter interface {
	// Save writes the full collection, newest first.
	Save(ctx context.Context, graduates []*domain.Graduate) error

	// Load reads the collection back. A missing snapshot returns an
	// empty slice, not an error.
	Load(ctx context.Context) ([]*domain.Graduate, error)
}

// FileSnapshotter stores the collection as a JSON file on disk.
type FileSnapshotter struct {
	path string
}

// NewFileSnapshotter creates a snapshotter writing to the given path.
func NewFileSnapshotter(path string) *FileSnapshotter {
	return &FileSnapshotter{path: path}
}

// Compile-time interface check.
var _ Snapshotter = (*FileSnapshotter)(nil)

// Save writes the collection atomically via a temp file rename.
func (s *FileSnapshotter) Save(_ context.Context, graduates []*domain.Graduate) error {
	data, err := json.Marshal(graduates)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".graduates-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot file. Returns an empty slice if it does not exist.
func (s *FileSnapshotter) Load(_ context.Context) ([]*domain.Graduate, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var graduates []*domain.Graduate
	if err := json.Unmarshal(data, &graduates); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return graduates, nil
}
