package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists one JSON document per student under a state directory.
// It is the local, authoritative half of the dual-write scheme.
type FileStore struct {
	dir string
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir, creating the directory if
// needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("baseline: create state dir %q: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Load implements [Store]. A missing file means no calibration has been done
// and returns (nil, nil). An unreadable or corrupt file is treated the same
// way, with a warning log, because scoring degrades gracefully without a
// baseline.
func (s *FileStore) Load(_ context.Context, userID string) (*Baseline, error) {
	data, err := os.ReadFile(s.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		slog.Warn("baseline unreadable, treating as uncalibrated", "user_id", userID, "err", err)
		return nil, nil
	}

	var b Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		slog.Warn("baseline corrupt, treating as uncalibrated", "user_id", userID, "err", err)
		return nil, nil
	}
	return &b, nil
}

// Save implements [Store]. The write is atomic: a temp file in the same
// directory is renamed over the target so a crash never leaves a torn record.
func (s *FileStore) Save(_ context.Context, userID string, b *Baseline) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("baseline: marshal: %w", err)
	}

	path := s.path(userID)
	tmp, err := os.CreateTemp(s.dir, ".baseline-*")
	if err != nil {
		return fmt.Errorf("baseline: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("baseline: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("baseline: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("baseline: rename: %w", err)
	}
	return nil
}

// Clear implements [Store]. Clearing an absent baseline is not an error.
func (s *FileStore) Clear(_ context.Context, userID string) error {
	err := os.Remove(s.path(userID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("baseline: clear: %w", err)
	}
	return nil
}

// path maps userID to a file name, replacing separators so an ID can never
// escape the state directory.
func (s *FileStore) path(userID string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, userID)
	return filepath.Join(s.dir, safe+".json")
}
