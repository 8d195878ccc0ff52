package sensitivity

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
// Thread-safe for concurrent use; per-student write ordering is provided by
// the [Engine], not here.
type FileStore struct {
	dir string
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir, creating the directory if
// needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sensitivity: create state dir %q: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Load implements [Store]. A missing file yields defaults silently; an
// unreadable or unparsable file yields defaults with a warning log, because
// losing adaptation history must never fail an analysis session.
func (s *FileStore) Load(_ context.Context, userID string) (State, error) {
	data, err := os.ReadFile(s.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultState(), nil
	}
	if err != nil {
		slog.Warn("sensitivity state unreadable, using defaults", "user_id", userID, "err", err)
		return DefaultState(), nil
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		slog.Warn("sensitivity state corrupt, using defaults", "user_id", userID, "err", err)
		return DefaultState(), nil
	}
	st.normalize()
	return st, nil
}

// Save implements [Store]. The write is atomic: a temp file in the same
// directory is renamed over the target so a crash never leaves a torn record.
func (s *FileStore) Save(_ context.Context, userID string, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("sensitivity: marshal state: %w", err)
	}

	path := s.path(userID)
	tmp, err := os.CreateTemp(s.dir, ".state-*")
	if err != nil {
		return fmt.Errorf("sensitivity: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sensitivity: write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("sensitivity: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("sensitivity: rename state file: %w", err)
	}
	return nil
}

// Reset implements [Store].
func (s *FileStore) Reset(ctx context.Context, userID string) error {
	return s.Save(ctx, userID, DefaultState())
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
