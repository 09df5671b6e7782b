package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/traffic-notify/internal/domain"
)

// FileStore persists the collection as a versioned JSON snapshot on disk.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a file-backed store writing to path.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Load reads the snapshot. A missing file, unreadable JSON, or a schema
// version other than the current one all yield an empty collection.
func (s *FileStore) Load(_ context.Context) ([]domain.Notification, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("notification cache unreadable, starting empty", "path", s.path, "error", err)
		}
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("notification cache corrupt, starting empty", "path", s.path, "error", err)
		return nil, nil
	}
	if env.Version != SchemaVersion {
		s.logger.Warn("notification cache schema mismatch, discarding",
			"path", s.path, "found", env.Version, "want", SchemaVersion)
		return nil, nil
	}
	return env.Items, nil
}

// Save writes the snapshot atomically via a temp file and rename, so a
// crash mid-write never leaves a truncated cache behind.
func (s *FileStore) Save(_ context.Context, items []domain.Notification) error {
	env := envelope{
		Version: SchemaVersion,
		SavedAt: time.Now().UTC().Format(time.RFC3339),
		Items:   items,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode notification cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write notification cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close notification cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace notification cache: %w", err)
	}
	return nil
}
