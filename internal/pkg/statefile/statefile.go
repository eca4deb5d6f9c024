// Package statefile persists emulator state as JSON blobs on local disk.
//
// Persistence is strictly best-effort: a failed save or load must never
// interrupt the caller's primary operation. Failures are logged instead of
// returned so they stay observable without changing control flow.
package statefile

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Store reads and writes one JSON state file.
type Store struct {
	path   string
	logger *slog.Logger
}

// New returns a Store bound to path. A nil logger falls back to the
// default slog logger.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Save marshals v to the state file. Errors are logged and swallowed.
func (s *Store) Save(v any) {
	if s == nil || s.path == "" {
		return
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		s.logger.Warn("state save failed", slog.String("path", s.path), slog.Any("err", err))
		return
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.logger.Warn("state save failed", slog.String("path", s.path), slog.Any("err", err))
			return
		}
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		s.logger.Warn("state save failed", slog.String("path", s.path), slog.Any("err", err))
	}
}

// Load unmarshals the state file into v. It returns false when the file is
// missing, unreadable, or corrupt; callers then continue from defaults.
// Only corrupt or unreadable files are logged; a missing file is the normal
// first-run case.
func (s *Store) Load(v any) bool {
	if s == nil || s.path == "" {
		return false
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("state load failed", slog.String("path", s.path), slog.Any("err", err))
		}
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		s.logger.Warn("state load failed", slog.String("path", s.path), slog.Any("err", err))
		return false
	}
	return true
}
