package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Files is the narrow file contract used by the registry cache and the
// lifecycle tracker.
type Files interface {
	// ReadText returns the file contents and true, or "" and false when the
	// file is missing or unreadable. It never fails.
	ReadText(path string) (string, bool)
	// WriteText replaces the whole file.
	WriteText(path, text string) error
	// DeleteFile removes the file. A missing file is not an error.
	DeleteFile(path string) error
}

// FileStore implements Files on top of an afero filesystem.
type FileStore struct {
	fs     afero.Fs
	logger *zap.Logger
}

// NewFileStore wraps fs. A nil logger discards read diagnostics.
func NewFileStore(fs afero.Fs, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{fs: fs, logger: logger}
}

// NewOSFileStore returns a FileStore over the real filesystem.
func NewOSFileStore(logger *zap.Logger) *FileStore {
	return NewFileStore(afero.NewOsFs(), logger)
}

// Fs exposes the underlying filesystem.
func (s *FileStore) Fs() afero.Fs {
	return s.fs
}

// ReadText implements Files.
func (s *FileStore) ReadText(path string) (string, bool) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("reading file", zap.String("path", path), zap.Error(err))
		}
		return "", false
	}
	return string(data), true
}

// WriteText writes to a sibling temp file and renames it over path, so a
// reader never observes a partially written file.
func (s *FileStore) WriteText(path, text string) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}

	tempPath := path + ".tmp"
	if err := afero.WriteFile(s.fs, tempPath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tempPath, err)
	}
	if err := s.fs.Rename(tempPath, path); err != nil {
		_ = s.fs.Remove(tempPath)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// DeleteFile implements Files.
func (s *FileStore) DeleteFile(path string) error {
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	return nil
}
