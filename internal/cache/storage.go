package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Storage is a minimal blob store addressed by name. Implementations report
// a missing blob with an error matching fs.ErrNotExist.
type Storage interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
	WriteFile(ctx context.Context, name string, data []byte) error
	Remove(ctx context.Context, name string) error
	ModTime(ctx context.Context, name string) (time.Time, error)
}

// FileStorage stores blobs as files under a directory.
type FileStorage struct {
	dir string
}

// NewFileStorage returns a FileStorage rooted at dir. The directory is
// created on first write.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

// Dir returns the root directory.
func (s *FileStorage) Dir() string { return s.dir }

func (s *FileStorage) path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// ReadFile reads a blob.
func (s *FileStorage) ReadFile(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(s.path(name))
}

// WriteFile writes a blob to a temp file and renames it into place, so
// readers never observe a partial record. The rename refreshes the
// file's modification time.
func (s *FileStorage) WriteFile(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir %s: %w", s.dir, err)
	}

	target := s.path(name)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(name)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming to %s: %w", target, err)
	}
	return nil
}

// Remove deletes a blob. Removing a missing blob returns an error matching
// fs.ErrNotExist.
func (s *FileStorage) Remove(_ context.Context, name string) error {
	return os.Remove(s.path(name))
}

// ModTime returns the blob's last modification time.
func (s *FileStorage) ModTime(_ context.Context, name string) (time.Time, error) {
	info, err := os.Stat(s.path(name))
	if err != nil {
		return time.Time{}, err
	}
	if info.IsDir() {
		return time.Time{}, fmt.Errorf("%s is a directory: %w", s.path(name), fs.ErrInvalid)
	}
	return info.ModTime(), nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
