package sessionfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"docchat/src/core/session"
	"docchat/src/fsutil"
	"docchat/src/infrastructure/log"
)

const recordExt = ".json"

// Store keeps one JSON file per session under a data directory. Writes go
// through a temp-file-then-rename so readers never see a partial record.
type Store struct {
	dir string
	fs  fsutil.FileStore
}

// NewStore creates the data directory if needed and returns a file-backed
// session.BlobStore.
func NewStore(dir string, files fsutil.FileStore) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("sessionfs: data directory is required")
	}
	if err := files.MakeDirectory(dir); err != nil {
		return nil, fmt.Errorf("sessionfs: create %s: %w", dir, err)
	}
	return &Store{dir: dir, fs: files}, nil
}

var _ session.BlobStore = (*Store)(nil)

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key != filepath.Base(key) {
		return "", fmt.Errorf("sessionfs: invalid session key %q", key)
	}
	return filepath.Join(s.dir, key+recordExt), nil
}

func (s *Store) Put(_ context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := s.fs.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("sessionfs: write %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := s.fs.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessionfs: read %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	err = s.fs.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sessionfs: delete %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) List(_ context.Context) ([][]byte, error) {
	paths, err := s.fs.ListFiles(s.dir, recordExt)
	if err != nil {
		return nil, fmt.Errorf("sessionfs: list %s: %w", s.dir, err)
	}

	records := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := s.fs.ReadFile(path)
		if err != nil {
			// A record deleted between listing and reading is not an error.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			log.Error(err, "skipping unreadable session file", "path", path)
			continue
		}
		records = append(records, data)
	}
	return records, nil
}

func (s *Store) Clear(_ context.Context) error {
	paths, err := s.fs.ListFiles(s.dir, recordExt)
	if err != nil {
		return fmt.Errorf("sessionfs: list %s: %w", s.dir, err)
	}
	for _, path := range paths {
		if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("sessionfs: remove %s: %w", path, err)
		}
	}
	return nil
}
