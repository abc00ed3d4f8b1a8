package fsutil

import (
	"os"
	"path/filepath"
)

// LocalFileStore implements FileStore using the local filesystem
type LocalFileStore struct {
	// No fields needed as we're using the standard library directly
}

// NewLocalFileStore creates a new LocalFileStore
func NewLocalFileStore() FileStore {
	return &LocalFileStore{}
}

func (fs *LocalFileStore) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (fs *LocalFileStore) WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (fs *LocalFileStore) MakeDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

func (fs *LocalFileStore) Remove(path string) error {
	return os.Remove(path)
}

func (fs *LocalFileStore) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (fs *LocalFileStore) ListFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ext != "" && filepath.Ext(entry.Name()) != ext {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}
