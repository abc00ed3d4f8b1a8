package fsutil

// FileStore provides an interface for file system operations
type FileStore interface {
	// ReadFile reads a file and returns its contents
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic writes contents to a temporary file in the target
	// directory and renames it into place, so a concurrent reader never
	// observes a partial write
	WriteFileAtomic(path string, data []byte) error

	// MakeDirectory creates a new directory and all necessary parents
	MakeDirectory(path string) error

	// Remove deletes a single file
	Remove(path string) error

	// RemoveAll removes a path and any children it contains
	RemoveAll(path string) error

	// ListFiles returns the paths of regular files directly under dir that
	// carry the given extension
	ListFiles(dir, ext string) ([]string, error)
}
