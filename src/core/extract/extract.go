package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat means no extractor claims the file's extension.
	ErrUnsupportedFormat = errors.New("extract: unsupported format")
	// ErrExtraction wraps failures of a format-specific extractor.
	ErrExtraction = errors.New("extract: extraction failed")
)

// Extractor turns the raw bytes of one file into plain text.
type Extractor interface {
	// Extensions lists the lower-case file extensions (with dot) this
	// extractor handles.
	Extensions() []string
	Extract(ctx context.Context, filename string, content []byte) (string, error)
}

// Registry dispatches extraction by file extension.
type Registry struct {
	byExt map[string]Extractor
}

func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	for _, e := range extractors {
		for _, ext := range e.Extensions() {
			r.byExt[strings.ToLower(ext)] = e
		}
	}
	return r
}

// Extract routes the file to the extractor registered for its extension.
func (r *Registry) Extract(ctx context.Context, filename string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	e, ok := r.byExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	text, err := e.Extract(ctx, filename, content)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrExtraction, filename, err)
	}
	return text, nil
}

// Supported reports whether any extractor handles the filename.
func (r *Registry) Supported(filename string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(filename))]
	return ok
}
