package chunk

import (
	"errors"
	"regexp"
	"strings"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// ErrInvalidConfig is returned when the splitter size/overlap pair is unusable.
var ErrInvalidConfig = errors.New("chunk: invalid splitter configuration")

// Chunk is a contiguous segment of a document's normalized text, the unit of
// retrieval. Indices are contiguous from 0 within one document.
type Chunk struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// Splitter cuts normalized text into overlapping, sentence-boundary-aware
// windows. The zero value is not usable; construct via NewSplitter.
type Splitter struct {
	size    int
	overlap int
}

var whitespace = regexp.MustCompile(`\s+`)

// NewSplitter validates the window configuration. Overlap must be
// non-negative and strictly smaller than size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, ErrInvalidConfig
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Size returns the configured window length.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured overlap span.
func (s *Splitter) Overlap() int { return s.overlap }

// Split walks the whitespace-normalized text with a sliding window. Size
// and overlap count Unicode code points, so a window boundary never lands
// inside a multi-byte rune. A non-final window is shortened to end just
// after the last sentence terminator (". ", "? ", "! ") found at or past
// half the window, so chunks prefer to break between sentences. The next
// window starts overlap runes before the previous end. Empty input yields
// no chunks.
func (s *Splitter) Split(text string) []Chunk {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	runes := []rune(normalized)
	var chunks []Chunk
	start := 0
	length := len(runes)

	for start < length {
		end := start + s.size
		if end >= length {
			end = length
		} else {
			// Break after the terminator only when the boundary sits past
			// half the window; a too-early break would starve the chunk.
			if mark := lastSentenceEnd(runes[start:end]); mark*2 > s.size {
				end = start + mark + 1
			}
		}

		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			chunks = append(chunks, Chunk{Text: piece, Index: len(chunks)})
		}

		if end >= length {
			break
		}
		next := end - s.overlap
		if next <= start {
			// A sentence break close to the midpoint combined with a large
			// overlap could stall the walk; force forward progress.
			next = end
		}
		start = next
	}

	return chunks
}

// Normalize collapses whitespace runs to single spaces and trims the ends.
// Chunk offsets are only meaningful against this normalized form.
func Normalize(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// lastSentenceEnd returns the rune index of the last sentence-terminating
// punctuation followed by a space, or -1 when the window has none.
func lastSentenceEnd(window []rune) int {
	for i := len(window) - 2; i >= 0; i-- {
		switch window[i] {
		case '.', '?', '!':
			if window[i+1] == ' ' {
				return i
			}
		}
	}
	return -1
}
