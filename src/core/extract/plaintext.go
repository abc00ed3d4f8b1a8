package extract

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// PlainText extracts .txt and .md files by validating and passing the bytes
// through unchanged.
type PlainText struct{}

func NewPlainText() *PlainText {
	return &PlainText{}
}

func (p *PlainText) Extensions() []string {
	return []string{".txt", ".md"}
}

func (p *PlainText) Extract(_ context.Context, filename string, content []byte) (string, error) {
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%s is not valid UTF-8 text", filename)
	}
	return string(content), nil
}
