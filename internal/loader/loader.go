// Package loader reads source documents from disk. Text extraction is
// pluggable: PDF (or any other format) extraction plugs in as an Extractor,
// while the pipeline only ever sees raw bytes plus extracted text.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"paperqa/internal/domain"
)

// Extractor turns raw document bytes into plain text.
type Extractor func(data []byte) (string, error)

// FileLoader loads a document from a file path.
type FileLoader struct {
	extract Extractor
}

// NewFileLoader creates a loader with the given extractor. A nil extractor
// treats the file content as already-extracted UTF-8 text.
func NewFileLoader(extract Extractor) *FileLoader {
	if extract == nil {
		extract = plainText
	}
	return &FileLoader{extract: extract}
}

// Load reads the file once and extracts its text. The returned document
// carries the original bytes so fingerprinting covers the exact content on
// disk.
func (l *FileLoader) Load(path string) (*domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}
	text, err := l.extract(data)
	if err != nil {
		return nil, fmt.Errorf("extract text from %s: %w", path, err)
	}
	return &domain.Document{
		Name: filepath.Base(path),
		Path: path,
		Data: data,
		Text: text,
	}, nil
}

func plainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: document is not valid UTF-8 text; supply an extractor for binary formats", domain.ErrInvalidInput)
	}
	return string(data), nil
}
