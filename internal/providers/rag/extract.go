package rag

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/sandevgo/kaidesk/pkg/conv"
)

type extractor func(data []byte) (string, error)

var extractors = map[string]extractor{
	".txt":      extractPlain,
	".csv":      extractCSV,
	".md":       extractMarkdown,
	".markdown": extractMarkdown,
	".html":     extractHTML,
	".htm":      extractHTML,
}

// Supported reports whether filename has an extension Extract understands.
func Supported(filename string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// SupportedExtensions lists accepted extensions.
func SupportedExtensions() []string {
	return []string{".txt", ".csv", ".md", ".markdown", ".html", ".htm"}
}

// Extract returns the plain text of a document, picked by extension.
func Extract(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fn, ok := extractors[ext]
	if !ok {
		return "", fmt.Errorf("%w: unsupported file type %q", core.ErrIngestion, ext)
	}

	text, err := fn(data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", core.ErrIngestion, filename, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s has no text", core.ErrIngestion, filename)
	}
	return text, nil
}

func extractPlain(data []byte) (string, error) {
	return string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), nil
}

// extractCSV joins each row with commas, one row per line.
func extractCSV(data []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, strings.Join(row, ","))
	}
	return strings.Join(lines, "\n"), nil
}

func extractMarkdown(data []byte) (string, error) {
	return conv.MarkdownToText(data)
}

func extractHTML(data []byte) (string, error) {
	return conv.HTMLToText(bytes.NewReader(data))
}
