// Package extract turns uploaded résumé files into plain text.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format is the closed set of file formats the extractor understands.
type Format string

const (
	FormatText Format = "txt"
	FormatPDF  Format = "pdf"
	FormatDOC  Format = "doc"
	FormatDOCX Format = "docx"
)

// ErrUnsupportedFormat is returned for extensions outside the supported set.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ExtractionError wraps a failure of the underlying document library.
type ExtractionError struct {
	Format Format
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

type extractFunc func(data []byte) (string, error)

var extractors = map[Format]extractFunc{
	FormatText: extractText,
	FormatPDF:  extractPDF,
	FormatDOC:  extractWord,
	FormatDOCX: extractWord,
}

// Formats lists the supported formats in a stable order.
func Formats() []Format {
	return []Format{FormatText, FormatPDF, FormatDOC, FormatDOCX}
}

// ParseFormat maps a file extension to a Format. The match is case-insensitive
// and the leading dot is optional.
func ParseFormat(ext string) (Format, error) {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	f := Format(ext)
	if _, ok := extractors[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return f, nil
}

// FormatFromName derives the format from a file name suffix.
func FormatFromName(name string) (Format, error) {
	return ParseFormat(filepath.Ext(name))
}

// Extract returns the text content of data interpreted as the given format.
// Panics raised inside document libraries are reported as extraction errors.
func Extract(format Format, data []byte) (text string, err error) {
	fn, ok := extractors[format]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
	}

	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &ExtractionError{Format: format, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	text, err = fn(data)
	if err != nil {
		var extErr *ExtractionError
		if errors.As(err, &extErr) {
			return "", err
		}
		return "", &ExtractionError{Format: format, Err: err}
	}

	return text, nil
}

// ExtractFile reads path and extracts its text using the format implied by its suffix.
func ExtractFile(path string) (string, error) {
	format, err := FormatFromName(path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	return Extract(format, data)
}
