// Package extraction pulls the printed text out of receipt PDFs.
package extraction

import (
	"errors"
	"fmt"
	"strings"
)

// Extractor kinds accepted by New
const (
	KindFitz     = "fitz"
	KindPlainPDF = "pdf"
)

// ErrNoPages is returned for a PDF without any readable page
var ErrNoPages = errors.New("PDF has no pages")

// Extractor defines the interface for turning a PDF into text
type Extractor interface {
	// ExtractText returns the text of every page, pages separated by a newline
	ExtractText(data []byte) (string, error)
	// Close releases resources held by the extractor
	Close() error
}

// New returns the extractor for kind
func New(kind string) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindFitz, "":
		return NewFitz(), nil
	case KindPlainPDF:
		return NewPlainPDF(), nil
	default:
		return nil, fmt.Errorf("unknown extractor %q (expected %q or %q)", kind, KindFitz, KindPlainPDF)
	}
}

// recovered converts a panic from a PDF library into an error
func recovered(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("PDF library crashed: %v", r)
	}
}
