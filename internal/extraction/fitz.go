package extraction

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Fitz extracts text with MuPDF, which keeps the column layout of the
// receipt intact
type Fitz struct{}

// NewFitz creates a MuPDF backed extractor
func NewFitz() *Fitz {
	return &Fitz{}
}

// ExtractText implements Extractor
func (f *Fitz) ExtractText(data []byte) (text string, err error) {
	defer recovered(&err)

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return "", ErrNoPages
	}

	pages := make([]string, 0, doc.NumPage())
	for n := 0; n < doc.NumPage(); n++ {
		pageText, err := doc.Text(n)
		if err != nil {
			return "", fmt.Errorf("reading text of page %d: %w", n+1, err)
		}
		pages = append(pages, pageText)
	}

	return strings.Join(pages, "\n"), nil
}

// Close implements Extractor
func (f *Fitz) Close() error {
	return nil
}
