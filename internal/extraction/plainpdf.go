package extraction

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Horizontal gaps are measured in multiples of the font size. Anything wider
// than columnGap separates receipt columns.
const (
	wordGap   = 0.15
	columnGap = 0.6
)

// PlainPDF extracts text without cgo. Rows are rebuilt from positioned text
// runs and wide gaps are kept as runs of spaces.
type PlainPDF struct{}

// NewPlainPDF creates a pure Go extractor
func NewPlainPDF() *PlainPDF {
	return &PlainPDF{}
}

// ExtractText implements Extractor
func (p *PlainPDF) ExtractText(data []byte) (text string, err error) {
	defer recovered(&err)

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	if r.NumPage() == 0 {
		return "", ErrNoPages
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("reading rows of page %d: %w", i, err)
		}

		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, joinRow(row.Content))
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}

	return strings.Join(pages, "\n"), nil
}

// Close implements Extractor
func (p *PlainPDF) Close() error {
	return nil
}

func joinRow(texts pdf.TextHorizontal) string {
	var b strings.Builder
	for i, t := range texts {
		if i > 0 {
			b.WriteString(separator(texts[i-1], t))
		}
		b.WriteString(t.S)
	}
	return strings.TrimRight(b.String(), " ")
}

// separator picks the spacing between two runs on one row from the gap
// between them
func separator(prev, cur pdf.Text) string {
	size := math.Max(cur.FontSize, 1)
	gap := (cur.X - (prev.X + prev.W)) / size

	switch {
	case gap >= columnGap:
		return "   "
	case gap >= wordGap:
		return " "
	default:
		return ""
	}
}
