package parsing

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // store timezone must resolve on hosts without zoneinfo

	"github.com/shopspring/decimal"
)

// Error messages reported in ParseResult.Errors
const (
	MsgNoText         = "could not extract text from PDF"
	MsgNoProductLines = "no product lines found in receipt"
)

// StoreTimezone is the zone receipt timestamps are printed in
const StoreTimezone = "Europe/Amsterdam"

var (
	// "4        PAPRIKA              0,89     3,56 B"
	lineWithUnitPrice = regexp.MustCompile(`^(\d+)\s+(.+?)\s+(\d+[,.]\d{2})\s+(\d+[,.]\d{2})\s*(\d*%?|B)?$`)
	// "1        BEEMSTER                    10,27 35%"
	lineWithTotalOnly = regexp.MustCompile(`^(\d+)\s+(.+?)\s+(\d+[,.]\d{2})\s*(\d*%|B)?$`)

	standaloneTotal = regexp.MustCompile(`^TOTAAL\s+(\d+[,.]\d{2})$`)
	looseTotal      = regexp.MustCompile(`(?i)(?:TOTAAL|TE BETALEN)\s+(?:€)?\s*(\d+[,.]\d+|\d+)`)
)

// Parser extracts structured data from receipt text. It holds no mutable
// state and is safe for concurrent use.
type Parser struct {
	location *time.Location
	logger   *slog.Logger
}

// Option configures a Parser
type Option func(*Parser)

// WithLocation sets the zone used to interpret printed dates
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) {
		if loc != nil {
			p.location = loc
		}
	}
}

// WithLogger sets the logger used for skipped dates
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewParser creates a Parser for the store timezone
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		location: storeLocation(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func storeLocation() *time.Location {
	loc, err := time.LoadLocation(StoreTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Parse parses the full text of a receipt. It never panics; an unexpected
// failure is reported as a failed result with a single error.
func (p *Parser) Parse(rawText string) (result ParseResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Receipt parsing failed", "error", r)
			result = failedResult(fmt.Sprint(r))
		}
	}()

	if strings.TrimSpace(rawText) == "" {
		return failedResult(MsgNoText)
	}

	lines := cleanLines(rawText)
	items := p.parseLines(lines)
	total := extractTotal(lines, rawText)
	purchasedAt := p.extractDate(rawText)
	bonuses := extractBonusSection(lines)

	result = ParseResult{
		Success:     len(items) > 0,
		Lines:       items,
		Total:       total,
		PurchasedAt: purchasedAt,
		RawText:     rawText,
		Errors:      []string{},
		Bonuses:     bonuses,
	}
	if !result.Success {
		result.Errors = []string{MsgNoProductLines}
	}
	return result
}

// cleanLines splits the text into trimmed, non-empty lines without control
// characters (form feeds from the PDF conversion and the like).
func cleanLines(rawText string) []string {
	var lines []string
	for _, line := range strings.Split(rawText, "\n") {
		line = strings.TrimSpace(stripControl(line))
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return ' '
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)
}

func (p *Parser) parseLines(lines []string) []ParsedLine {
	items := make([]ParsedLine, 0, len(lines))
	for _, line := range lines {
		if item, ok := parseLine(line); ok {
			items = append(items, item)
		}
	}
	return items
}

func parseLine(line string) (ParsedLine, bool) {
	if IsNonProductLine(line) {
		return ParsedLine{}, false
	}

	if m := lineWithUnitPrice.FindStringSubmatch(line); m != nil {
		qty, err := strconv.Atoi(m[1])
		if err != nil {
			return ParsedLine{}, false
		}
		unit, err := ParsePrice(m[3])
		if err != nil {
			return ParsedLine{}, false
		}
		total, err := ParsePrice(m[4])
		if err != nil {
			return ParsedLine{}, false
		}
		return ParsedLine{
			Name:       strings.TrimSpace(m[2]),
			Quantity:   qty,
			UnitPrice:  unit,
			TotalPrice: total,
			IsBonus:    hasDiscountMarker(m[5]),
			RawText:    line,
		}, true
	}

	if m := lineWithTotalOnly.FindStringSubmatch(line); m != nil {
		name := strings.TrimSpace(m[2])
		// the looser shape can swallow keyword lines the two-price shape rejects
		if IsNonProductLine(name) {
			return ParsedLine{}, false
		}
		qty, err := strconv.Atoi(m[1])
		if err != nil {
			return ParsedLine{}, false
		}
		total, err := ParsePrice(m[3])
		if err != nil {
			return ParsedLine{}, false
		}
		unit := total
		if qty > 0 {
			unit = total.Div(decimal.NewFromInt(int64(qty))).Round(2)
		}
		return ParsedLine{
			Name:       name,
			Quantity:   qty,
			UnitPrice:  unit,
			TotalPrice: total,
			IsBonus:    hasDiscountMarker(m[4]),
			RawText:    line,
		}, true
	}

	return ParsedLine{}, false
}

func hasDiscountMarker(marker string) bool {
	return strings.Contains(marker, "B") || strings.Contains(marker, "%")
}

// extractTotal prefers a line holding only TOTAAL and an amount, then falls
// back to the first TOTAAL / TE BETALEN amount anywhere in the text.
func extractTotal(lines []string, rawText string) *decimal.Decimal {
	for _, line := range lines {
		if m := standaloneTotal.FindStringSubmatch(line); m != nil {
			if total, err := ParsePrice(m[1]); err == nil {
				return &total
			}
		}
	}

	if m := looseTotal.FindStringSubmatch(rawText); m != nil {
		if total, err := ParsePrice(m[1]); err == nil {
			return &total
		}
	}

	return nil
}
