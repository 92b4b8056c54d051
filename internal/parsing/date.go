package parsing

import (
	"fmt"
	"regexp"
	"time"
)

var (
	// payment section: "02/01/2026 14:30"
	slashDateTime = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})\s+(\d{2}):(\d{2})`)
	dashDateTime  = regexp.MustCompile(`(\d{2})-(\d{2})-(\d{4})\s+(\d{2}):(\d{2})`)
	dashDate      = regexp.MustCompile(`(\d{2})-(\d{2})-(\d{4})`)
	trailingDigit = regexp.MustCompile(`^\s*\d`)
)

// extractDate returns the purchase time printed on the receipt. The first
// pattern found in the text wins; a match that is not a real date is logged
// and the next pattern is tried.
func (p *Parser) extractDate(rawText string) *time.Time {
	for _, re := range []*regexp.Regexp{slashDateTime, dashDateTime} {
		m := re.FindStringSubmatch(rawText)
		if m == nil {
			continue
		}
		value := fmt.Sprintf("%s-%s-%s %s:%s", m[1], m[2], m[3], m[4], m[5])
		t, err := time.ParseInLocation("02-01-2006 15:04", value, p.location)
		if err != nil {
			p.logger.Warn("Could not parse date from receipt", "match", m[0], "error", err)
			continue
		}
		return &t
	}

	if m := findBareDate(rawText); m != nil {
		value := fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3])
		t, err := time.ParseInLocation("02-01-2006", value, p.location)
		if err != nil {
			p.logger.Warn("Could not parse date from receipt", "match", m[0], "error", err)
			return nil
		}
		return &t
	}

	return nil
}

// findBareDate finds the first DD-MM-YYYY that is not followed by more
// digits, so a date cannot be cut out of a longer number.
func findBareDate(text string) []string {
	offset := 0
	for offset < len(text) {
		loc := dashDate.FindStringSubmatchIndex(text[offset:])
		if loc == nil {
			return nil
		}
		end := offset + loc[1]
		if !trailingDigit.MatchString(text[end:]) {
			m := make([]string, 4)
			for i := range m {
				m[i] = text[offset+loc[2*i] : offset+loc[2*i+1]]
			}
			return m
		}
		offset += loc[0] + 1
	}
	return nil
}
