package parsing

import (
	"regexp"
	"strings"
)

type sectionState int

const (
	beforeSubtotal sectionState = iota
	inBonusSection
	sectionDone
)

var (
	// "46                     SUBTOTAAL                    145,99"
	subtotalLine = regexp.MustCompile(`(?i)SUBTOTAAL\s+\d+[,.]\d{2}`)
	finalTotal   = regexp.MustCompile(`(?i)^TOTAAL\s+\d+[,.]\d{2}`)
	benefitLine  = regexp.MustCompile(`(?i)^UW VOORDEEL`)

	// "BONUS                  AHPAPRIKAROO                  -0,58"
	bonusKeywordLine = regexp.MustCompile(`(?i)^BONUS\s+(.+?)\s+(-?\d+[,.]\d{2})\s*$`)
	// "35% K                  BEEMSTER                      -3,59"
	percentageLine = regexp.MustCompile(`(?i)^\d+%\s*\w?\s+(.+?)\s+(-?\d+[,.]\d{2})\s*$`)
)

// extractBonusSection collects the discount lines printed between the first
// SUBTOTAAL amount and the final TOTAAL or the UW VOORDEEL summary.
func extractBonusSection(lines []string) []ParsedBonus {
	bonuses := []ParsedBonus{}
	state := beforeSubtotal

	for _, line := range lines {
		switch state {
		case beforeSubtotal:
			if subtotalLine.MatchString(line) {
				state = inBonusSection
			}
		case inBonusSection:
			if finalTotal.MatchString(line) || benefitLine.MatchString(line) {
				state = sectionDone
				break
			}
			if bonus, ok := parseBonusLine(line); ok {
				bonuses = append(bonuses, bonus)
			}
		}
		if state == sectionDone {
			break
		}
	}

	return bonuses
}

func parseBonusLine(line string) (ParsedBonus, bool) {
	for _, re := range []*regexp.Regexp{bonusKeywordLine, percentageLine} {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		amount, err := ParsePrice(m[2])
		if err != nil {
			return ParsedBonus{}, false
		}
		return ParsedBonus{
			RawName:        strings.TrimSpace(m[1]),
			DiscountAmount: amount.Abs(),
		}, true
	}
	return ParsedBonus{}, false
}
