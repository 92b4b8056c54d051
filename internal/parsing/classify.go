package parsing

import (
	"regexp"
	"strings"
)

// substringKeywords never show up inside real product names, so they may
// match anywhere in the line.
var substringKeywords = []string{
	"subtotaal",
	"totaal",
	"te betalen",
	"statiegeld",
	"+statiegeld",
	"bonuskaart",
	"airmiles",
	"koopzegels",
	"spaaracties",
	"espaarzegelspremium",
	"uw voordeel",
	"omschrijving",
}

// wholeWordKeywords are short tokens that do occur inside product names
// ("pin" in CAMPINA), so they only count on a word boundary.
var wholeWordKeywords = []string{
	"btw",
	"pin",
	"pinnen",
	"contant",
	"retour",
	"korting",
	"bonus",
	"actie",
	"betaald",
	"waarvan",
	"aantal",
	"prijs",
	"bedrag",
}

var wholeWordPatterns = compileWholeWords(wholeWordKeywords)

func compileWholeWords(words []string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		patterns = append(patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return patterns
}

// IsNonProductLine reports whether a line (or an extracted name) is receipt
// noise such as totals, tax, payment or column headers.
func IsNonProductLine(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))

	// deposit annotations
	if strings.HasPrefix(lower, "+") {
		return true
	}

	for _, keyword := range substringKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}

	for _, pattern := range wholeWordPatterns {
		if pattern.MatchString(lower) {
			return true
		}
	}

	return false
}
