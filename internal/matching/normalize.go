// Package matching assigns bonus discount lines to the receipt line they
// discount, using string similarity between the printed names.
package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// brandPrefixes are stripped from the start of a normalized name. The
// longer form must come first.
var brandPrefixes = []string{"ALBERTHEIJN", "AH"}

// Normalize builds the comparison key for a product or bonus name: upper
// case, accents folded, only A-Z and 0-9 kept, store brand prefix removed.
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(name string) string {
	folded, _, err := transform.String(foldAccents(), name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	for _, r := range strings.ToUpper(folded) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}

	key := b.String()
	for stripped := true; stripped; {
		stripped = false
		for _, prefix := range brandPrefixes {
			if strings.HasPrefix(key, prefix) {
				key = strings.TrimPrefix(key, prefix)
				stripped = true
				break
			}
		}
	}
	return key
}

func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}
