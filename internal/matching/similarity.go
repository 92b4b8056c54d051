package matching

import (
	"math"
	"strings"

	"github.com/agext/levenshtein"
)

const (
	containmentFloor = 0.85
	containmentBonus = 0.15
)

// Similarity scores two normalized names in [0,1]. It is symmetric.
//
// One name contained in the other scores at least 0.85, because bonus lines
// print truncated or glued fragments of the product name. Other pairs score
// the better of normalized edit distance and character overlap.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	la, lb := runeLen(a), runeLen(b)
	shorter, longer := math.Min(la, lb), math.Max(la, lb)

	if strings.Contains(a, b) || strings.Contains(b, a) {
		return containmentFloor + containmentBonus*(shorter/longer)
	}

	distance := float64(levenshtein.Distance(a, b, nil))
	editScore := 1 - distance/longer

	return math.Max(editScore, overlapRatio(a, b))
}

func runeLen(s string) float64 {
	return float64(len([]rune(s)))
}

// overlapRatio is twice the number of characters shared by recursive
// longest-common-substring alignment, divided by the total length.
// Arguments are put in a fixed order first so the result does not depend on
// which name is passed first.
func overlapRatio(a, b string) float64 {
	if a > b {
		a, b = b, a
	}
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	return float64(2*commonChars(ra, rb)) / float64(total)
}

func commonChars(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	posA, posB, longest := 0, 0, 0
	for i := range a {
		for j := range b {
			l := 0
			for i+l < len(a) && j+l < len(b) && a[i+l] == b[j+l] {
				l++
			}
			if l > longest {
				posA, posB, longest = i, j, l
			}
		}
	}
	if longest == 0 {
		return 0
	}

	return longest +
		commonChars(a[:posA], b[:posB]) +
		commonChars(a[posA+longest:], b[posB+longest:])
}
