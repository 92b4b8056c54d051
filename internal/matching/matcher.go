package matching

import (
	"fmt"

	"github.com/zombor/bonus-tracker/internal/parsing"
)

// DefaultConfidenceThreshold is the lowest similarity accepted as an
// automatic match
const DefaultConfidenceThreshold = 0.80

// MatchType records how a bonus was assigned to a line item
type MatchType string

const (
	MatchAuto   MatchType = "auto"
	MatchManual MatchType = "manual"
)

// Candidate is a line item a bonus could be assigned to
type Candidate interface {
	MatchName() string
	BonusEligible() bool
}

// MatchResult is the best candidate for a bonus line. Index points into the
// candidate slice passed to Match.
type MatchResult struct {
	Index      int       `json:"index"`
	Candidate  Candidate `json:"-"`
	Confidence float64   `json:"confidence"`
	MatchType  MatchType `json:"match_type"`
}

// Matcher finds the line item a bonus discount belongs to
type Matcher struct {
	threshold float64
}

// NewMatcher creates a Matcher that accepts matches scoring at least
// threshold
func NewMatcher(threshold float64) (*Matcher, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("confidence threshold must be between 0 and 1, got %v", threshold)
	}
	return &Matcher{threshold: threshold}, nil
}

// Threshold returns the minimum accepted confidence
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match returns the bonus-eligible candidate whose name is most similar to
// the bonus name, or nil when none reaches the threshold. On equal scores the
// earliest candidate wins.
func (m *Matcher) Match(bonus parsing.ParsedBonus, candidates []Candidate) *MatchResult {
	bonusKey := Normalize(bonus.RawName)
	if bonusKey == "" {
		return nil
	}

	// a candidate must score above zero to be considered at all
	var best *MatchResult
	bestScore := 0.0
	for i, c := range candidates {
		if c == nil || !c.BonusEligible() {
			continue
		}
		score := Similarity(bonusKey, Normalize(c.MatchName()))
		if score > bestScore {
			bestScore = score
			best = &MatchResult{
				Index:      i,
				Candidate:  c,
				Confidence: score,
				MatchType:  MatchAuto,
			}
		}
	}

	if best == nil || best.Confidence < m.threshold {
		return nil
	}
	return best
}

// MatchAll matches every bonus independently against the same candidates.
// The returned slice is parallel to bonuses; unmatched entries are nil.
func (m *Matcher) MatchAll(bonuses []parsing.ParsedBonus, candidates []Candidate) []*MatchResult {
	results := make([]*MatchResult, len(bonuses))
	for i, b := range bonuses {
		results[i] = m.Match(b, candidates)
	}
	return results
}
