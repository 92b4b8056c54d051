// Package parsing turns the text of an Albert Heijn receipt into line items,
// bonus discounts, a total and a purchase time.
package parsing

import (
	"time"

	"github.com/shopspring/decimal"
)

// ParsedLine is one purchased product recovered from the receipt text
type ParsedLine struct {
	Name       string          `json:"name"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	IsBonus    bool            `json:"is_bonus"` // printed with a "B" or percentage marker
	RawText    string          `json:"raw_text"`
}

// MatchName returns the name used when matching bonus lines
func (l ParsedLine) MatchName() string {
	return l.Name
}

// BonusEligible reports whether a bonus line may be assigned to this line
func (l ParsedLine) BonusEligible() bool {
	return l.IsBonus
}

// ParsedBonus is a discount line from the bonus section of the receipt
type ParsedBonus struct {
	RawName        string          `json:"raw_name"`
	DiscountAmount decimal.Decimal `json:"discount_amount"` // always positive
}

// ParseResult is the outcome of parsing one receipt.
// Success is false when no product lines were found; Total, PurchasedAt and
// Bonuses may still be filled in that case.
type ParseResult struct {
	Success     bool             `json:"success"`
	Lines       []ParsedLine     `json:"lines"`
	Total       *decimal.Decimal `json:"total,omitempty"`
	PurchasedAt *time.Time       `json:"purchased_at,omitempty"`
	RawText     string           `json:"raw_text,omitempty"`
	Errors      []string         `json:"errors"`
	Bonuses     []ParsedBonus    `json:"bonuses"`
}

func failedResult(message string) ParseResult {
	return ParseResult{
		Success: false,
		Lines:   []ParsedLine{},
		Errors:  []string{message},
		Bonuses: []ParsedBonus{},
	}
}
