package receipt

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/bonus-tracker/internal/matching"
)

// DefaultStore is the store name recorded on imported receipts
const DefaultStore = "Albert Heijn"

// Receipt represents an imported supermarket receipt
type Receipt struct {
	ID               string          `json:"id"`
	Store            string          `json:"store"`
	PurchasedAt      time.Time       `json:"purchased_at"`
	PurchasedDate    string          `json:"purchased_date"` // YYYY-MM-DD in the zone of PurchasedAt
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Filename         string          `json:"filename"` // path in Storage
	OriginalFilename string          `json:"original_filename"`
	RawText          string          `json:"raw_text,omitempty"`
	LineItems        []*LineItem     `json:"line_items"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewReceipt creates a receipt and derives its purchase date
func NewReceipt(id, store string, purchasedAt time.Time, total decimal.Decimal, now time.Time) *Receipt {
	return &Receipt{
		ID:            id,
		Store:         store,
		PurchasedAt:   purchasedAt,
		PurchasedDate: purchasedAt.Format(time.DateOnly),
		TotalAmount:   total,
		LineItems:     []*LineItem{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// TotalDiscount sums the bonus discounts assigned to the line items
func (r *Receipt) TotalDiscount() decimal.Decimal {
	sum := decimal.Zero
	for _, li := range r.LineItems {
		sum = sum.Add(li.DiscountAmount)
	}
	return sum
}

// LineItem returns the line item with the given ID, or nil
func (r *Receipt) LineItem(id string) *LineItem {
	for _, li := range r.LineItems {
		if li.ID == id {
			return li
		}
	}
	return nil
}

// Candidates returns the line items in receipt order for bonus matching
func (r *Receipt) Candidates() []matching.Candidate {
	candidates := make([]matching.Candidate, len(r.LineItems))
	for i, li := range r.LineItems {
		candidates[i] = li
	}
	return candidates
}

// LineItem is one purchased product on a receipt
type LineItem struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"product_id"`
	ProductName    string          `json:"product_name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	IsBonus        bool            `json:"is_bonus"`
	DiscountAmount decimal.Decimal `json:"discount_amount"` // zero when no bonus was assigned
	RawText        string          `json:"raw_text"`
}

// MatchName implements matching.Candidate
func (li *LineItem) MatchName() string {
	return li.ProductName
}

// BonusEligible implements matching.Candidate
func (li *LineItem) BonusEligible() bool {
	return li.IsBonus
}

// HasDiscount reports whether a bonus discount is already assigned
func (li *LineItem) HasDiscount() bool {
	return li.DiscountAmount.IsPositive()
}

// EffectivePrice is the line total after its bonus discount
func (li *LineItem) EffectivePrice() decimal.Decimal {
	return li.TotalPrice.Sub(li.DiscountAmount)
}

// Product is a distinct product name seen on receipts
type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	NormalizedName string    `json:"normalized_name"`
	CreatedAt      time.Time `json:"created_at"`
}

var whitespace = regexp.MustCompile(`\s+`)

// ProductKey is the lookup key for a product name: trimmed, lower case,
// whitespace collapsed
func ProductKey(name string) string {
	return strings.ToLower(whitespace.ReplaceAllString(strings.TrimSpace(name), " "))
}

// BonusStatus is the resolution state of an unmatched bonus
type BonusStatus string

const (
	BonusPending       BonusStatus = "pending"
	BonusMatched       BonusStatus = "matched"
	BonusNotApplicable BonusStatus = "not_applicable"
)

// UnmatchedBonus is a bonus discount the matcher could not assign with
// enough confidence
type UnmatchedBonus struct {
	ID                string             `json:"id"`
	ReceiptID         string             `json:"receipt_id"`
	RawName           string             `json:"raw_name"`
	DiscountAmount    decimal.Decimal    `json:"discount_amount"`
	MatchedLineItemID string             `json:"matched_line_item_id,omitempty"`
	MatchType         matching.MatchType `json:"match_type,omitempty"`
	Position          int                `json:"position"` // order in the bonus section
	Status            BonusStatus        `json:"status"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// ImportStatus is the outcome of importing one file
type ImportStatus string

const (
	ImportSuccess   ImportStatus = "success"
	ImportPartial   ImportStatus = "partial"
	ImportFailed    ImportStatus = "failed"
	ImportDuplicate ImportStatus = "duplicate"
)

// ImportLog records every import attempt
type ImportLog struct {
	ID         string       `json:"id"`
	ReceiptID  string       `json:"receipt_id,omitempty"`
	Filename   string       `json:"filename"`
	Status     ImportStatus `json:"status"`
	ErrorCount int          `json:"error_count"`
	Errors     []string     `json:"errors"`
	CreatedAt  time.Time    `json:"created_at"`
}
