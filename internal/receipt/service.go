package receipt

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/bonus-tracker/internal/extraction"
	"github.com/zombor/bonus-tracker/internal/matching"
	"github.com/zombor/bonus-tracker/internal/parsing"
)

var (
	// ErrLineItemNotFound is returned when a bonus is assigned to a line item
	// that is not on the receipt
	ErrLineItemNotFound = errors.New("line item not found")
	// ErrDiscountExists is returned when the chosen line item already carries
	// a bonus discount
	ErrDiscountExists = errors.New("line item already has a discount")
	// ErrInvalidResolution is returned when a resolution names neither a line
	// item nor not-applicable
	ErrInvalidResolution = errors.New("resolution needs a line item or not_applicable")
)

// IDGenerator generates unique IDs for stored records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service imports receipt PDFs and manages the stored receipts
type Service struct {
	db          DB
	storage     Storage
	extractor   extraction.Extractor
	parser      *parsing.Parser
	matcher     *matching.Matcher
	store       string
	idGenerator IDGenerator
	timeSource  TimeSource
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithStore sets the store name recorded on imported receipts
func WithStore(name string) ServiceOption {
	return func(s *Service) {
		if name != "" {
			s.store = name
		}
	}
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, storage Storage, extractor extraction.Extractor, matcher *matching.Matcher, opts ...ServiceOption) *Service {
	return NewServiceWithDeps(db, storage, extractor, parsing.NewParser(), matcher, &uuidGenerator{}, &defaultTimeSource{}, opts...)
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, extractor extraction.Extractor, parser *parsing.Parser, matcher *matching.Matcher, idGen IDGenerator, timeSrc TimeSource, opts ...ServiceOption) *Service {
	s := &Service{
		db:          db,
		storage:     storage,
		extractor:   extractor,
		parser:      parser,
		matcher:     matcher,
		store:       DefaultStore,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ImportResult describes the outcome of importing one file
type ImportResult struct {
	Status              ImportStatus     `json:"status"`
	Filename            string           `json:"filename"`
	ReceiptID           string           `json:"receipt_id,omitempty"`
	ItemCount           int              `json:"item_count,omitempty"`
	TotalAmount         *decimal.Decimal `json:"total_amount,omitempty"`
	UnmatchedBonusCount int              `json:"unmatched_bonus_count,omitempty"`
	Message             string           `json:"message"`
	Errors              []string         `json:"errors,omitempty"`
}

// Upload is one file of a batch import
type Upload struct {
	Filename string
	Data     []byte
}

// ImportBatch imports every file in order. One failing file does not stop
// the others.
func (s *Service) ImportBatch(uploads []Upload) []*ImportResult {
	results := make([]*ImportResult, 0, len(uploads))
	for _, u := range uploads {
		results = append(results, s.ImportReceipt(u.Filename, u.Data))
	}
	return results
}

// ImportReceipt extracts, parses and stores a receipt PDF. Every attempt
// is recorded in the import log.
func (s *Service) ImportReceipt(filename string, data []byte) *ImportResult {
	result := s.parser.Parse(s.extractText(filename, data))
	if !result.Success {
		return s.parseFailure(filename, result.Errors)
	}

	if result.PurchasedAt != nil {
		dup, err := s.db.HasReceipt(s.store, result.PurchasedAt.Format(time.DateOnly), totalOrZero(result.Total))
		if err != nil {
			return s.importFailure(filename, fmt.Errorf("checking for duplicate: %w", err))
		}
		if dup {
			return s.duplicate(filename)
		}
	}

	// the file is stored before the records so a failed save can remove it
	savedPath, err := s.storage.Save(s.idGenerator.Generate(), filename, data)
	if err != nil {
		return s.importFailure(filename, fmt.Errorf("saving file: %w", err))
	}

	now := s.timeSource.Now()
	purchasedAt := now
	if result.PurchasedAt != nil {
		purchasedAt = *result.PurchasedAt
	}

	receipt := NewReceipt(s.idGenerator.Generate(), s.store, purchasedAt, totalOrZero(result.Total), now)
	receipt.Filename = savedPath
	receipt.OriginalFilename = filename
	receipt.RawText = result.RawText

	lineErrors := s.addLineItems(receipt, result.Lines)
	bonuses := s.matchBonuses(receipt, result.Bonuses, now)

	status := ImportSuccess
	switch {
	case len(lineErrors) == len(result.Lines):
		status = ImportFailed
	case len(lineErrors) > 0:
		status = ImportPartial
	}

	log := &ImportLog{
		ID:         s.idGenerator.Generate(),
		ReceiptID:  receipt.ID,
		Filename:   filename,
		Status:     status,
		ErrorCount: len(lineErrors),
		Errors:     lineErrors,
		CreatedAt:  now,
	}

	if err := s.db.SaveImport(receipt, bonuses, log); err != nil {
		if delErr := s.storage.Delete(savedPath); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedPath, "error", delErr)
		}
		if errors.Is(err, ErrDuplicateReceipt) {
			slog.Info("Duplicate receipt detected by store index", "file", filename)
			return s.duplicate(filename)
		}
		return s.importFailure(filename, err)
	}

	total := receipt.TotalAmount
	importResult := &ImportResult{
		Status:              status,
		Filename:            filename,
		ReceiptID:           receipt.ID,
		ItemCount:           len(receipt.LineItems),
		TotalAmount:         &total,
		UnmatchedBonusCount: len(bonuses),
		Message:             importMessage(status, len(receipt.LineItems), total, len(bonuses)),
	}
	if len(lineErrors) > 0 {
		importResult.Errors = lineErrors
	}
	return importResult
}

func (s *Service) extractText(filename string, data []byte) string {
	text, err := s.extractor.ExtractText(data)
	if err != nil {
		// the parser reports empty text as a failed extraction
		slog.Warn("Failed to extract text from receipt",
			"filename", filename,
			"file_size", len(data),
			"error", err,
		)
		return ""
	}
	return text
}

func (s *Service) addLineItems(receipt *Receipt, lines []parsing.ParsedLine) []string {
	lineErrors := []string{}
	for _, line := range lines {
		product, err := s.db.FindOrCreateProduct(&Product{
			ID:        s.idGenerator.Generate(),
			Name:      line.Name,
			CreatedAt: receipt.CreatedAt,
		})
		if err != nil {
			lineErrors = append(lineErrors, fmt.Sprintf("Failed to process line: %s", line.Name))
			slog.Warn("Failed to create line item",
				"receipt_id", receipt.ID,
				"line", line.Name,
				"error", err,
			)
			continue
		}

		receipt.LineItems = append(receipt.LineItems, &LineItem{
			ID:          s.idGenerator.Generate(),
			ProductID:   product.ID,
			ProductName: line.Name,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TotalPrice:  line.TotalPrice,
			IsBonus:     line.IsBonus,
			RawText:     line.RawText,
		})
	}
	return lineErrors
}

// matchBonuses assigns each bonus discount to its line item and returns the
// bonuses that need a manual decision
func (s *Service) matchBonuses(receipt *Receipt, bonuses []parsing.ParsedBonus, now time.Time) []*UnmatchedBonus {
	unmatched := []*UnmatchedBonus{}
	candidates := receipt.Candidates()

	for i, bonus := range bonuses {
		if m := s.matcher.Match(bonus, candidates); m != nil {
			item := receipt.LineItems[m.Index]
			item.DiscountAmount = bonus.DiscountAmount
			slog.Info("Bonus matched",
				"receipt_id", receipt.ID,
				"bonus_name", bonus.RawName,
				"matched_product", item.ProductName,
				"confidence", m.Confidence,
				"discount", bonus.DiscountAmount.StringFixed(2),
			)
			continue
		}

		unmatched = append(unmatched, &UnmatchedBonus{
			ID:             s.idGenerator.Generate(),
			ReceiptID:      receipt.ID,
			RawName:        bonus.RawName,
			DiscountAmount: bonus.DiscountAmount,
			Status:         BonusPending,
			Position:       i,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		slog.Info("Bonus unmatched",
			"receipt_id", receipt.ID,
			"bonus_name", bonus.RawName,
			"discount", bonus.DiscountAmount.StringFixed(2),
		)
	}
	return unmatched
}

func importMessage(status ImportStatus, itemCount int, total decimal.Decimal, unmatched int) string {
	var msg string
	switch status {
	case ImportFailed:
		return "Failed to import receipt: all line items failed"
	case ImportPartial:
		msg = fmt.Sprintf("Partially imported: %d items, some lines failed", itemCount)
	default:
		msg = fmt.Sprintf("Receipt imported successfully: %d items, €%s", itemCount, total.StringFixed(2))
	}
	if unmatched > 0 {
		msg += fmt.Sprintf(" (%d unmatched bonuses)", unmatched)
	}
	return msg
}

func totalOrZero(total *decimal.Decimal) decimal.Decimal {
	if total == nil {
		return decimal.Zero
	}
	return *total
}

func (s *Service) parseFailure(filename string, errs []string) *ImportResult {
	slog.Warn("Receipt parsing failed", "file", filename, "errors", errs)
	s.logImport(filename, ImportFailed, errs)
	return &ImportResult{
		Status:   ImportFailed,
		Filename: filename,
		Errors:   errs,
		Message:  "Failed to parse receipt: " + strings.Join(errs, ", "),
	}
}

func (s *Service) duplicate(filename string) *ImportResult {
	s.logImport(filename, ImportDuplicate, []string{"Duplicate receipt detected"})
	return &ImportResult{
		Status:   ImportDuplicate,
		Filename: filename,
		Message:  "Duplicate receipt detected - already imported",
	}
}

func (s *Service) importFailure(filename string, err error) *ImportResult {
	slog.Error("Receipt import failed", "file", filename, "error", err)
	s.logImport(filename, ImportFailed, []string{err.Error()})
	return &ImportResult{
		Status:   ImportFailed,
		Filename: filename,
		Errors:   []string{err.Error()},
		Message:  "Failed to import receipt: " + err.Error(),
	}
}

func (s *Service) logImport(filename string, status ImportStatus, errs []string) {
	errorCount := len(errs)
	if status == ImportDuplicate {
		errorCount = 0
	}
	log := &ImportLog{
		ID:         s.idGenerator.Generate(),
		Filename:   filename,
		Status:     status,
		ErrorCount: errorCount,
		Errors:     errs,
		CreatedAt:  s.timeSource.Now(),
	}
	if err := s.db.SaveImportLog(log); err != nil {
		slog.Error("Failed to save import log", "file", filename, "error", err)
	}
}

// BonusPreview is the dry-run match of one bonus line
type BonusPreview struct {
	Bonus      parsing.ParsedBonus `json:"bonus"`
	LineIndex  *int                `json:"line_index,omitempty"`
	LineName   string              `json:"line_name,omitempty"`
	Confidence float64             `json:"confidence,omitempty"`
}

// Preview is the parse result of a receipt with its bonus matches, nothing
// is stored
type Preview struct {
	Result  parsing.ParseResult `json:"result"`
	Matches []BonusPreview      `json:"matches"`
}

// ParseText parses receipt text and matches its bonuses against its own
// lines without storing anything
func (s *Service) ParseText(text string) *Preview {
	result := s.parser.Parse(text)

	candidates := make([]matching.Candidate, len(result.Lines))
	for i, line := range result.Lines {
		candidates[i] = line
	}

	preview := &Preview{Result: result, Matches: make([]BonusPreview, 0, len(result.Bonuses))}
	for _, bonus := range result.Bonuses {
		bp := BonusPreview{Bonus: bonus}
		if m := s.matcher.Match(bonus, candidates); m != nil {
			idx := m.Index
			bp.LineIndex = &idx
			bp.LineName = result.Lines[idx].Name
			bp.Confidence = m.Confidence
		}
		preview.Matches = append(preview.Matches, bp)
	}
	return preview
}

// PreviewFile extracts the text of a PDF and previews it like ParseText
func (s *Service) PreviewFile(data []byte) (*Preview, error) {
	text, err := s.extractor.ExtractText(data)
	if err != nil {
		return nil, fmt.Errorf("extracting text: %w", err)
	}
	return s.ParseText(text), nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt, its bonuses and its file
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if err := s.storage.Delete(receipt.Filename); err != nil {
		slog.Warn("Failed to delete file", "filename", receipt.Filename, "error", err)
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile returns the stored PDF of a receipt and the name it was
// uploaded with
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.OriginalFilename, nil
}

// ListProducts returns all known products
func (s *Service) ListProducts() ([]*Product, error) {
	products, err := s.db.ListProducts()
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// ListImportLogs returns the import history
func (s *Service) ListImportLogs() ([]*ImportLog, error) {
	logs, err := s.db.ListImportLogs()
	if err != nil {
		return nil, fmt.Errorf("listing import logs: %w", err)
	}
	return logs, nil
}

// PendingBonuses is what a user needs to resolve the unmatched bonuses of a
// receipt
type PendingBonuses struct {
	Receipt   *Receipt          `json:"receipt"`
	Bonuses   []*UnmatchedBonus `json:"bonuses"`
	LineItems []*LineItem       `json:"line_items"`
}

// PendingBonuses returns the pending bonuses of a receipt with its line items
func (s *Service) PendingBonuses(receiptID string) (*PendingBonuses, error) {
	receipt, err := s.db.GetReceipt(receiptID)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}

	all, err := s.db.ListUnmatchedBonuses(receiptID)
	if err != nil {
		return nil, fmt.Errorf("listing bonuses: %w", err)
	}

	pending := make([]*UnmatchedBonus, 0, len(all))
	for _, b := range all {
		if b.Status == BonusPending {
			pending = append(pending, b)
		}
	}

	return &PendingBonuses{Receipt: receipt, Bonuses: pending, LineItems: receipt.LineItems}, nil
}

// Resolution is a manual decision for an unmatched bonus
type Resolution struct {
	LineItemID    string `json:"line_item_id"`
	NotApplicable bool   `json:"not_applicable"`
}

// ResolveResult reports a manual bonus decision
type ResolveResult struct {
	Message     string `json:"message"`
	ProductName string `json:"product_name,omitempty"`
}

// ResolveBonus assigns an unmatched bonus to a line item of its receipt or
// marks it as not applicable
func (s *Service) ResolveBonus(receiptID, bonusID string, res Resolution) (*ResolveResult, error) {
	receipt, err := s.db.GetReceipt(receiptID)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}

	bonus, err := s.db.GetUnmatchedBonus(bonusID)
	if err != nil {
		return nil, fmt.Errorf("getting bonus: %w", err)
	}
	if bonus.ReceiptID != receipt.ID {
		return nil, fmt.Errorf("%w: %s", ErrBonusNotFound, bonusID)
	}

	now := s.timeSource.Now()

	if res.NotApplicable {
		bonus.Status = BonusNotApplicable
		bonus.MatchedLineItemID = ""
		bonus.MatchType = ""
		bonus.UpdatedAt = now
		if err := s.db.SaveResolution(receipt, bonus); err != nil {
			return nil, fmt.Errorf("saving resolution: %w", err)
		}
		slog.Info("Bonus marked as not applicable",
			"receipt_id", receipt.ID,
			"bonus_id", bonus.ID,
			"bonus_name", bonus.RawName,
			"discount_amount", bonus.DiscountAmount.StringFixed(2),
		)
		return &ResolveResult{Message: "Bonus marked as not applicable"}, nil
	}

	if res.LineItemID == "" {
		return nil, ErrInvalidResolution
	}

	item := receipt.LineItem(res.LineItemID)
	if item == nil {
		return nil, fmt.Errorf("%w: %s", ErrLineItemNotFound, res.LineItemID)
	}
	if item.HasDiscount() {
		return nil, fmt.Errorf("%w: %s", ErrDiscountExists, item.DiscountAmount.StringFixed(2))
	}

	item.DiscountAmount = bonus.DiscountAmount
	receipt.UpdatedAt = now
	bonus.Status = BonusMatched
	bonus.MatchedLineItemID = item.ID
	bonus.MatchType = matching.MatchManual
	bonus.UpdatedAt = now

	if err := s.db.SaveResolution(receipt, bonus); err != nil {
		return nil, fmt.Errorf("saving resolution: %w", err)
	}

	slog.Info("Bonus manually matched to product",
		"receipt_id", receipt.ID,
		"bonus_id", bonus.ID,
		"bonus_name", bonus.RawName,
		"matched_line_item_id", item.ID,
		"matched_product", item.ProductName,
		"discount_amount", bonus.DiscountAmount.StringFixed(2),
	)

	return &ResolveResult{Message: "Bonus matched successfully", ProductName: item.ProductName}, nil
}
