package receipt

import (
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Line items"

var exportHeaders = []string{
	"Purchased",
	"Store",
	"Receipt",
	"Product",
	"Quantity",
	"Unit price",
	"Total price",
	"Bonus",
	"Discount",
	"Effective price",
}

// ExportXLSX writes every line item of every receipt to a single sheet,
// most recent purchase first
func (s *Service) ExportXLSX() ([]byte, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	row := 2
	for _, r := range receipts {
		for _, li := range r.LineItems {
			values := []any{
				r.PurchasedDate,
				r.Store,
				r.ID,
				li.ProductName,
				li.Quantity,
				li.UnitPrice.InexactFloat64(),
				li.TotalPrice.InexactFloat64(),
				li.IsBonus,
				li.DiscountAmount.InexactFloat64(),
				li.EffectivePrice().InexactFloat64(),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				if err := f.SetCellValue(exportSheet, cell, v); err != nil {
					return nil, fmt.Errorf("writing row %d: %w", row, err)
				}
			}
			row++
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "B", 14)
	_ = f.SetColWidth(exportSheet, "C", "C", 38)
	_ = f.SetColWidth(exportSheet, "D", "D", 30)
	_ = f.SetColWidth(exportSheet, "E", "J", 12)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing xlsx: %w", err)
	}

	slog.Info("Exported line items", "receipts", len(receipts), "rows", row-2)
	return buf.Bytes(), nil
}
