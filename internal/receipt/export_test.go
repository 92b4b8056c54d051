package receipt

import (
	"bytes"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"
)

var _ = Describe("ExportXLSX", func() {
	var (
		db      *mockDB
		service *Service
	)

	readRows := func(data []byte) [][]string {
		f, err := excelize.OpenReader(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		rows, err := f.GetRows(exportSheet)
		Expect(err).NotTo(HaveOccurred())
		return rows
	}

	BeforeEach(func() {
		db = newMockDB()
		service = newTestService(db, newMockStorage(), &mockExtractor{}, &mockTimeSource{now: time.Now()})
	})

	When("there are no receipts", func() {
		It("should write only the header row", func() {
			data, err := service.ExportXLSX()
			Expect(err).NotTo(HaveOccurred())
			rows := readRows(data)
			Expect(rows).To(HaveLen(1))
			Expect(rows[0]).To(Equal(exportHeaders))
		})
	})

	When("a receipt has line items", func() {
		BeforeEach(func() {
			r := NewReceipt("r1", DefaultStore, time.Date(2025, 12, 29, 11, 56, 0, 0, time.UTC), dec("3.56"), time.Now())
			r.LineItems = []*LineItem{
				{ID: "li-1", ProductName: "PAPRIKA", Quantity: 4, UnitPrice: dec("0.89"), TotalPrice: dec("3.56"), IsBonus: true, DiscountAmount: dec("0.58")},
			}
			db.receipts["r1"] = r
		})

		It("should write one row per line item", func() {
			data, err := service.ExportXLSX()
			Expect(err).NotTo(HaveOccurred())
			rows := readRows(data)
			Expect(rows).To(HaveLen(2))
			Expect(rows[1]).To(Equal([]string{"2025-12-29", "Albert Heijn", "r1", "PAPRIKA", "4", "0.89", "3.56", "TRUE", "0.58", "2.98"}))
		})
	})
})
