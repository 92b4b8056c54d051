package parsing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("IsNonProductLine", func() {
	DescribeTable("noise lines",
		func(line string) {
			Expect(IsNonProductLine(line)).To(BeTrue())
		},
		Entry("total", "TOTAAL"),
		Entry("subtotal", "Subtotaal"),
		Entry("amount due", "TE BETALEN"),
		Entry("tax", "BTW laag"),
		Entry("card payment", "PIN"),
		Entry("deposit prefix", "+ 0,15"),
		Entry("loyalty card", "BONUSKAART xx1234"),
		Entry("savings stamps", "KOOPZEGELS 2,00"),
		Entry("benefit heading", "UW VOORDEEL"),
		Entry("column header", "AANTAL OMSCHRIJVING PRIJS BEDRAG"),
		Entry("bonus keyword", "BONUS BOX"),
		Entry("paid", "betaald met"),
	)

	DescribeTable("product lines",
		func(line string) {
			Expect(IsNonProductLine(line)).To(BeFalse())
		},
		Entry("plain product", "AH Melk Halfvol"),
		Entry("pin inside a brand", "CAMPINA VLA"),
		Entry("bonus inside a word", "BONUSBOX WAFELS"),
		Entry("actie inside a word", "REACTIEPOEDER"),
	)
})

var _ = Describe("ParsePrice", func() {
	It("should accept a comma separator", func() {
		price, err := ParsePrice("12,99")
		Expect(err).NotTo(HaveOccurred())
		Expect(price.StringFixed(2)).To(Equal("12.99"))
	})

	It("should give the same value for either separator", func() {
		comma, err := ParsePrice("12,99")
		Expect(err).NotTo(HaveOccurred())
		dot, err := ParsePrice("12.99")
		Expect(err).NotTo(HaveOccurred())
		Expect(comma.Equal(dot)).To(BeTrue())
	})

	It("should keep the sign", func() {
		price, err := ParsePrice("-0,58")
		Expect(err).NotTo(HaveOccurred())
		Expect(price.IsNegative()).To(BeTrue())
	})

	It("should reject garbage", func() {
		_, err := ParsePrice("12,9x")
		Expect(err).To(HaveOccurred())
	})
})
