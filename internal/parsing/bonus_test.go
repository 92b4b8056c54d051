package parsing

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("extractBonusSection", func() {
	var (
		text    string
		bonuses []ParsedBonus
	)

	JustBeforeEach(func() {
		bonuses = extractBonusSection(cleanLines(text))
	})

	When("the subtotal has an item count prefix", func() {
		BeforeEach(func() {
			text = strings.Join([]string{
				"46  SUBTOTAAL  145,99",
				"BONUS  AHPAPRIKAROO  -0,58",
				"TOTAAL  144,81",
			}, "\n")
		})

		It("should return the single bonus", func() {
			Expect(bonuses).To(HaveLen(1))
			Expect(bonuses[0].RawName).To(Equal("AHPAPRIKAROO"))
			Expect(bonuses[0].DiscountAmount.StringFixed(2)).To(Equal("0.58"))
		})
	})

	When("the subtotal has no prefix", func() {
		BeforeEach(func() {
			text = "SUBTOTAAL 145.99\nbonus kaas -1.00\nTOTAAL 144.99"
		})

		It("should still open the section", func() {
			Expect(bonuses).To(HaveLen(1))
			Expect(bonuses[0].RawName).To(Equal("kaas"))
		})
	})

	When("bonus lines appear before the subtotal", func() {
		BeforeEach(func() {
			text = "BONUS  VROEG  -1,00\nSUBTOTAAL 10,00\nTOTAAL 9,00"
		})

		It("should ignore them", func() {
			Expect(bonuses).To(BeEmpty())
		})
	})

	When("the benefit summary follows the bonus lines", func() {
		BeforeEach(func() {
			text = strings.Join([]string{
				"SUBTOTAAL  20,00",
				"35% K  BEEMSTER  -3,59",
				"UW VOORDEEL  3,59",
				"BONUS  NA VOORDEEL  -1,00",
				"TOTAAL  16,41",
			}, "\n")
		})

		It("should stop at the summary", func() {
			Expect(bonuses).To(HaveLen(1))
			Expect(bonuses[0].RawName).To(Equal("BEEMSTER"))
			Expect(bonuses[0].DiscountAmount.StringFixed(2)).To(Equal("3.59"))
		})
	})

	When("the section contains other lines", func() {
		BeforeEach(func() {
			text = "SUBTOTAAL 20,00\nAIRMILES 12\nBONUS  KIWI  0,40\nTOTAAL 19,60"
		})

		It("should skip the lines that are not bonuses", func() {
			Expect(bonuses).To(HaveLen(1))
			Expect(bonuses[0].RawName).To(Equal("KIWI"))
			Expect(bonuses[0].DiscountAmount.StringFixed(2)).To(Equal("0.40"))
		})
	})

	When("there is no subtotal", func() {
		BeforeEach(func() {
			text = "BONUS KIWI -0,40\nTOTAAL 1,00"
		})

		It("should return no bonuses", func() {
			Expect(bonuses).To(BeEmpty())
		})
	})
})
