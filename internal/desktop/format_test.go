package desktop

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/belegscanner/internal/capture"
)

var _ = Describe("FormatCurrency", func() {
	DescribeTable("formats euros with German separators",
		func(amount, want string) {
			Expect(FormatCurrency(decimal.RequireFromString(amount))).To(Equal(want))
		},
		Entry("zero", "0", "0,00 €"),
		Entry("cents", "84.03", "84,03 €"),
		Entry("thousands", "1234.56", "1.234,56 €"),
		Entry("negative", "-12.5", "-12,50 €"),
		Entry("rounds half away from zero", "0.005", "0,01 €"),
	)
})

var _ = Describe("options", func() {
	It("labels document types in German", func() {
		opts := documentTypeOptions([]string{"invoice", "receipt", "custom"})
		Expect(labels(opts)).To(Equal([]string{"Rechnung", "Kassenbon", "custom"}))
		Expect(valueFor(opts, "Kassenbon")).To(Equal("receipt"))
		Expect(valueFor(opts, "unknown")).To(BeEmpty())
	})

	It("labels VAT rates as percentages", func() {
		opts := vatRateOptions(capture.DefaultVATRates)
		label, ok := labelFor(opts, "19")
		Expect(ok).To(BeTrue())
		Expect(label).To(Equal("19 %"))

		_, ok = labelFor(opts, "16")
		Expect(ok).To(BeFalse())
	})

	It("hides badges without confidence", func() {
		Expect(confidenceLabel(capture.ConfidenceNone)).To(BeEmpty())
		Expect(confidenceLabel(capture.ConfidenceHigh)).To(Equal("sicher"))
	})
})
