package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("extractFields", func() {
	var (
		text     string
		analysis *Analysis
	)

	JustBeforeEach(func() {
		analysis = extractFields(text)
	})

	When("reading a supermarket receipt", func() {
		BeforeEach(func() {
			text = `
  EDEKA Markt Schmidt
Hauptstr. 12
12345 Musterstadt

Milch 1,5%            1,19
Brot                  2,49
Kaffee               12,99
--------------------------
SUMME EUR            16,67
Bar                  20,00
Rückgeld              3,33

MwSt   19%  Netto 10,92  MwSt 2,07
MwSt    7%  Netto  3,43  MwSt 0,25
Bon-Nr. 4711  Kasse 3
12.04.2024 18:03
`
		})

		It("should take the first name-like line as vendor", func() {
			Expect(analysis.Vendor).To(Equal("EDEKA Markt Schmidt"))
		})

		It("should find the date", func() {
			Expect(analysis.Date).To(Equal("12.04.2024"))
		})

		It("should take the total from the sum line", func() {
			Expect(analysis.GrossAmount.StringFixed(2)).To(Equal("16.67"))
		})

		It("should find the VAT rate", func() {
			Expect(analysis.VATRate.String()).To(Equal("19"))
		})

		It("should recognize a till receipt", func() {
			Expect(analysis.DocumentType).To(Equal("receipt"))
			Expect(analysis.InvoiceNumber).To(Equal("4711"))
		})
	})

	When("reading an invoice", func() {
		BeforeEach(func() {
			text = `Büroprofi GmbH
Rechnung
Rechnungsnummer: RE-2024/0815
Datum: 2024-03-05

Zwischensumme            100,00 €
zzgl. 19 % USt            19,00 €
Rechnungsbetrag        1.119,00 €
`
		})

		It("should extract the invoice fields", func() {
			Expect(analysis.Vendor).To(Equal("Büroprofi GmbH"))
			Expect(analysis.DocumentType).To(Equal("invoice"))
			Expect(analysis.InvoiceNumber).To(Equal("RE-2024/0815"))
			Expect(analysis.Date).To(Equal("05.03.2024"))
			Expect(analysis.GrossAmount.StringFixed(2)).To(Equal("1119.00"))
			Expect(analysis.VATRate.String()).To(Equal("19"))
		})
	})

	When("the text has nothing useful", func() {
		BeforeEach(func() {
			text = "\n\n 12 \n"
		})

		It("should be empty", func() {
			Expect(analysis.Empty()).To(BeTrue())
		})
	})
})
