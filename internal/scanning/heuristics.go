package scanning

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	dottedDatePattern = regexp.MustCompile(`\b(\d{1,2})[./](\d{1,2})[./](\d{4}|\d{2})\b`)
	isoDatePattern    = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	invoicePattern    = regexp.MustCompile(`(?i)(?:rechnungs?[- ]?(?:nr|nummer)|beleg[- ]?(?:nr|nummer)|bon[- ]?nr|invoice\s*(?:no|number))\.?\s*[:#]?\s*([A-Z0-9][A-Z0-9\-/]{2,})`)
	amountPattern     = regexp.MustCompile(`-?\d{1,3}(?:[.\s]\d{3})*,\d{2}\b|-?\d+\.\d{2}\b`)
	vatPattern        = regexp.MustCompile(`\b(19|7)(?:[,.]0+)?\s?%`)
	letterPattern     = regexp.MustCompile(`\pL`)
)

// totalKeywords mark lines that carry the gross amount, strongest first
var totalKeywords = [][]string{
	{"zu zahlen", "gesamtbetrag", "rechnungsbetrag", "bruttobetrag", "endbetrag"},
	{"summe", "gesamt", "total", "brutto", "betrag"},
}

// documentKeywords map words found in the text onto a document type, checked in order
var documentKeywords = []struct {
	word    string
	docType string
}{
	{"gutschrift", "credit-note"},
	{"lieferschein", "delivery-note"},
	{"rechnung", "invoice"},
	{"kassenbon", "receipt"},
	{"quittung", "receipt"},
	{"bon-nr", "receipt"},
	{"kasse", "receipt"},
}

// extractFields guesses the analysis fields from plain document text
func extractFields(text string) *Analysis {
	lines := nonEmptyLines(text)
	lower := strings.ToLower(text)

	a := &Analysis{
		Vendor:        guessVendor(lines),
		Date:          guessDate(text),
		InvoiceNumber: guessInvoiceNumber(text),
		DocumentType:  guessDocumentType(lower),
	}
	if gross, ok := guessGross(lines); ok {
		a.GrossAmount = NewAmount(gross)
	}
	if m := vatPattern.FindStringSubmatch(text); m != nil {
		a.VATRate = NewAmount(decimal.RequireFromString(m[1]))
	}

	normalize(a)
	return a
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// guessVendor takes the first line near the top that reads like a name
func guessVendor(lines []string) string {
	for i, l := range lines {
		if i >= 5 {
			break
		}
		if len(letterPattern.FindAllString(l, -1)) < 3 {
			continue
		}
		if dottedDatePattern.MatchString(l) || amountPattern.MatchString(l) {
			continue
		}
		return l
	}
	return ""
}

func guessDate(text string) string {
	if m := dottedDatePattern.FindString(text); m != "" {
		if d := normalizeDate(strings.ReplaceAll(m, "/", ".")); d != "" {
			return d
		}
	}
	if m := isoDatePattern.FindString(text); m != "" {
		return normalizeDate(m)
	}
	return ""
}

func guessInvoiceNumber(text string) string {
	if m := invoicePattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func guessDocumentType(lower string) string {
	for _, k := range documentKeywords {
		if strings.Contains(lower, k.word) {
			return k.docType
		}
	}
	return ""
}

// guessGross returns the largest amount on the strongest kind of total line
func guessGross(lines []string) (decimal.Decimal, bool) {
	for _, keywords := range totalKeywords {
		var best decimal.Decimal
		found := false
		for _, l := range lines {
			if !containsAny(strings.ToLower(l), keywords) {
				continue
			}
			for _, m := range amountPattern.FindAllString(l, -1) {
				v := parseAmount(m)
				if !found || v.GreaterThan(best) {
					best, found = v, true
				}
			}
		}
		if found {
			return best, true
		}
	}
	return decimal.Zero, false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
