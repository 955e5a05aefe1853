package scanning

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// dateLayouts are the date spellings accepted from scanners, most specific first
var dateLayouts = []string{
	"2.1.2006",
	"2006-1-2",
	"2/1/2006",
	"2.1.06",
	"2006/1/2",
}

// documentTypeAliases maps German document names onto DocumentTypes
var documentTypeAliases = map[string]string{
	"rechnung":     "invoice",
	"kassenbon":    "receipt",
	"kassenzettel": "receipt",
	"quittung":     "receipt",
	"beleg":        "receipt",
	"gutschrift":   "credit-note",
	"lieferschein": "delivery-note",
	"sonstiges":    "other",
}

// parseAnalysisJSON extracts the analysis object from a model response
func parseAnalysisJSON(text string) (*Analysis, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var a Analysis
	if err := json.Unmarshal([]byte(text), &a); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	normalize(&a)
	return &a, nil
}

// normalize cleans up scanner output so that unknown values are absent rather than wrong
func normalize(a *Analysis) {
	a.Vendor = strings.TrimSpace(a.Vendor)
	a.InvoiceNumber = strings.TrimSpace(a.InvoiceNumber)
	a.Date = normalizeDate(a.Date)
	a.DocumentType = normalizeDocumentType(a.DocumentType)

	if a.GrossAmount != nil && a.GrossAmount.IsZero() {
		a.GrossAmount = nil
	}
	if a.VATRate != nil && (a.VATRate.IsNegative() || a.VATRate.IsZero()) {
		a.VATRate = nil
	}
}

// normalizeDate rewrites a date into DD.MM.YYYY. Unreadable dates become empty.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format("02.01.2006")
		}
	}
	return ""
}

func normalizeDocumentType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if alias, ok := documentTypeAliases[s]; ok {
		return alias
	}
	if slices.Contains(DocumentTypes, s) {
		return s
	}
	return ""
}
