package capture

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Analysis holds the field guesses of the analysis service as form text.
// Empty strings mean the field was not recognized.
type Analysis struct {
	Vendor        string
	Date          string
	InvoiceNumber string
	DocumentType  string
	GrossAmount   string
	VATRate       string
}

// Empty reports whether no field was recognized
func (a *Analysis) Empty() bool {
	return a == nil || *a == Analysis{}
}

func (a *Analysis) value(field Field) string {
	switch field {
	case FieldVendor:
		return a.Vendor
	case FieldDate:
		return a.Date
	case FieldInvoiceNumber:
		return a.InvoiceNumber
	case FieldDocumentType:
		return a.DocumentType
	case FieldGrossAmount:
		return a.GrossAmount
	case FieldVATRate:
		return a.VATRate
	}
	return ""
}

// ParseAnalysis decodes the "analysis" object of an upload response.
// It returns nil when the payload is absent or is not a JSON object.
func ParseAnalysis(raw json.RawMessage) *Analysis {
	if len(raw) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil
	}
	return &Analysis{
		Vendor:        textValue(obj["haendler"]),
		Date:          textValue(obj["datum"]),
		InvoiceNumber: textValue(obj["rechnungsnummer"]),
		DocumentType:  textValue(obj["dokumenttyp"]),
		GrossAmount:   textValue(obj["betrag"]),
		VATRate:       textValue(obj["mwst_satz"]),
	}
}

// textValue renders a JSON scalar as form text. Null, false, zero and
// whitespace-only values count as absent.
func textValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == 0 {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}
