package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// DocumentTypes are the document types a scanner may report
var DocumentTypes = []string{"invoice", "receipt", "credit-note", "delivery-note", "other"}

// Analysis contains the fields extracted from a document.
// Field names follow the wire format expected by the capture client.
type Analysis struct {
	Vendor        string  `json:"haendler,omitempty"`
	Date          string  `json:"datum,omitempty"` // DD.MM.YYYY
	InvoiceNumber string  `json:"rechnungsnummer,omitempty"`
	DocumentType  string  `json:"dokumenttyp,omitempty"`
	GrossAmount   *Amount `json:"betrag,omitempty"`
	VATRate       *Amount `json:"mwst_satz,omitempty"`
}

// Empty reports whether no field was recognized
func (a *Analysis) Empty() bool {
	return a == nil || (a.Vendor == "" && a.Date == "" && a.InvoiceNumber == "" &&
		a.DocumentType == "" && a.GrossAmount == nil && a.VATRate == nil)
}

// Amount is a decimal that reads JSON numbers as well as German formatted
// strings such as "1.234,56 €" and writes a plain JSON number.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps a decimal
func NewAmount(d decimal.Decimal) *Amount {
	return &Amount{Decimal: d}
}

// UnmarshalJSON accepts numbers, numeric strings and null. Unreadable values become zero.
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		a.Decimal = parseAmount(s)
		return nil
	}
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		a.Decimal = decimal.Zero
		return nil
	}
	a.Decimal = d
	return nil
}

// MarshalJSON writes the amount as a JSON number
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// parseAmount reads a money or percentage value written the German or the English way
func parseAmount(s string) decimal.Decimal {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.', r == '-':
			return r
		}
		return -1
	}, s)
	if s == "" {
		return decimal.Zero
	}

	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma > dot:
		// 1.234,56
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case dot > comma && comma >= 0:
		// 1,234.56
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Scanner defines the interface for document scanning operations
type Scanner interface {
	// ScanReceipt analyzes a receipt image/PDF and extracts its fields
	ScanReceipt(ctx context.Context, data []byte, contentType string) (*Analysis, error)
	// Close closes the scanner and releases resources
	Close() error
}
