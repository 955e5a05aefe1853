package receipt

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a receipt or upload does not exist
var ErrNotFound = errors.New("not found")

// Receipt represents a saved receipt (Beleg) with its booking data
type Receipt struct {
	ID            string           `json:"id"`
	Vendor        string           `json:"vendor"`
	Date          string           `json:"date"` // YYYY-MM-DD
	InvoiceNumber string           `json:"invoice_number"`
	DocumentType  string           `json:"document_type"`
	GrossAmount   *decimal.Decimal `json:"gross_amount"` // negative for expenses
	VATRate       *decimal.Decimal `json:"vat_rate"`
	NetAmount     *decimal.Decimal `json:"net_amount"`
	FileName      string           `json:"file_name"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Gross returns the gross amount, zero when unknown
func (r *Receipt) Gross() decimal.Decimal {
	if r.GrossAmount == nil {
		return decimal.Zero
	}
	return *r.GrossAmount
}

// Stats aggregates all saved receipts
type Stats struct {
	Income   decimal.Decimal
	Expenses decimal.Decimal
	Total    decimal.Decimal
}

// MarshalJSON writes the stats as plain JSON numbers
func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]json.Number{
		"income":   json.Number(s.Income.String()),
		"expenses": json.Number(s.Expenses.String()),
		"total":    json.Number(s.Total.String()),
	})
}

// calculateStats sums positive gross amounts as income and negative ones as expenses
func calculateStats(receipts []*Receipt) Stats {
	stats := Stats{Income: decimal.Zero, Expenses: decimal.Zero}
	for _, r := range receipts {
		gross := r.Gross()
		switch gross.Sign() {
		case 1:
			stats.Income = stats.Income.Add(gross)
		case -1:
			stats.Expenses = stats.Expenses.Add(gross.Abs())
		}
	}
	stats.Total = stats.Income.Sub(stats.Expenses)
	return stats
}
