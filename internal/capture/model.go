package capture

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Field identifies a form field on the presentation surface
type Field string

const (
	FieldVendor        Field = "vendor"
	FieldDate          Field = "date"
	FieldInvoiceNumber Field = "invoice-number"
	FieldDocumentType  Field = "document-type"
	FieldGrossAmount   Field = "gross-amount"
	FieldVATRate       Field = "vat-rate"
	FieldNetAmount     Field = "net-amount"
)

// FormFields lists every field of the receipt form in display order
var FormFields = []Field{
	FieldVendor,
	FieldDate,
	FieldInvoiceNumber,
	FieldDocumentType,
	FieldGrossAmount,
	FieldVATRate,
	FieldNetAmount,
}

// RequiredFields lists the fields that must be filled before submission
var RequiredFields = []Field{
	FieldVendor,
	FieldDate,
	FieldDocumentType,
	FieldGrossAmount,
}

func isRequired(field Field) bool {
	for _, f := range RequiredFields {
		if f == field {
			return true
		}
	}
	return false
}

// Confidence tags how trustworthy an auto-filled value is
type Confidence string

const (
	ConfidenceNone   Confidence = ""
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// File is a document handed over by the intake surface
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the file size in bytes
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// Session is the state of the single active capture session
type Session struct {
	File       *File
	Rotation   int
	Zoom       float64
	Processing bool
}

// Form holds the editable receipt record as text, the way the surface shows it
type Form struct {
	Vendor        string
	Date          string
	InvoiceNumber string
	DocumentType  string
	GrossAmount   string
	VATRate       string
	NetAmount     string
}

// Get returns the value of a field
func (f Form) Get(field Field) string {
	switch field {
	case FieldVendor:
		return f.Vendor
	case FieldDate:
		return f.Date
	case FieldInvoiceNumber:
		return f.InvoiceNumber
	case FieldDocumentType:
		return f.DocumentType
	case FieldGrossAmount:
		return f.GrossAmount
	case FieldVATRate:
		return f.VATRate
	case FieldNetAmount:
		return f.NetAmount
	}
	return ""
}

// Set stores the value of a field. Unknown fields are ignored.
func (f *Form) Set(field Field, value string) {
	switch field {
	case FieldVendor:
		f.Vendor = value
	case FieldDate:
		f.Date = value
	case FieldInvoiceNumber:
		f.InvoiceNumber = value
	case FieldDocumentType:
		f.DocumentType = value
	case FieldGrossAmount:
		f.GrossAmount = value
	case FieldVATRate:
		f.VATRate = value
	case FieldNetAmount:
		f.NetAmount = value
	}
}

// Record serializes the form for the persistence service
func (f Form) Record(fileName string) Record {
	return Record{
		Vendor:        f.Vendor,
		Date:          f.Date,
		InvoiceNumber: f.InvoiceNumber,
		DocumentType:  f.DocumentType,
		GrossAmount:   parseFloat(f.GrossAmount),
		VATRate:       parseFloat(f.VATRate),
		NetAmount:     parseFloat(f.NetAmount),
		FileName:      fileName,
	}
}

// Record is a finalized receipt as sent to the persistence service.
// Numeric fields that do not parse are sent as null.
type Record struct {
	Vendor        string   `json:"vendor"`
	Date          string   `json:"date"`
	InvoiceNumber string   `json:"invoice_number"`
	DocumentType  string   `json:"document_type"`
	GrossAmount   *float64 `json:"gross_amount"`
	VATRate       *float64 `json:"vat_rate"`
	NetAmount     *float64 `json:"net_amount"`
	FileName      string   `json:"file_name"`
}

// Stats is the aggregate snapshot owned by the persistence service
type Stats struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Total    decimal.Decimal `json:"total"`
}

func parseFloat(s string) *float64 {
	s = normalizeNumber(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func normalizeNumber(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
}
