package desktop

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/zombor/belegscanner/internal/capture"
)

var printer = message.NewPrinter(language.German)

// FormatCurrency renders an amount the German way, e.g. "1.234,56 €"
func FormatCurrency(d decimal.Decimal) string {
	v, _ := d.Round(2).Float64()
	return printer.Sprintf("%.2f €", v)
}

var confidenceLabels = map[capture.Confidence]string{
	capture.ConfidenceHigh:   "sicher",
	capture.ConfidenceMedium: "prüfen",
	capture.ConfidenceLow:    "unsicher",
}

// confidenceLabel is the badge text for a confidence level, empty when no badge is shown
func confidenceLabel(c capture.Confidence) string {
	return confidenceLabels[c]
}

// option pairs a form value with its display label
type option struct {
	value string
	label string
}

var documentTypeLabels = map[string]string{
	"invoice":       "Rechnung",
	"receipt":       "Kassenbon",
	"credit-note":   "Gutschrift",
	"delivery-note": "Lieferschein",
	"other":         "Sonstiges",
}

func documentTypeOptions(values []string) []option {
	opts := make([]option, 0, len(values))
	for _, v := range values {
		label, ok := documentTypeLabels[v]
		if !ok {
			label = v
		}
		opts = append(opts, option{value: v, label: label})
	}
	return opts
}

func vatRateOptions(values []string) []option {
	opts := make([]option, 0, len(values))
	for _, v := range values {
		opts = append(opts, option{value: v, label: v + " %"})
	}
	return opts
}

func labels(opts []option) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.label
	}
	return out
}

func labelFor(opts []option, value string) (string, bool) {
	for _, o := range opts {
		if o.value == value {
			return o.label, true
		}
	}
	return "", false
}

func valueFor(opts []option, label string) string {
	for _, o := range opts {
		if o.label == label {
			return o.value
		}
	}
	return ""
}
