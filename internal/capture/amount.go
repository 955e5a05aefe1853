package capture

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// parseDecimal reads a user-entered number. Anything that is not a number reads as zero.
func parseDecimal(s string) decimal.Decimal {
	s = normalizeNumber(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// NetAmount derives the net amount from a gross amount and a VAT rate in percent,
// rounded to two places. It returns "" unless the gross amount is positive.
func NetAmount(gross, vatRate string) string {
	g := parseDecimal(gross)
	if !g.IsPositive() {
		return ""
	}
	divisor := one.Add(parseDecimal(vatRate).Div(hundred))
	if !divisor.IsPositive() {
		return ""
	}
	return g.Div(divisor).StringFixed(2)
}

// NormalizeDate rewrites a day.month.year date as year-month-day.
// Values without dots are returned unchanged.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ".") {
		return s
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return s
	}
	day, month, year := parts[0], parts[1], parts[2]
	return year + "-" + padTwo(month) + "-" + padTwo(day)
}

func padTwo(s string) string {
	if len(s) >= 2 {
		return s
	}
	return strings.Repeat("0", 2-len(s)) + s
}
