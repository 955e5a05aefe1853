package capture

import "strings"

const (
	msgFieldRequired = "Dieses Feld ist erforderlich"
	msgInvalidAmount = "Bitte geben Sie einen gültigen Betrag ein"
)

var numericFields = map[Field]bool{
	FieldGrossAmount: true,
}

// validateField returns the inline error for a field value, or "" when the value is valid
func validateField(field Field, value string) string {
	blank := strings.TrimSpace(value) == ""
	if isRequired(field) && blank {
		return msgFieldRequired
	}
	if numericFields[field] && !blank && !parseDecimal(value).IsPositive() {
		return msgInvalidAmount
	}
	return ""
}
