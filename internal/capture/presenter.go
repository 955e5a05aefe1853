package capture

// Severity classifies a transient message
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Icon returns the icon class shown next to a message of this severity
func (s Severity) Icon() string {
	switch s {
	case SeveritySuccess:
		return "fas fa-check-circle"
	case SeverityError:
		return "fas fa-exclamation-triangle"
	case SeverityWarning:
		return "fas fa-exclamation-circle"
	default:
		return "fas fa-info-circle"
	}
}

// Message is a transient banner message
type Message struct {
	Severity Severity
	Text     string
}

// Preview is a displayable rendering of the current file
type Preview struct {
	Name        string
	ContentType string
	Data        []byte
	// Source is a data URL of the file content
	Source string
}

// Presenter is the presentation surface driven by the controller.
// All methods are called from the controller loop, one at a time.
type Presenter interface {
	ShowPreview(p Preview)
	HidePreview()
	SetTransform(t Transform)

	ShowProgress(percent int, label string)
	HideProgress()

	ShowMessage(m Message)
	HideMessage()

	SetFieldValue(field Field, value string)
	// SetFieldError shows an inline error; an empty message clears it
	SetFieldError(field Field, message string)
	// SetConfidence shows a confidence badge; ConfidenceNone hides it
	SetConfidence(field Field, c Confidence)

	SetStats(s Stats)
	SetSubmitLoading(loading bool)
}
