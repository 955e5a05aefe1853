package capture

import "strings"

// Event is an input to the controller loop
type Event interface {
	event()
}

// FileSelected is a file dropped on or picked from the intake surface
type FileSelected struct{ File File }

// FieldEdited is an input event on a form field
type FieldEdited struct {
	Field Field
	Value string
}

// FieldBlurred is sent when a form field loses focus
type FieldBlurred struct{ Field Field }

type (
	RotateLeft     struct{}
	RotateRight    struct{}
	ZoomIn         struct{}
	ZoomOut        struct{}
	DeleteDocument struct{}
	Submit         struct{}
	NewScan        struct{}
	DismissMessage struct{}
)

// KeyPressed is a key press outside of any button
type KeyPressed struct {
	Key  string
	Ctrl bool
	// InTextInput is true when focus is in a text input, textarea or select
	InTextInput bool
}

func (FileSelected) event()   {}
func (FieldEdited) event()    {}
func (FieldBlurred) event()   {}
func (RotateLeft) event()     {}
func (RotateRight) event()    {}
func (ZoomIn) event()         {}
func (ZoomOut) event()        {}
func (DeleteDocument) event() {}
func (Submit) event()         {}
func (NewScan) event()        {}
func (DismissMessage) event() {}
func (KeyPressed) event()     {}

// Shortcut maps a key press to the preview event it triggers.
// Surfaces use it to decide whether to swallow the key.
func Shortcut(k KeyPressed) (Event, bool) {
	if k.InTextInput || !k.Ctrl {
		return nil, false
	}
	switch strings.ToLower(k.Key) {
	case "l":
		return RotateLeft{}, true
	case "r":
		return RotateRight{}, true
	case "=", "+":
		return ZoomIn{}, true
	case "-":
		return ZoomOut{}, true
	}
	return nil, false
}

// completions posted back to the loop by background work

type previewReady struct {
	generation uint64
	preview    Preview
}

type analysisResponding struct {
	generation uint64
}

type analysisReturned struct {
	generation uint64
	analysis   *Analysis
	err        error
}

type analysisSettled struct {
	generation uint64
	analysis   *Analysis
	err        error
}

type submissionReturned struct {
	generation uint64
	stats      *Stats
	err        error
}

type statsLoaded struct {
	stats *Stats
	err   error
}

type messageExpired struct {
	seq uint64
}

type snapshotRequest struct {
	reply chan State
}

func (previewReady) event()       {}
func (analysisResponding) event() {}
func (analysisReturned) event()   {}
func (analysisSettled) event()    {}
func (submissionReturned) event() {}
func (statsLoaded) event()        {}
func (messageExpired) event()     {}
func (snapshotRequest) event()    {}
