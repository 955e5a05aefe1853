// Package desktop is the fyne presentation surface of the capture client.
package desktop

import (
	"image"
	"io"
	"log/slog"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fynedesktop "fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/zombor/belegscanner/internal/capture"
)

// acceptedExtensions are offered by the file picker
var acceptedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".tif", ".tiff", ".heic", ".pdf"}

var fieldLabels = map[capture.Field]string{
	capture.FieldVendor:        "Händler",
	capture.FieldDate:          "Datum",
	capture.FieldInvoiceNumber: "Rechnungsnummer",
	capture.FieldDocumentType:  "Dokumenttyp",
	capture.FieldGrossAmount:   "Bruttobetrag",
	capture.FieldVATRate:       "MwSt.-Satz",
	capture.FieldNetAmount:     "Nettobetrag",
}

// Options configures the choices offered by the form
type Options struct {
	VATRates      []string
	DocumentTypes []string
}

// fieldEntry is a text entry that reports focus changes
type fieldEntry struct {
	widget.Entry
	onFocus func(focused bool)
}

func newFieldEntry(onFocus func(bool)) *fieldEntry {
	e := &fieldEntry{onFocus: onFocus}
	e.ExtendBaseWidget(e)
	return e
}

func (e *fieldEntry) FocusGained() {
	e.Entry.FocusGained()
	e.onFocus(true)
}

func (e *fieldEntry) FocusLost() {
	e.Entry.FocusLost()
	e.onFocus(false)
}

// Window is the main capture window. It implements capture.Presenter.
type Window struct {
	fyne.Window

	mu        sync.Mutex
	dispatch  func(capture.Event)
	silent    map[capture.Field]bool
	textFocus bool
	source    image.Image
	transform capture.Transform

	docTypes []option
	vatRates []option

	previewImage  *canvas.Image
	previewNote   *widget.Label
	previewArea   *fyne.Container
	intakeArea    *fyne.Container
	zoomLabel     *widget.Label
	progressBar   *widget.ProgressBar
	progressLabel *widget.Label
	progressArea  *fyne.Container
	messageIcon   *widget.Icon
	messageLabel  *widget.Label
	messageArea   *fyne.Container
	entries       map[capture.Field]*fieldEntry
	selects       map[capture.Field]*widget.Select
	fieldErrors   map[capture.Field]*canvas.Text
	badges        map[capture.Field]*widget.Label
	incomeLabel   *widget.Label
	expensesLabel *widget.Label
	totalLabel    *widget.Label
	submitButton  *widget.Button
}

// New builds the capture window. Bind must be called before the window is shown.
func New(app fyne.App, opts Options) *Window {
	if len(opts.VATRates) == 0 {
		opts.VATRates = capture.DefaultVATRates
	}
	if len(opts.DocumentTypes) == 0 {
		opts.DocumentTypes = capture.DefaultDocumentTypes
	}

	w := &Window{
		Window:      app.NewWindow("Belegscanner"),
		dispatch:    func(capture.Event) {},
		silent:      make(map[capture.Field]bool),
		transform:   capture.Transform{Zoom: 1},
		docTypes:    documentTypeOptions(opts.DocumentTypes),
		vatRates:    vatRateOptions(opts.VATRates),
		entries:     make(map[capture.Field]*fieldEntry),
		selects:     make(map[capture.Field]*widget.Select),
		fieldErrors: make(map[capture.Field]*canvas.Text),
		badges:      make(map[capture.Field]*widget.Label),
	}

	w.setupUI()
	w.setupShortcuts()
	w.SetOnDropped(w.onDropped)
	w.Resize(fyne.NewSize(1100, 750))
	return w
}

// Bind connects the window's input events to a controller
func (w *Window) Bind(dispatch func(capture.Event)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dispatch = dispatch
}

func (w *Window) send(ev capture.Event) {
	w.mu.Lock()
	dispatch := w.dispatch
	w.mu.Unlock()
	dispatch(ev)
}

// setupUI creates the main layout: document on the left, form on the right
func (w *Window) setupUI() {
	w.messageIcon = widget.NewIcon(theme.InfoIcon())
	w.messageLabel = widget.NewLabel("")
	w.messageLabel.Wrapping = fyne.TextWrapWord
	closeButton := widget.NewButtonWithIcon("", theme.CancelIcon(), func() {
		w.send(capture.DismissMessage{})
	})
	w.messageArea = container.NewBorder(nil, nil, w.messageIcon, closeButton, w.messageLabel)
	w.messageArea.Hide()

	w.incomeLabel = widget.NewLabel(FormatCurrency(capture.Stats{}.Income))
	w.expensesLabel = widget.NewLabel(FormatCurrency(capture.Stats{}.Expenses))
	w.totalLabel = widget.NewLabel(FormatCurrency(capture.Stats{}.Total))
	stats := container.NewGridWithColumns(3,
		container.NewVBox(widget.NewLabelWithStyle("Einnahmen", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}), w.incomeLabel),
		container.NewVBox(widget.NewLabelWithStyle("Ausgaben", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}), w.expensesLabel),
		container.NewVBox(widget.NewLabelWithStyle("Summe", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}), w.totalLabel),
	)

	top := container.NewVBox(stats, w.messageArea)
	split := container.NewHSplit(w.documentPanel(), w.formPanel())
	split.SetOffset(0.55)

	w.SetContent(container.NewBorder(top, nil, nil, nil, split))
}

// documentPanel holds the intake area, the preview and its controls
func (w *Window) documentPanel() fyne.CanvasObject {
	selectButton := widget.NewButtonWithIcon("Datei auswählen", theme.FolderOpenIcon(), w.openFile)
	selectButton.Importance = widget.HighImportance
	w.intakeArea = container.NewCenter(container.NewVBox(
		widget.NewLabelWithStyle("Beleg hierher ziehen oder auswählen", fyne.TextAlignCenter, fyne.TextStyle{}),
		widget.NewLabelWithStyle("Bilder oder PDF, maximal 10 MB", fyne.TextAlignCenter, fyne.TextStyle{Italic: true}),
		selectButton,
	))

	w.previewImage = canvas.NewImageFromImage(nil)
	w.previewImage.FillMode = canvas.ImageFillOriginal
	w.previewNote = widget.NewLabel("")
	w.previewNote.Hide()
	w.zoomLabel = widget.NewLabel(w.transform.ZoomLabel())

	controls := container.NewHBox(
		widget.NewButton("⟲", func() { w.send(capture.RotateLeft{}) }),
		widget.NewButton("⟳", func() { w.send(capture.RotateRight{}) }),
		widget.NewButtonWithIcon("", theme.ZoomOutIcon(), func() { w.send(capture.ZoomOut{}) }),
		w.zoomLabel,
		widget.NewButtonWithIcon("", theme.ZoomInIcon(), func() { w.send(capture.ZoomIn{}) }),
		widget.NewButtonWithIcon("Löschen", theme.DeleteIcon(), func() { w.send(capture.DeleteDocument{}) }),
	)
	w.previewArea = container.NewBorder(controls, nil, nil, nil,
		container.NewScroll(container.NewStack(w.previewImage, w.previewNote)))
	w.previewArea.Hide()

	w.progressBar = widget.NewProgressBar()
	w.progressLabel = widget.NewLabel("")
	w.progressArea = container.NewVBox(w.progressLabel, w.progressBar)
	w.progressArea.Hide()

	return container.NewBorder(nil, w.progressArea, nil, nil, container.NewStack(w.intakeArea, w.previewArea))
}

// formPanel holds the receipt form
func (w *Window) formPanel() fyne.CanvasObject {
	rows := container.NewVBox()
	for _, field := range capture.FormFields {
		rows.Add(w.fieldRow(field))
	}

	w.submitButton = widget.NewButtonWithIcon("Fertig", theme.ConfirmIcon(), func() {
		w.send(capture.Submit{})
	})
	w.submitButton.Importance = widget.HighImportance
	newScan := widget.NewButtonWithIcon("Neuer Scan", theme.ContentAddIcon(), func() {
		w.send(capture.NewScan{})
	})

	return container.NewBorder(nil, container.NewHBox(newScan, w.submitButton), nil, nil,
		container.NewVScroll(rows))
}

func (w *Window) fieldRow(field capture.Field) fyne.CanvasObject {
	var input fyne.CanvasObject
	switch field {
	case capture.FieldDocumentType:
		input = w.newSelect(field, w.docTypes)
	case capture.FieldVATRate:
		input = w.newSelect(field, w.vatRates)
	default:
		input = w.newEntry(field)
	}

	badge := widget.NewLabelWithStyle("", fyne.TextAlignTrailing, fyne.TextStyle{Italic: true})
	badge.Hide()
	w.badges[field] = badge

	errText := canvas.NewText("", theme.ErrorColor())
	errText.TextSize = theme.CaptionTextSize()
	errText.Hide()
	w.fieldErrors[field] = errText

	title := widget.NewLabelWithStyle(fieldLabels[field], fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	return container.NewVBox(container.NewBorder(nil, nil, title, badge), input, errText)
}

func (w *Window) newEntry(field capture.Field) *fieldEntry {
	e := newFieldEntry(func(focused bool) {
		w.mu.Lock()
		w.textFocus = focused
		w.mu.Unlock()
		if !focused {
			w.send(capture.FieldBlurred{Field: field})
		}
	})
	switch field {
	case capture.FieldDate:
		e.SetPlaceHolder("JJJJ-MM-TT")
	case capture.FieldGrossAmount:
		e.SetPlaceHolder("0,00")
	case capture.FieldNetAmount:
		// derived from gross amount and VAT rate
		e.Disable()
	}
	e.OnChanged = func(text string) {
		if w.isSilent(field) {
			return
		}
		w.send(capture.FieldEdited{Field: field, Value: text})
	}
	w.entries[field] = e
	return e
}

func (w *Window) newSelect(field capture.Field, opts []option) *widget.Select {
	s := widget.NewSelect(labels(opts), nil)
	s.OnChanged = func(label string) {
		if w.isSilent(field) {
			return
		}
		w.send(capture.FieldEdited{Field: field, Value: valueFor(opts, label)})
	}
	w.selects[field] = s
	return s
}

func (w *Window) isSilent(field capture.Field) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.silent[field]
}

// withSilent runs fn with change notifications of field suppressed
func (w *Window) withSilent(field capture.Field, fn func()) {
	w.mu.Lock()
	w.silent[field] = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.silent[field] = false
		w.mu.Unlock()
	}()
	fn()
}

// setupShortcuts registers the preview keyboard shortcuts
func (w *Window) setupShortcuts() {
	keys := []fyne.KeyName{fyne.KeyL, fyne.KeyR, fyne.KeyEqual, fyne.KeyMinus}
	for _, key := range keys {
		w.Canvas().AddShortcut(&fynedesktop.CustomShortcut{KeyName: key, Modifier: fyne.KeyModifierControl},
			func(fyne.Shortcut) { w.shortcut(key) })
	}
}

func (w *Window) shortcut(key fyne.KeyName) {
	w.mu.Lock()
	inText := w.textFocus
	w.mu.Unlock()
	w.send(capture.KeyPressed{Key: strings.ToLower(string(key)), Ctrl: true, InTextInput: inText})
}

// openFile shows the file picker
func (w *Window) openFile() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, w.Window)
			return
		}
		if reader == nil {
			return
		}
		defer reader.Close()
		w.readFile(reader)
	}, w.Window)
	fd.SetFilter(storage.NewExtensionFileFilter(acceptedExtensions))
	fd.Show()
}

func (w *Window) onDropped(_ fyne.Position, uris []fyne.URI) {
	if len(uris) == 0 {
		return
	}
	reader, err := storage.Reader(uris[0])
	if err != nil {
		slog.Warn("Failed to open dropped file", "uri", uris[0].String(), "error", err)
		return
	}
	defer reader.Close()
	w.readFile(reader)
}

func (w *Window) readFile(reader fyne.URIReadCloser) {
	data, err := io.ReadAll(reader)
	if err != nil {
		slog.Warn("Failed to read file", "uri", reader.URI().String(), "error", err)
		dialog.ShowError(err, w.Window)
		return
	}
	// the controller sniffs the content type
	w.send(capture.FileSelected{File: capture.File{
		Name: reader.URI().Name(),
		Data: data,
	}})
}

// Presenter

func (w *Window) ShowPreview(p capture.Preview) {
	img, err := decodePreview(p)

	w.mu.Lock()
	w.source = img
	t := w.transform
	w.mu.Unlock()

	if err != nil {
		slog.Debug("No image preview", "name", p.Name, "content_type", p.ContentType, "error", err)
		w.previewImage.Image = nil
		w.previewNote.SetText("Keine Vorschau für " + p.Name)
		w.previewNote.Show()
	} else {
		w.previewNote.Hide()
		w.showImage(img, t)
	}
	w.intakeArea.Hide()
	w.previewArea.Show()
}

func (w *Window) HidePreview() {
	w.mu.Lock()
	w.source = nil
	w.mu.Unlock()

	w.previewImage.Image = nil
	w.previewImage.Refresh()
	w.previewArea.Hide()
	w.intakeArea.Show()
}

func (w *Window) SetTransform(t capture.Transform) {
	w.mu.Lock()
	w.transform = t
	src := w.source
	w.mu.Unlock()

	w.zoomLabel.SetText(t.ZoomLabel())
	if src != nil {
		w.showImage(src, t)
	}
}

func (w *Window) showImage(src image.Image, t capture.Transform) {
	img := renderPreview(src, t)
	b := img.Bounds()
	w.previewImage.Image = img
	w.previewImage.SetMinSize(fyne.NewSize(float32(b.Dx()), float32(b.Dy())))
	w.previewImage.Refresh()
}

func (w *Window) ShowProgress(percent int, label string) {
	w.progressBar.SetValue(float64(percent) / 100)
	w.progressLabel.SetText(label)
	w.progressArea.Show()
}

func (w *Window) HideProgress() {
	w.progressArea.Hide()
}

func (w *Window) ShowMessage(m capture.Message) {
	switch m.Severity {
	case capture.SeveritySuccess:
		w.messageIcon.SetResource(theme.ConfirmIcon())
	case capture.SeverityError:
		w.messageIcon.SetResource(theme.ErrorIcon())
	case capture.SeverityWarning:
		w.messageIcon.SetResource(theme.WarningIcon())
	default:
		w.messageIcon.SetResource(theme.InfoIcon())
	}
	w.messageLabel.SetText(m.Text)
	w.messageArea.Show()
}

func (w *Window) HideMessage() {
	w.messageArea.Hide()
}

func (w *Window) SetFieldValue(field capture.Field, value string) {
	w.withSilent(field, func() {
		if e, ok := w.entries[field]; ok {
			e.SetText(value)
			return
		}
		s, ok := w.selects[field]
		if !ok {
			return
		}
		opts := w.docTypes
		if field == capture.FieldVATRate {
			opts = w.vatRates
		}
		if label, ok := labelFor(opts, value); ok {
			s.SetSelected(label)
		} else {
			s.ClearSelected()
		}
	})
}

func (w *Window) SetFieldError(field capture.Field, message string) {
	t, ok := w.fieldErrors[field]
	if !ok {
		return
	}
	t.Text = message
	if message == "" {
		t.Hide()
	} else {
		t.Show()
	}
	t.Refresh()
}

func (w *Window) SetConfidence(field capture.Field, c capture.Confidence) {
	badge, ok := w.badges[field]
	if !ok {
		return
	}
	text := confidenceLabel(c)
	badge.SetText(text)
	if text == "" {
		badge.Hide()
	} else {
		badge.Show()
	}
}

func (w *Window) SetStats(s capture.Stats) {
	w.incomeLabel.SetText(FormatCurrency(s.Income))
	w.expensesLabel.SetText(FormatCurrency(s.Expenses))
	w.totalLabel.SetText(FormatCurrency(s.Total))
}

func (w *Window) SetSubmitLoading(loading bool) {
	if loading {
		w.submitButton.SetText("Wird gespeichert...")
		w.submitButton.Disable()
		return
	}
	w.submitButton.SetText("Fertig")
	w.submitButton.Enable()
}
