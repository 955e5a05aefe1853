package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

const (
	msgWrongFileType       = "Bitte wählen Sie eine Bilddatei oder PDF aus."
	msgUploadFailed        = "Fehler beim Hochladen der Datei"
	msgProcessingFailed    = "Fehler beim Verarbeiten der Datei"
	msgAnalyzed            = "Dokument erfolgreich analysiert!"
	msgNothingRecognized   = "Dokument wurde verarbeitet, aber keine Daten erkannt"
	msgRequiredFields      = "Bitte füllen Sie alle Pflichtfelder aus"
	msgSaved               = "Beleg erfolgreich gespeichert!"
	msgSaveFailed          = "Fehler beim Speichern"
	msgSaveTransportFailed = "Fehler beim Speichern des Belegs"

	labelUploading = "Wird hochgeladen..."
	labelAnalyzing = "Wird analysiert..."
	labelDone      = "Fertig!"
)

var msgFileTooLarge = fmt.Sprintf("Die Datei ist zu groß. Maximum: %d MB", MaxFileSize>>20)

// mergePolicy is the order and confidence with which analysis fields are written into the form
var mergePolicy = []struct {
	field Field
	level Confidence
}{
	{FieldVendor, ConfidenceHigh},
	{FieldDate, ConfidenceHigh},
	{FieldInvoiceNumber, ConfidenceMedium},
	{FieldDocumentType, ConfidenceMedium},
	{FieldGrossAmount, ConfidenceHigh},
	{FieldVATRate, ConfidenceNone},
}

// AnalysisService extracts field guesses from a document. responding is
// called once the service starts answering, before the result is decoded.
// A nil Analysis with a nil error means nothing was recognized.
type AnalysisService interface {
	Analyze(ctx context.Context, f File, responding func()) (*Analysis, error)
}

// PersistenceService stores a finalized record and returns the updated stats, if any
type PersistenceService interface {
	Save(ctx context.Context, r Record) (*Stats, error)
}

// StatsSource supplies the stats shown when the controller starts
type StatsSource interface {
	Stats(ctx context.Context) (*Stats, error)
}

// Options tunes the controller. Zero values take defaults.
type Options struct {
	// SettleDelay is how long the finished progress bar stays visible
	SettleDelay time.Duration
	// MessageTTL is how long a success message stays visible
	MessageTTL time.Duration
	// VATRates are the rates offered by the surface, in percent
	VATRates []string
	// DefaultVATRate is the rate selected on a fresh form
	DefaultVATRate string
	// DocumentTypes are the document types offered by the surface
	DocumentTypes []string
	// StatsSource, when set, loads the initial stats
	StatsSource StatsSource
	// Now returns the current time (defaults to time.Now)
	Now func() time.Time
}

// DefaultVATRates are the German VAT rates
var DefaultVATRates = []string{"0", "7", "19"}

// DefaultDocumentTypes are the document types known to the analysis service
var DefaultDocumentTypes = []string{"invoice", "receipt", "credit-note", "delivery-note", "other"}

func (o Options) withDefaults() Options {
	if o.SettleDelay == 0 {
		o.SettleDelay = 500 * time.Millisecond
	}
	if o.MessageTTL == 0 {
		o.MessageTTL = 5 * time.Second
	}
	if len(o.VATRates) == 0 {
		o.VATRates = DefaultVATRates
	}
	if o.DefaultVATRate == "" {
		o.DefaultVATRate = "19"
	}
	if len(o.DocumentTypes) == 0 {
		o.DocumentTypes = DefaultDocumentTypes
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Phase is the state of the analysis request lifecycle
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseUploading
	PhaseAnalyzing
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseUploading:
		return "uploading"
	case PhaseAnalyzing:
		return "analyzing"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "idle"
	}
}

// State is a copy of the controller state
type State struct {
	Session        Session
	Form           Form
	Confidence     map[Field]Confidence
	FieldErrors    map[Field]string
	Stats          Stats
	Phase          Phase
	Message        *Message
	PreviewVisible bool
	SubmitLoading  bool
}

// Controller is the capture session controller. It owns all session state
// and mutates it only on the goroutine running Run.
type Controller struct {
	analysis    AnalysisService
	persistence PersistenceService
	view        Presenter
	opts        Options

	inbox chan Event
	done  chan struct{}
	ctx   context.Context

	session        Session
	form           Form
	confidence     map[Field]Confidence
	fieldErrors    map[Field]string
	stats          Stats
	phase          Phase
	message        *Message
	previewVisible bool
	submitLoading  bool

	// generation changes whenever the form is reset or a new file is accepted
	generation uint64
	messageSeq uint64
}

// New creates a Controller. Call Run to start it.
func New(analysis AnalysisService, persistence PersistenceService, view Presenter, opts Options) *Controller {
	return &Controller{
		analysis:    analysis,
		persistence: persistence,
		view:        view,
		opts:        opts.withDefaults(),
		inbox:       make(chan Event, 64),
		done:        make(chan struct{}),
		confidence:  make(map[Field]Confidence),
		fieldErrors: make(map[Field]string),
		session:     Session{Zoom: 1},
	}
}

// Run processes events until ctx is done. It must be called once.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	c.ctx = ctx
	c.start()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.inbox:
			c.handle(ev)
		}
	}
}

// Dispatch queues an input event. It is safe to call from any goroutine.
func (c *Controller) Dispatch(ev Event) {
	select {
	case c.inbox <- ev:
	case <-c.done:
	}
}

// Snapshot returns a copy of the current state, taken on the controller loop
func (c *Controller) Snapshot(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	select {
	case c.inbox <- snapshotRequest{reply: reply}:
	case <-c.done:
		return State{}, ErrStopped
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-c.done:
		return State{}, ErrStopped
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (c *Controller) start() {
	c.form = c.freshForm()
	for _, f := range FormFields {
		c.view.SetFieldValue(f, c.form.Get(f))
	}
	c.setStats(Stats{})
	if c.opts.StatsSource != nil {
		src, ctx := c.opts.StatsSource, c.ctx
		go func() {
			stats, err := src.Stats(ctx)
			c.post(statsLoaded{stats: stats, err: err})
		}()
	}
}

// post is Dispatch for completions of background work
func (c *Controller) post(ev Event) {
	c.Dispatch(ev)
}

// after posts ev once d has elapsed
func (c *Controller) after(d time.Duration, ev Event) {
	time.AfterFunc(d, func() { c.post(ev) })
}

func (c *Controller) handle(ev Event) {
	switch e := ev.(type) {
	case FileSelected:
		c.acceptFile(e.File)
	case FieldEdited:
		c.editField(e.Field, e.Value)
	case FieldBlurred:
		c.blurField(e.Field)
	case RotateLeft:
		c.rotate(-rotationStep)
	case RotateRight:
		c.rotate(rotationStep)
	case ZoomIn:
		c.zoom(zoomInFactor)
	case ZoomOut:
		c.zoom(zoomOutFactor)
	case DeleteDocument:
		c.deleteDocument()
	case Submit:
		c.submit()
	case NewScan:
		c.deleteDocument()
		c.hideMessage()
	case DismissMessage:
		c.hideMessage()
	case KeyPressed:
		c.keyPressed(e)
	case previewReady:
		c.previewReady(e)
	case analysisResponding:
		c.analysisResponding(e)
	case analysisReturned:
		c.analysisReturned(e)
	case analysisSettled:
		c.analysisSettled(e)
	case submissionReturned:
		c.submissionReturned(e)
	case statsLoaded:
		c.statsLoaded(e)
	case messageExpired:
		if e.seq == c.messageSeq && c.message != nil {
			c.hideMessage()
		}
	case snapshotRequest:
		e.reply <- c.snapshot()
	default:
		slog.Warn("Unhandled capture event", "event", fmt.Sprintf("%T", ev))
	}
}

func (c *Controller) snapshot() State {
	s := State{
		Session:        c.session,
		Form:           c.form,
		Confidence:     maps.Clone(c.confidence),
		FieldErrors:    maps.Clone(c.fieldErrors),
		Stats:          c.stats,
		Phase:          c.phase,
		PreviewVisible: c.previewVisible,
		SubmitLoading:  c.submitLoading,
	}
	if c.message != nil {
		m := *c.message
		s.Message = &m
	}
	return s
}

// Intake

func (c *Controller) acceptFile(f File) {
	if c.session.Processing {
		slog.Debug("Dropping file while another is processed", "filename", f.Name)
		return
	}

	f.ContentType = contentTypeOf(f)
	if err := checkFile(f); err != nil {
		slog.Info("Rejected file", "filename", f.Name, "content_type", f.ContentType, "size", f.Size(), "error", err)
		switch {
		case errors.Is(err, ErrFileTooLarge):
			c.showMessage(Message{Severity: SeverityError, Text: msgFileTooLarge})
		default:
			c.showMessage(Message{Severity: SeverityError, Text: msgWrongFileType})
		}
		return
	}

	c.generation++
	c.session.File = &f
	c.session.Rotation = 0
	c.session.Zoom = 1

	gen := c.generation
	go c.renderPreview(gen, f)
	c.startAnalysis(gen, f)
}

func (c *Controller) renderPreview(gen uint64, f File) {
	p := Preview{
		Name:        f.Name,
		ContentType: f.ContentType,
		Data:        f.Data,
		Source:      "data:" + f.ContentType + ";base64," + base64.StdEncoding.EncodeToString(f.Data),
	}
	c.post(previewReady{generation: gen, preview: p})
}

func (c *Controller) previewReady(e previewReady) {
	if e.generation != c.generation {
		slog.Debug("Discarding stale preview", "filename", e.preview.Name)
		return
	}
	c.previewVisible = true
	c.view.ShowPreview(e.preview)
	c.view.SetTransform(c.transform())
}

// Analysis lifecycle

func (c *Controller) startAnalysis(gen uint64, f File) {
	c.session.Processing = true
	c.phase = PhaseUploading
	c.view.ShowProgress(20, labelUploading)
	slog.Debug("Analysis started", "filename", f.Name, "size", f.Size())

	svc, ctx := c.analysis, c.ctx
	go func() {
		a, err := svc.Analyze(ctx, f, func() {
			c.post(analysisResponding{generation: gen})
		})
		c.post(analysisReturned{generation: gen, analysis: a, err: err})
	}()
}

func (c *Controller) analysisResponding(e analysisResponding) {
	if e.generation != c.generation {
		return
	}
	c.phase = PhaseAnalyzing
	c.view.ShowProgress(70, labelAnalyzing)
}

func (c *Controller) analysisReturned(e analysisReturned) {
	var serverErr *ServerError
	if e.err != nil && !errors.As(e.err, &serverErr) {
		slog.Warn("Analysis request failed", "error", e.err)
		c.view.HideProgress()
		c.session.Processing = false
		if e.generation != c.generation {
			c.phase = PhaseIdle
			return
		}
		c.phase = PhaseFailed
		c.showMessage(Message{Severity: SeverityError, Text: msgUploadFailed})
		return
	}
	if e.generation == c.generation {
		c.view.ShowProgress(100, labelDone)
	}
	c.after(c.opts.SettleDelay, analysisSettled(e))
}

func (c *Controller) analysisSettled(e analysisSettled) {
	c.view.HideProgress()
	c.session.Processing = false

	if e.generation != c.generation {
		slog.Debug("Discarding stale analysis result")
		c.phase = PhaseIdle
		return
	}

	var serverErr *ServerError
	if errors.As(e.err, &serverErr) {
		slog.Warn("Analysis service returned an error", "status", serverErr.Status, "error", serverErr.Message)
		c.phase = PhaseFailed
		text := serverErr.Message
		if text == "" {
			text = msgProcessingFailed
		}
		c.showMessage(Message{Severity: SeverityError, Text: text})
		return
	}

	c.phase = PhaseSucceeded
	c.applyAnalysis(e.analysis)
}

func (c *Controller) applyAnalysis(a *Analysis) {
	if a.Empty() {
		c.showMessage(Message{Severity: SeverityWarning, Text: msgNothingRecognized})
		return
	}

	c.clearConfidence()
	for _, m := range mergePolicy {
		v := a.value(m.field)
		if v == "" {
			continue
		}
		if m.field == FieldDate {
			v = NormalizeDate(v)
		}
		v, ok := c.allowedValue(m.field, v)
		if !ok {
			slog.Info("Ignoring unknown analysis value", "field", m.field, "value", a.value(m.field))
			continue
		}
		c.setField(m.field, v)
		if m.level != ConfidenceNone {
			c.setConfidence(m.field, m.level)
		}
	}
	c.recomputeNet()
	c.showMessage(Message{Severity: SeveritySuccess, Text: msgAnalyzed})
}

// allowedValue maps v onto the surface's option set for enumerated fields
func (c *Controller) allowedValue(field Field, v string) (string, bool) {
	switch field {
	case FieldVATRate:
		rate, err := decimal.NewFromString(normalizeNumber(v))
		if err != nil {
			return "", false
		}
		for _, allowed := range c.opts.VATRates {
			if parseDecimal(allowed).Equal(rate) {
				return allowed, true
			}
		}
		return "", false
	case FieldDocumentType:
		for _, allowed := range c.opts.DocumentTypes {
			if allowed == v {
				return v, true
			}
		}
		return "", false
	}
	return v, true
}

// Form editing and validation

func (c *Controller) editField(field Field, value string) {
	if field == FieldNetAmount {
		slog.Debug("Ignoring edit of derived field", "field", field)
		return
	}
	c.form.Set(field, value)
	c.clearFieldError(field)
	if field == FieldGrossAmount || field == FieldVATRate {
		c.recomputeNet()
	}
}

func (c *Controller) blurField(field Field) {
	if !isRequired(field) {
		return
	}
	c.validate(field)
}

// validate checks one field and updates its inline error
func (c *Controller) validate(field Field) bool {
	msg := validateField(field, c.form.Get(field))
	if msg == "" {
		c.clearFieldError(field)
		return true
	}
	c.fieldErrors[field] = msg
	c.view.SetFieldError(field, msg)
	return false
}

func (c *Controller) validateForm() error {
	var invalid []Field
	for _, f := range RequiredFields {
		if !c.validate(f) {
			invalid = append(invalid, f)
		}
	}
	if len(invalid) > 0 {
		return &ValidationError{Fields: invalid}
	}
	return nil
}

func (c *Controller) recomputeNet() {
	c.setField(FieldNetAmount, NetAmount(c.form.GrossAmount, c.form.VATRate))
}

func (c *Controller) setField(field Field, value string) {
	c.form.Set(field, value)
	c.view.SetFieldValue(field, value)
}

func (c *Controller) clearFieldError(field Field) {
	delete(c.fieldErrors, field)
	c.view.SetFieldError(field, "")
}

func (c *Controller) setConfidence(field Field, level Confidence) {
	c.confidence[field] = level
	c.view.SetConfidence(field, level)
}

func (c *Controller) clearConfidence() {
	clear(c.confidence)
	for _, f := range FormFields {
		c.view.SetConfidence(f, ConfidenceNone)
	}
}

// Preview transform

func (c *Controller) transform() Transform {
	return Transform{Rotation: c.session.Rotation, Zoom: c.session.Zoom}
}

func (c *Controller) rotate(degrees int) {
	c.session.Rotation = rotateBy(c.session.Rotation, degrees)
	c.view.SetTransform(c.transform())
}

func (c *Controller) zoom(factor float64) {
	c.session.Zoom = zoomBy(c.session.Zoom, factor)
	c.view.SetTransform(c.transform())
}

func (c *Controller) keyPressed(k KeyPressed) {
	ev, ok := Shortcut(k)
	if !ok || !c.previewVisible {
		return
	}
	c.handle(ev)
}

// Reset

// deleteDocument is the full reset: file, preview, transform, form, confidence and errors
func (c *Controller) deleteDocument() {
	c.generation++
	c.session.File = nil
	c.session.Rotation = 0
	c.session.Zoom = 1
	c.previewVisible = false
	c.view.HidePreview()
	c.resetForm()
}

func (c *Controller) resetForm() {
	c.form = c.freshForm()
	for _, f := range FormFields {
		c.view.SetFieldValue(f, c.form.Get(f))
	}
	c.clearConfidence()
	clear(c.fieldErrors)
	for _, f := range FormFields {
		c.view.SetFieldError(f, "")
	}
}

func (c *Controller) freshForm() Form {
	return Form{
		Date:    c.opts.Now().Format(time.DateOnly),
		VATRate: c.opts.DefaultVATRate,
	}
}

// Submission

func (c *Controller) submit() {
	if c.session.Processing || c.submitLoading {
		slog.Debug("Ignoring submit while busy", "processing", c.session.Processing, "saving", c.submitLoading)
		return
	}
	if err := c.validateForm(); err != nil {
		slog.Info("Receipt form is incomplete", "error", err)
		c.showMessage(Message{Severity: SeverityError, Text: msgRequiredFields})
		return
	}

	c.setSubmitLoading(true)

	fileName := ""
	if c.session.File != nil {
		fileName = c.session.File.Name
	}
	rec := c.form.Record(fileName)
	gen := c.generation
	svc, ctx := c.persistence, c.ctx
	go func() {
		stats, err := svc.Save(ctx, rec)
		c.post(submissionReturned{generation: gen, stats: stats, err: err})
	}()
}

func (c *Controller) submissionReturned(e submissionReturned) {
	defer c.setSubmitLoading(false)

	if e.err != nil {
		var serverErr *ServerError
		if errors.As(e.err, &serverErr) {
			slog.Warn("Persistence service returned an error", "status", serverErr.Status, "error", serverErr.Message)
			text := serverErr.Message
			if text == "" {
				text = msgSaveFailed
			}
			c.showMessage(Message{Severity: SeverityError, Text: text})
			return
		}
		slog.Warn("Saving receipt failed", "error", e.err)
		c.showMessage(Message{Severity: SeverityError, Text: msgSaveTransportFailed})
		return
	}

	c.showMessage(Message{Severity: SeveritySuccess, Text: msgSaved})
	if e.stats != nil {
		c.setStats(*e.stats)
	}
	if e.generation != c.generation {
		slog.Debug("Form changed while saving, keeping it")
		return
	}
	c.deleteDocument()
}

func (c *Controller) setSubmitLoading(loading bool) {
	c.submitLoading = loading
	c.view.SetSubmitLoading(loading)
}

// Stats and messages

func (c *Controller) statsLoaded(e statsLoaded) {
	if e.err != nil {
		slog.Warn("Loading stats failed", "error", e.err)
		return
	}
	if e.stats != nil {
		c.setStats(*e.stats)
	}
}

func (c *Controller) setStats(s Stats) {
	c.stats = s
	c.view.SetStats(s)
}

func (c *Controller) showMessage(m Message) {
	c.messageSeq++
	c.message = &m
	c.view.ShowMessage(m)
	if m.Severity == SeveritySuccess {
		c.after(c.opts.MessageTTL, messageExpired{seq: c.messageSeq})
	}
}

func (c *Controller) hideMessage() {
	c.message = nil
	c.view.HideMessage()
}
