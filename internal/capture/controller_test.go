package capture

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("Controller", func() {
	var (
		ctx         context.Context
		cancel      context.CancelFunc
		view        *fakePresenter
		analysis    *mockAnalysis
		persistence *mockPersistence
		opts        Options
		ctrl        *Controller
		today       = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	)

	state := func() State {
		s, err := ctrl.Snapshot(ctx)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	lastMessage := func() *Message {
		return state().Message
	}

	jpeg := func(size int) File {
		return File{Name: "beleg.jpg", ContentType: "image/jpeg", Data: make([]byte, size)}
	}

	fillForm := func() {
		ctrl.Dispatch(FieldEdited{Field: FieldVendor, Value: "ACME"})
		ctrl.Dispatch(FieldEdited{Field: FieldDocumentType, Value: "invoice"})
		ctrl.Dispatch(FieldEdited{Field: FieldGrossAmount, Value: "100"})
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		view = newFakePresenter()
		analysis = &mockAnalysis{
			result: &Analysis{Vendor: "ACME", Date: "05.03.2024", GrossAmount: "100", VATRate: "19"},
		}
		persistence = &mockPersistence{
			stats: &Stats{
				Income:   decimal.NewFromInt(100),
				Expenses: decimal.Zero,
				Total:    decimal.NewFromInt(100),
			},
		}
		opts = Options{
			SettleDelay: time.Millisecond,
			MessageTTL:  time.Hour,
			Now:         func() time.Time { return today },
		}
	})

	JustBeforeEach(func() {
		ctrl = New(analysis, persistence, view, opts)
		go ctrl.Run(ctx)
	})

	AfterEach(func() {
		cancel()
	})

	Describe("start", func() {
		It("should initialize the form with today's date and the default VAT rate", func() {
			s := state()
			Expect(s.Form.Date).To(Equal("2024-06-01"))
			Expect(s.Form.VATRate).To(Equal("19"))
			Expect(view.field(FieldDate)).To(Equal("2024-06-01"))
			Expect(s.Session.Zoom).To(Equal(1.0))
			Expect(s.Phase).To(Equal(PhaseIdle))
		})

		When("a stats source is configured", func() {
			BeforeEach(func() {
				opts.StatsSource = &mockStatsSource{stats: &Stats{Income: decimal.NewFromInt(7), Total: decimal.NewFromInt(7)}}
			})

			It("should show the loaded stats", func() {
				Eventually(func() string { return state().Stats.Total.String() }).Should(Equal("7"))
			})
		})

		When("loading stats fails", func() {
			BeforeEach(func() {
				opts.StatsSource = &mockStatsSource{err: errors.New("offline")}
			})

			It("should keep zero stats", func() {
				Consistently(func() bool { return state().Stats.Total.IsZero() }, 50*time.Millisecond).Should(BeTrue())
			})
		})
	})

	Describe("file intake", func() {
		When("a 2 MB JPEG is analyzed successfully", func() {
			JustBeforeEach(func() {
				ctrl.Dispatch(FileSelected{File: jpeg(2 << 20)})
				Eventually(func() Phase { return state().Phase }).Should(Equal(PhaseSucceeded))
			})

			It("should show the preview", func() {
				Expect(view.isPreviewShown()).To(BeTrue())
				Expect(state().PreviewVisible).To(BeTrue())
				Expect(view.shownPreview().Source).To(HavePrefix("data:image/jpeg;base64,"))
			})

			It("should call the analysis service once with the file", func() {
				Expect(analysis.callCount()).To(Equal(1))
				Expect(analysis.call(0).Name).To(Equal("beleg.jpg"))
			})

			It("should populate the form from the analysis", func() {
				form := state().Form
				Expect(form.Vendor).To(Equal("ACME"))
				Expect(form.Date).To(Equal("2024-03-05"))
				Expect(form.GrossAmount).To(Equal("100"))
				Expect(form.VATRate).To(Equal("19"))
				Expect(form.NetAmount).To(Equal("84.03"))
				Expect(view.field(FieldNetAmount)).To(Equal("84.03"))
			})

			It("should tag auto-filled fields with their confidence", func() {
				conf := state().Confidence
				Expect(conf).To(HaveKeyWithValue(FieldVendor, ConfidenceHigh))
				Expect(conf).To(HaveKeyWithValue(FieldDate, ConfidenceHigh))
				Expect(conf).To(HaveKeyWithValue(FieldGrossAmount, ConfidenceHigh))
				Expect(conf).NotTo(HaveKey(FieldVATRate))
				Expect(conf).NotTo(HaveKey(FieldInvoiceNumber))
			})

			It("should walk the progress checkpoints and hide the bar", func() {
				Expect(view.progressCalls()).To(Equal([]progressCall{
					{20, labelUploading},
					{70, labelAnalyzing},
					{100, labelDone},
				}))
				Expect(view.isProgressShown()).To(BeFalse())
			})

			It("should release the processing guard", func() {
				Expect(state().Session.Processing).To(BeFalse())
			})

			It("should report success", func() {
				Expect(lastMessage()).To(Equal(&Message{Severity: SeveritySuccess, Text: msgAnalyzed}))
			})
		})

		When("the file is larger than 10 MB", func() {
			JustBeforeEach(func() {
				ctrl.Dispatch(FileSelected{File: jpeg(15 << 20)})
			})

			It("should reject it without a network call", func() {
				s := state()
				Expect(s.Message).To(Equal(&Message{Severity: SeverityError, Text: "Die Datei ist zu groß. Maximum: 10 MB"}))
				Expect(s.Session.Processing).To(BeFalse())
				Expect(s.Session.File).To(BeNil())
				Expect(analysis.callCount()).To(Equal(0))
			})
		})

		When("the file is not an image or PDF", func() {
			JustBeforeEach(func() {
				ctrl.Dispatch(FileSelected{File: File{Name: "notes.txt", ContentType: "text/plain", Data: []byte("hi")}})
			})

			It("should reject it without a network call", func() {
				Expect(lastMessage()).To(Equal(&Message{Severity: SeverityError, Text: msgWrongFileType}))
				Expect(analysis.callCount()).To(Equal(0))
			})
		})

		When("a file arrives while another is processed", func() {
			BeforeEach(func() {
				analysis.release = make(chan struct{})
			})

			It("should drop it silently", func() {
				ctrl.Dispatch(FileSelected{File: jpeg(10)})
				Eventually(analysis.callCount).Should(Equal(1))
				ctrl.Dispatch(FileSelected{File: File{Name: "second.png", ContentType: "image/png", Data: []byte("x")}})

				s := state()
				Expect(s.Session.File.Name).To(Equal("beleg.jpg"))
				Expect(s.Session.Processing).To(BeTrue())
				Expect(s.Message).To(BeNil())
				close(analysis.release)
				Eventually(func() bool { return state().Session.Processing }).Should(BeFalse())
				Expect(analysis.callCount()).To(Equal(1))
			})
		})

		When("the analysis transport fails", func() {
			BeforeEach(func() {
				analysis.err = errors.New("connection refused")
				analysis.noAnswer = true
			})

			JustBeforeEach(func() {
				ctrl.Dispatch(FileSelected{File: jpeg(10)})
				Eventually(func() Phase { return state().Phase }).Should(Equal(PhaseFailed))
			})

			It("should hide the progress and show the upload error", func() {
				Expect(view.isProgressShown()).To(BeFalse())
				Expect(lastMessage()).To(Equal(&Message{Severity: SeverityError, Text: msgUploadFailed}))
				Expect(view.progressCalls()).NotTo(ContainElement(progressCall{100, labelDone}))
			})

			It("should accept the next file right away", func() {
				Expect(state().Session.Processing).To(BeFalse())
				ctrl.Dispatch(FileSelected{File: jpeg(10)})
				Eventually(analysis.callCount).Should(Equal(2))
			})
		})

		When("the analysis service answers with an error", func() {
			BeforeEach(func() {
				analysis.err = &ServerError{Status: 500, Message: "Analyse fehlgeschlagen"}
			})

			It("should show the server message", func() {
				ctrl.Dispatch(FileSelected{File: jpeg(10)})
				Eventually(func() Phase { return state().Phase }).Should(Equal(PhaseFailed))
				Expect(lastMessage()).To(Equal(&Message{Severity: SeverityError, Text: "Analyse fehlgeschlagen"}))
				Expect(state().Session.Processing).To(BeFalse())
				Expect(view.isProgressShown()).To(BeFalse())
			})
		})

		When("the analysis error has no message", func() {
			BeforeEach(func() {
				analysis.err = &ServerError{Status: 502}
			})

			It("should fall back to the generic message", func() {
				ctrl.Dispatch(FileSelected{File: jpeg(10)})
				Eventually(lastMessage).Should(Equal(&Message{Severity: SeverityError, Text: msgProcessingFailed}))
			})
		})

		When("nothing was recognized", func() {
			BeforeEach(func() {
				analysis.result = nil
			})

			It("should show a neutral warning and leave the form alone", func() {
				ctrl.Dispatch(FileSelected{File: jpeg(10)})
				Eventually(lastMessage).Should(Equal(&Message{Severity: SeverityWarning, Text: msgNothingRecognized}))
				Expect(state().Form.Vendor).To(BeEmpty())
				Expect(state().Phase).To(Equal(PhaseSucceeded))
			})

			It("should treat an analysis without any field the same way", func() {
				analysis.mu.Lock()
				analysis.result = &Analysis{}
				analysis.mu.Unlock()

				ctrl.Dispatch(FileSelected{File: jpeg(10)})
				Eventually(lastMessage).Should(Equal(&Message{Severity: SeverityWarning, Text: msgNothingRecognized}))
			})
		})

		When("the analysis only has some fields", func() {
			BeforeEach(func() {
				analysis.result = &Analysis{Vendor: "Bäckerei", DocumentType: "banana", VATRate: "7.0"}
			})

			It("should keep the other fields and ignore unknown options", func() {
				ctrl.Dispatch(FieldEdited{Field: FieldInvoiceNumber, Value: "R-1"})
				ctrl.Dispatch(FieldEdited{Field: FieldGrossAmount, Value: "10.70"})
				ctrl.Dispatch(FileSelected{File: jpeg(10)})
				Eventually(func() Phase { return state().Phase }).Should(Equal(PhaseSucceeded))

				s := state()
				Expect(s.Form.Vendor).To(Equal("Bäckerei"))
				Expect(s.Form.InvoiceNumber).To(Equal("R-1"))
				Expect(s.Form.DocumentType).To(BeEmpty())
				Expect(s.Form.VATRate).To(Equal("7"))
				Expect(s.Form.NetAmount).To(Equal("10.00"))
				Expect(s.Confidence).NotTo(HaveKey(FieldDocumentType))
			})
		})

		DescribeTable("should ignore VAT rates that are not numbers",
			func(rate string) {
				analysis.mu.Lock()
				analysis.result = &Analysis{Vendor: "ACME", GrossAmount: "100", VATRate: rate}
				analysis.mu.Unlock()
				ctrl.Dispatch(FileSelected{File: jpeg(10)})
				Eventually(func() Phase { return state().Phase }).Should(Equal(PhaseSucceeded))

				s := state()
				Expect(s.Form.Vendor).To(Equal("ACME"))
				Expect(s.Form.VATRate).To(Equal("19"))
				Expect(s.Form.NetAmount).To(Equal("84.03"))
			},
			Entry("percent sign", "19%"),
			Entry("not available", "n/a"),
			Entry("letters", "abc"),
		)

		When("the document is deleted while the analysis is in flight", func() {
			BeforeEach(func() {
				analysis.release = make(chan struct{})
			})

			It("should discard the late result", func() {
				ctrl.Dispatch(FileSelected{File: jpeg(10)})
				Eventually(analysis.callCount).Should(Equal(1))
				ctrl.Dispatch(DeleteDocument{})
				close(analysis.release)

				Eventually(func() bool { return state().Session.Processing }).Should(BeFalse())
				s := state()
				Expect(s.Form.Vendor).To(BeEmpty())
				Expect(s.Confidence).To(BeEmpty())
				Expect(s.Message).To(BeNil())
				Expect(s.PreviewVisible).To(BeFalse())
				Expect(view.isProgressShown()).To(BeFalse())
			})
		})
	})

	Describe("form editing", func() {
		It("should recompute the net amount when gross or rate change", func() {
			ctrl.Dispatch(FieldEdited{Field: FieldGrossAmount, Value: "119"})
			Expect(state().Form.NetAmount).To(Equal("100.00"))

			ctrl.Dispatch(FieldEdited{Field: FieldVATRate, Value: "7"})
			Expect(state().Form.NetAmount).To(Equal("111.21"))

			ctrl.Dispatch(FieldEdited{Field: FieldGrossAmount, Value: ""})
			Expect(state().Form.NetAmount).To(BeEmpty())
		})

		It("should ignore edits of the net amount", func() {
			ctrl.Dispatch(FieldEdited{Field: FieldNetAmount, Value: "5"})
			Expect(state().Form.NetAmount).To(BeEmpty())
		})

		It("should mark an empty required field on blur", func() {
			ctrl.Dispatch(FieldBlurred{Field: FieldVendor})
			Expect(state().FieldErrors).To(HaveKeyWithValue(FieldVendor, msgFieldRequired))
		})

		It("should mark a non-positive amount on blur", func() {
			ctrl.Dispatch(FieldEdited{Field: FieldGrossAmount, Value: "0"})
			ctrl.Dispatch(FieldBlurred{Field: FieldGrossAmount})
			Expect(state().FieldErrors).To(HaveKeyWithValue(FieldGrossAmount, msgInvalidAmount))
		})

		It("should clear an error on input even if the value is still invalid", func() {
			ctrl.Dispatch(FieldBlurred{Field: FieldGrossAmount})
			Expect(state().FieldErrors).To(HaveKey(FieldGrossAmount))

			ctrl.Dispatch(FieldEdited{Field: FieldGrossAmount, Value: "-1"})
			Expect(state().FieldErrors).NotTo(HaveKey(FieldGrossAmount))
		})

		It("should not validate optional fields on blur", func() {
			ctrl.Dispatch(FieldBlurred{Field: FieldInvoiceNumber})
			Expect(state().FieldErrors).To(BeEmpty())
		})
	})

	Describe("preview transform", func() {
		It("should rotate and zoom", func() {
			ctrl.Dispatch(RotateLeft{})
			ctrl.Dispatch(ZoomIn{})
			s := state()
			Expect(s.Session.Rotation).To(Equal(270))
			Expect(s.Session.Zoom).To(Equal(1.2))
			Expect(view.lastTransform()).To(Equal(Transform{Rotation: 270, Zoom: 1.2}))
		})

		It("should ignore shortcuts while no preview is visible", func() {
			ctrl.Dispatch(KeyPressed{Key: "r", Ctrl: true})
			Expect(state().Session.Rotation).To(Equal(0))
		})

		When("a preview is visible", func() {
			JustBeforeEach(func() {
				ctrl.Dispatch(FileSelected{File: jpeg(10)})
				Eventually(func() bool { return state().PreviewVisible }).Should(BeTrue())
			})

			It("should apply shortcuts", func() {
				ctrl.Dispatch(KeyPressed{Key: "r", Ctrl: true})
				ctrl.Dispatch(KeyPressed{Key: "+", Ctrl: true})
				s := state()
				Expect(s.Session.Rotation).To(Equal(90))
				Expect(s.Session.Zoom).To(Equal(1.2))
			})

			It("should ignore shortcuts typed into text inputs", func() {
				ctrl.Dispatch(KeyPressed{Key: "l", Ctrl: true, InTextInput: true})
				Expect(state().Session.Rotation).To(Equal(0))
			})

			It("should reset everything on delete", func() {
				Eventually(func() Phase { return state().Phase }).Should(Equal(PhaseSucceeded))
				ctrl.Dispatch(RotateRight{})
				ctrl.Dispatch(ZoomOut{})
				ctrl.Dispatch(FieldBlurred{Field: FieldDocumentType})
				ctrl.Dispatch(DeleteDocument{})

				s := state()
				Expect(s.Session.File).To(BeNil())
				Expect(s.Session.Rotation).To(Equal(0))
				Expect(s.Session.Zoom).To(Equal(1.0))
				Expect(s.PreviewVisible).To(BeFalse())
				Expect(s.Form).To(Equal(Form{Date: "2024-06-01", VATRate: "19"}))
				Expect(s.Confidence).To(BeEmpty())
				Expect(s.FieldErrors).To(BeEmpty())
				Expect(view.isPreviewShown()).To(BeFalse())
				Expect(view.field(FieldVendor)).To(BeEmpty())
			})
		})
	})

	Describe("submission", func() {
		When("a required field is empty", func() {
			It("should abort before any network call", func() {
				ctrl.Dispatch(FieldEdited{Field: FieldDocumentType, Value: "invoice"})
				ctrl.Dispatch(FieldEdited{Field: FieldGrossAmount, Value: "100"})
				ctrl.Dispatch(Submit{})

				s := state()
				Expect(s.Message).To(Equal(&Message{Severity: SeverityError, Text: msgRequiredFields}))
				Expect(s.FieldErrors).To(HaveKeyWithValue(FieldVendor, msgFieldRequired))
				Expect(s.SubmitLoading).To(BeFalse())
				Expect(persistence.saved()).To(BeEmpty())
			})

			It("should mark every invalid required field", func() {
				ctrl.Dispatch(FieldEdited{Field: FieldGrossAmount, Value: "0"})
				ctrl.Dispatch(Submit{})

				s := state()
				Expect(s.FieldErrors).To(Equal(map[Field]string{
					FieldVendor:       msgFieldRequired,
					FieldDocumentType: msgFieldRequired,
					FieldGrossAmount:  msgInvalidAmount,
				}))
				Expect(persistence.saved()).To(BeEmpty())
			})
		})

		When("saving succeeds", func() {
			JustBeforeEach(func() {
				ctrl.Dispatch(FileSelected{File: jpeg(10)})
				Eventually(func() Phase { return state().Phase }).Should(Equal(PhaseSucceeded))
				ctrl.Dispatch(FieldEdited{Field: FieldDocumentType, Value: "invoice"})
				ctrl.Dispatch(Submit{})
				Eventually(view.loadingCalls).Should(Equal([]bool{true, false}))
			})

			It("should send the serialized form", func() {
				saved := persistence.saved()
				Expect(saved).To(HaveLen(1))
				Expect(saved[0].Vendor).To(Equal("ACME"))
				Expect(saved[0].Date).To(Equal("2024-03-05"))
				Expect(*saved[0].GrossAmount).To(Equal(100.0))
				Expect(*saved[0].NetAmount).To(Equal(84.03))
				Expect(saved[0].FileName).To(Equal("beleg.jpg"))
			})

			It("should show the success message and the new stats", func() {
				s := state()
				Expect(s.Message).To(Equal(&Message{Severity: SeveritySuccess, Text: msgSaved}))
				Expect(s.Stats.Income.String()).To(Equal("100"))
				Expect(s.Stats.Total.String()).To(Equal("100"))
			})

			It("should reset the session", func() {
				s := state()
				Expect(s.Session.File).To(BeNil())
				Expect(s.Form).To(Equal(Form{Date: "2024-06-01", VATRate: "19"}))
				Expect(s.Confidence).To(BeEmpty())
				Expect(s.SubmitLoading).To(BeFalse())
			})
		})

		When("no file was captured", func() {
			It("should send an empty file name", func() {
				fillForm()
				ctrl.Dispatch(Submit{})
				Eventually(persistence.saved).Should(HaveLen(1))
				Expect(persistence.saved()[0].FileName).To(BeEmpty())
			})
		})

		When("the persistence service answers with an error", func() {
			BeforeEach(func() {
				persistence.err = &ServerError{Status: 400, Message: "Keine Daten erhalten"}
			})

			It("should show it and keep the form", func() {
				fillForm()
				ctrl.Dispatch(Submit{})
				Eventually(view.loadingCalls).Should(Equal([]bool{true, false}))
				s := state()
				Expect(s.Message).To(Equal(&Message{Severity: SeverityError, Text: "Keine Daten erhalten"}))
				Expect(s.Form.Vendor).To(Equal("ACME"))
			})
		})

		When("the persistence transport fails", func() {
			BeforeEach(func() {
				persistence.err = errors.New("connection reset")
			})

			It("should show the generic save error and clear the loading state", func() {
				fillForm()
				ctrl.Dispatch(Submit{})
				Eventually(view.loadingCalls).Should(Equal([]bool{true, false}))
				Expect(lastMessage()).To(Equal(&Message{Severity: SeverityError, Text: msgSaveTransportFailed}))
				Expect(state().SubmitLoading).To(BeFalse())
			})
		})

		When("a submission is already in flight", func() {
			BeforeEach(func() {
				persistence.release = make(chan struct{})
			})

			It("should ignore the second submit", func() {
				fillForm()
				ctrl.Dispatch(Submit{})
				ctrl.Dispatch(Submit{})
				Expect(state().SubmitLoading).To(BeTrue())
				close(persistence.release)
				Eventually(func() bool { return state().SubmitLoading }).Should(BeFalse())
				Expect(persistence.saved()).To(HaveLen(1))
			})
		})

		When("the form is replaced while saving", func() {
			BeforeEach(func() {
				persistence.release = make(chan struct{})
			})

			It("should update the stats but keep the new form", func() {
				fillForm()
				ctrl.Dispatch(Submit{})
				ctrl.Dispatch(NewScan{})
				ctrl.Dispatch(FieldEdited{Field: FieldVendor, Value: "Neu"})
				close(persistence.release)

				Eventually(func() bool { return state().SubmitLoading }).Should(BeFalse())
				s := state()
				Expect(s.Form.Vendor).To(Equal("Neu"))
				Expect(s.Stats.Total.String()).To(Equal("100"))
			})
		})

		When("an analysis is running", func() {
			BeforeEach(func() {
				analysis.release = make(chan struct{})
			})

			It("should not submit", func() {
				fillForm()
				ctrl.Dispatch(FileSelected{File: jpeg(10)})
				ctrl.Dispatch(Submit{})
				Expect(state().SubmitLoading).To(BeFalse())
				Expect(persistence.saved()).To(BeEmpty())
				close(analysis.release)
			})
		})
	})

	Describe("messages", func() {
		When("the success message lifetime is short", func() {
			BeforeEach(func() {
				opts.MessageTTL = 20 * time.Millisecond
			})

			It("should hide a success message on its own", func() {
				ctrl.Dispatch(FileSelected{File: jpeg(10)})
				Eventually(func() Phase { return state().Phase }).Should(Equal(PhaseSucceeded))
				Eventually(lastMessage).Should(BeNil())
				Expect(view.isMessageShown()).To(BeFalse())
			})

			It("should keep error messages", func() {
				ctrl.Dispatch(Submit{})
				Consistently(lastMessage, 80*time.Millisecond).ShouldNot(BeNil())
			})
		})

		It("should hide the message on new scan", func() {
			ctrl.Dispatch(Submit{})
			Expect(lastMessage()).NotTo(BeNil())
			ctrl.Dispatch(NewScan{})
			Expect(lastMessage()).To(BeNil())
		})

		It("should hide the message when dismissed", func() {
			ctrl.Dispatch(Submit{})
			ctrl.Dispatch(DismissMessage{})
			Expect(lastMessage()).To(BeNil())
		})
	})
})
