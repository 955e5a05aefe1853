package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zombor/belegscanner/internal/scanning"
)

// ErrNoData is returned when a receipt is saved without any fields
var ErrNoData = errors.New("no receipt data")

// IDGenerator generates unique IDs for receipts and uploads
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Upload is the result of analyzing an uploaded document
type Upload struct {
	ImagePath string             `json:"image_path"`
	Analysis  *scanning.Analysis `json:"analysis"`
}

// ReceiptInput is a finalized receipt as sent by the capture client
type ReceiptInput struct {
	Vendor        string           `json:"vendor"`
	Date          string           `json:"date"`
	InvoiceNumber string           `json:"invoice_number"`
	DocumentType  string           `json:"document_type"`
	GrossAmount   *decimal.Decimal `json:"gross_amount"`
	VATRate       *decimal.Decimal `json:"vat_rate"`
	NetAmount     *decimal.Decimal `json:"net_amount"`
	FileName      string           `json:"file_name"`
}

// Service handles receipt operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with UUID IDs and the wall clock
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return NewServiceWithDeps(db, scanner, storage, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(unsafeChars.ReplaceAllString(filepath.Ext(filename), ""))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = whitespace.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")

	// phone cameras produce very long names
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "beleg"
	}
	if ext != "" {
		ext = "." + ext
	}
	return base + ext
}

// AnalyzeUpload stores an uploaded document and runs the scanner on it
func (s *Service) AnalyzeUpload(ctx context.Context, filename string, data []byte, contentType string) (*Upload, error) {
	name := fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(filename))

	savedName, err := s.storage.Save(name, data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	analysis, err := s.scanner.ScanReceipt(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to scan document",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		if delErr := s.storage.Delete(savedName); delErr != nil {
			slog.Warn("Failed to delete upload", "filename", savedName, "error", delErr)
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	if analysis.Empty() {
		slog.Info("Nothing recognized in document", "filename", filename)
		analysis = nil
	}

	return &Upload{
		ImagePath: "/uploads/" + savedName,
		Analysis:  analysis,
	}, nil
}

// SaveReceipt stores a finalized receipt and returns it with the updated stats
func (s *Service) SaveReceipt(input ReceiptInput) (*Receipt, Stats, error) {
	if input == (ReceiptInput{}) {
		return nil, Stats{}, ErrNoData
	}

	receipt := &Receipt{
		ID:            s.idGenerator.Generate(),
		Vendor:        strings.TrimSpace(input.Vendor),
		Date:          strings.TrimSpace(input.Date),
		InvoiceNumber: strings.TrimSpace(input.InvoiceNumber),
		DocumentType:  strings.TrimSpace(input.DocumentType),
		GrossAmount:   input.GrossAmount,
		VATRate:       input.VATRate,
		NetAmount:     input.NetAmount,
		FileName:      input.FileName,
		CreatedAt:     s.timeSource.Now(),
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, Stats{}, fmt.Errorf("saving receipt to database: %w", err)
	}

	stats, err := s.Stats()
	if err != nil {
		return nil, Stats{}, err
	}
	return receipt, stats, nil
}

// Stats sums all saved receipts
func (s *Service) Stats() (Stats, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return Stats{}, fmt.Errorf("listing receipts: %w", err)
	}
	return calculateStats(receipts), nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt
func (s *Service) DeleteReceipt(id string) error {
	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetUpload returns a stored upload and its sniffed content type
func (s *Service) GetUpload(name string) ([]byte, string, error) {
	data, err := s.storage.Get(name)
	if err != nil {
		return nil, "", fmt.Errorf("getting upload: %w", err)
	}
	return data, mimetype.Detect(data).String(), nil
}
