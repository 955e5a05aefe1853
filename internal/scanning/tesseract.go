package scanning

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements the Scanner interface offline, using Tesseract OCR
// and text heuristics instead of a language model
type Tesseract struct {
	mu     sync.Mutex // the tesseract client is not safe for concurrent use
	client *gosseract.Client
}

// NewTesseract creates a new Tesseract Scanner instance.
// languages defaults to German and English.
func NewTesseract(languages ...string) (*Tesseract, error) {
	if len(languages) == 0 {
		languages = []string{"deu", "eng"}
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(languages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting OCR language: %w", err)
	}

	return &Tesseract{client: client}, nil
}

// ScanReceipt reads the document text and extracts its fields
func (t *Tesseract) ScanReceipt(ctx context.Context, data []byte, contentType string) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, err := t.documentText(data, normalizeMimeType(contentType))
	if err != nil {
		return nil, err
	}

	analysis := extractFields(text)
	slog.Debug("OCR analysis", "characters", len(text), "empty", analysis.Empty())
	return analysis, nil
}

func (t *Tesseract) documentText(data []byte, mimeType string) (string, error) {
	// PDFs with a text layer need no OCR
	if mimeType == "application/pdf" {
		text, err := pdfText(data)
		if err != nil {
			slog.Debug("PDF has no readable text layer", "error", err)
		} else if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}

	img, err := prepareOCRImage(data, mimeType)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return "", fmt.Errorf("setting page segmentation: %w", err)
	}
	if err := t.client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("setting OCR image: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return text, nil
}

// pdfText extracts the text layer of a PDF
func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("reading PDF text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("reading PDF text: %w", err)
	}
	return buf.String(), nil
}

// Close releases the tesseract client
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
