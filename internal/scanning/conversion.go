package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	// maxImageBytes is the largest image sent to a model without re-encoding
	maxImageBytes = 4 << 20
	// maxDimension bounds the longer side of images sent to a scanner
	maxDimension = 2400
)

// analysisPrompt is the shared prompt used by all LLM providers
const analysisPrompt = `Analysiere dieses Belegdokument und extrahiere die folgenden Informationen.
Antworte AUSSCHLIESSLICH mit einem gültigen JSON-Objekt in diesem Format:

{
  "haendler": "Name des Händlers/Lieferanten",
  "datum": "DD.MM.YYYY",
  "rechnungsnummer": "Rechnungs-/Belegnummer",
  "dokumenttyp": "invoice/receipt/credit-note/delivery-note/other",
  "betrag": 0.00,
  "mwst_satz": 19
}

Wichtige Hinweise:
- Verwende nur die genannten Feldnamen
- Datum im Format DD.MM.YYYY
- Betrag ist der Bruttobetrag als Zahl ohne Währungssymbol
- Dokumenttyp: "invoice" für Rechnungen, "receipt" für Kassenbons, "credit-note" für Gutschriften, "delivery-note" für Lieferscheine, sonst "other"
- mwst_satz ist der Mehrwertsteuersatz in Prozent (0, 7 oder 19)
- Wenn ein Feld nicht erkennbar ist, verwende null oder einen leeren String
- Antworte NUR mit dem JSON, ohne zusätzlichen Text`

// pdfToImage renders the first page of a PDF
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Most receipts are single page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// decodeImage decodes any supported document into an image
func decodeImage(data []byte, mimeType string) (image.Image, error) {
	if mimeType == "application/pdf" {
		return pdfToImage(data)
	}

	// Go's standard image package doesn't support HEIC (common on iPhones)
	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, TIFF, WebP, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEICFormat checks for the ftyp box of HEIC/HEIF files
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// downscale shrinks img so that its longer side is at most maxSide
func downscale(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}

	if w >= h {
		h = h * maxSide / w
		w = maxSide
	} else {
		w = w * maxSide / h
		h = maxSide
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// grayscale converts img to 8-bit gray, which OCR reads more reliably than color
func grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

// prepareImageData turns an upload into a PNG a vision model can read.
// Small PNGs pass through unchanged.
func prepareImageData(data []byte, contentType string) ([]byte, error) {
	mimeType := normalizeMimeType(contentType)
	if mimeType == "image/png" && len(data) <= maxImageBytes && !isHEICFormat(data) {
		return data, nil
	}

	img, err := decodeImage(data, mimeType)
	if err != nil {
		return nil, err
	}
	return encodePNG(downscale(img, maxDimension))
}

// prepareOCRImage turns an upload into a downscaled grayscale PNG for OCR
func prepareOCRImage(data []byte, contentType string) ([]byte, error) {
	img, err := decodeImage(data, normalizeMimeType(contentType))
	if err != nil {
		return nil, err
	}
	return encodePNG(grayscale(downscale(img, maxDimension)))
}
