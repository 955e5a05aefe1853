package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxUploadSize is the largest accepted document (10 MiB)
const MaxUploadSize = 10 << 20

const maxJSONBody = 1 << 20

const (
	errNoFile        = "Keine Datei ausgewählt"
	errFileTooLarge  = "Die Datei ist zu groß. Maximum: 10 MB"
	errWrongFileType = "Bitte wählen Sie eine Bilddatei oder PDF aus."
	errNoData        = "Keine Daten erhalten"
	errInvalidData   = "Ungültige Daten"
	errNotFound      = "Beleg nicht gefunden"
	errInternal      = "Interner Serverfehler"
	msgSaved         = "Beleg gespeichert"
)

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes an {"error": message} response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// acceptedContentType reports whether uploads of this MIME type are analyzed
func acceptedContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/") || contentType == "application/pdf"
}

// uploadContentType detects the type from the data; the declared part type is not trusted
func uploadContentType(data []byte) string {
	contentType := mimetype.Detect(data).String()
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return contentType
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload stores and analyzes a document
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// allow room for the multipart envelope around a maximum size file
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, errFileTooLarge)
			return
		}
		slog.Error("Error parsing multipart form", "error", err)
		writeError(w, http.StatusBadRequest, errNoFile)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil || header.Filename == "" {
		writeError(w, http.StatusBadRequest, errNoFile)
		return
	}
	defer f.Close()

	if header.Size > MaxUploadSize {
		writeError(w, http.StatusBadRequest, errFileTooLarge)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}

	contentType := uploadContentType(data)
	if !acceptedContentType(contentType) {
		slog.Info("Rejected upload", "filename", header.Filename,
			"content_type", contentType, "declared", header.Header.Get("Content-Type"))
		writeError(w, http.StatusBadRequest, errWrongFileType)
		return
	}

	upload, err := s.service.AnalyzeUpload(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error analyzing upload", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"image_path": upload.ImagePath,
		"analysis":   upload.Analysis,
	})
}

// handleGetUpload serves a stored document
func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	data, contentType, err := s.service.GetUpload(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "Datei nicht gefunden")
		return
	}

	disposition := "inline"
	if base, _, _ := strings.Cut(contentType, ";"); !acceptedContentType(base) {
		contentType = "application/octet-stream"
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": name}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Write(data)
}

// handleSaveReceipt stores a finalized receipt
func (s *Server) handleSaveReceipt(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, errNoData)
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || len(fields) == 0 {
		writeError(w, http.StatusBadRequest, errNoData)
		return
	}

	var input ReceiptInput
	if err := json.Unmarshal(body, &input); err != nil {
		slog.Info("Invalid receipt body", "error", err)
		writeError(w, http.StatusBadRequest, errInvalidData)
		return
	}

	receipt, stats, err := s.service.SaveReceipt(input)
	if errors.Is(err, ErrNoData) {
		writeError(w, http.StatusBadRequest, errNoData)
		return
	}
	if err != nil {
		slog.Error("Error saving receipt", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("Receipt saved", "id", receipt.ID, "vendor", receipt.Vendor)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": msgSaved,
		"stats":   stats,
	})
}

// handleListReceipts returns all receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	if err != nil {
		slog.Error("Error getting receipt", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteReceipt(r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	if err != nil {
		slog.Error("Error deleting receipt", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStats returns the aggregate stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats()
	if err != nil {
		slog.Error("Error calculating stats", "error", err)
		writeError(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
