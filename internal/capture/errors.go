package capture

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxFileSize is the largest document accepted by intake (10 MiB)
const MaxFileSize = 10 << 20

var (
	// ErrFileTypeRejected is returned for files that are neither images nor PDFs
	ErrFileTypeRejected = errors.New("file type not accepted")
	// ErrFileTooLarge is returned for files above MaxFileSize
	ErrFileTooLarge = errors.New("file too large")
	// ErrStopped is returned when the controller loop is no longer running
	ErrStopped = errors.New("capture controller stopped")
)

// ValidationError lists the required fields that failed validation
type ValidationError struct {
	Fields []Field
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return fmt.Sprintf("invalid fields: %s", strings.Join(names, ", "))
}

// ServerError is a non-success response from the analysis or persistence service
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// AcceptsContentType reports whether intake accepts a MIME type
func AcceptsContentType(contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(contentType, "image/") || contentType == "application/pdf"
}

// checkFile applies the intake rules to a file
func checkFile(f File) error {
	if !AcceptsContentType(f.ContentType) {
		return fmt.Errorf("%w: %q", ErrFileTypeRejected, f.ContentType)
	}
	if f.Size() > MaxFileSize {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, f.Size())
	}
	return nil
}

// contentTypeOf returns the declared MIME type of a file, sniffing the content when none was given
func contentTypeOf(f File) string {
	if ct := strings.TrimSpace(f.ContentType); ct != "" {
		return ct
	}
	return mimetype.Detect(f.Data).String()
}
