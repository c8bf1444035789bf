// Package ocr turns rendered page images into recognized tokens.
//
// Recognition itself is delegated to a Backend. Four are provided:
//   - tesseract: the tesseract CLI in TSV mode, run through internal/runner
//   - gosseract: libtesseract through cgo (build with -tags gosseract)
//   - vision: Google Cloud Vision text detection
//   - documentai: a Google Document AI OCR processor
//
// The Adapter wraps any backend with the per-page time budget, a single
// retry for transient failures and the conversion into models.RecognizedToken.
// Nothing outside this package depends on a backend's native output.
//
// Google backends read credentials the same way the rest of the tool does:
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string, OR
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file
//   - otherwise Application Default Credentials
package ocr

import (
	"context"

	"policyocr/pkg/models"
)

// Mode selects how the backend segments the page.
type Mode string

const (
	// ModeDocument treats the page as blocks of running text.
	ModeDocument Mode = "document"
	// ModeSparse finds as much text as possible in no particular order,
	// which suits form-like schedules.
	ModeSparse Mode = "sparse"
)

// Request is one page handed to a backend.
type Request struct {
	Image    []byte
	Format   string // "png"
	Language string // tesseract style code, e.g. "eng" or "eng+hin"
	Mode     Mode
	DPI      int
}

// Word is a backend's native unit converted to page pixels.
type Word struct {
	Text       string             `json:"text"`
	Box        models.BoundingBox `json:"box"`
	Confidence float64            `json:"confidence"`
}

// Response is what a backend recognized on one page.
type Response struct {
	Text  string `json:"text"`
	Words []Word `json:"words"`
}

// Backend is the replaceable OCR capability.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Recognize runs OCR once over a single page image. Implementations
	// report unreachable engines as ErrOCRUnavailable and expired
	// deadlines as ErrOCRTimeout.
	Recognize(ctx context.Context, req Request) (*Response, error)

	Close() error
}
