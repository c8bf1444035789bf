package raster

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedDocument is returned when the bytes are not a parseable PDF
	// or the PDF declares no pages.
	ErrMalformedDocument = errors.New("malformed PDF document")

	// ErrPageLimitExceeded is returned when the page count is above the
	// configured maximum. It is detected before any page is rendered.
	ErrPageLimitExceeded = errors.New("page limit exceeded")

	// ErrRasterFailed is returned when a page that parsed could not be rendered.
	ErrRasterFailed = errors.New("page rasterization failed")
)

// RasterError carries the operation and page a rasterization step failed on.
type RasterError struct {
	Op      string
	Err     error
	Details string
}

func (e *RasterError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("raster: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("raster: %s failed: %v", e.Op, e.Err)
}

func (e *RasterError) Unwrap() error {
	return e.Err
}

func (e *RasterError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewRasterError(op string, err error, details string) *RasterError {
	return &RasterError{Op: op, Err: err, Details: details}
}
