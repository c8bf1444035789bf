package ocr

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Common OCR processing errors
var (
	// ErrOCRUnavailable is returned when the backend cannot be reached or
	// invoked: a missing binary, a refused connection, an exhausted quota.
	ErrOCRUnavailable = errors.New("OCR backend unavailable")

	// ErrOCRTimeout is returned when one page exceeds the per-page budget.
	ErrOCRTimeout = errors.New("OCR page timeout")

	// ErrOCRFailed is returned when the backend answered but the answer
	// could not be used.
	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
	// nor GOOGLE_CREDENTIALS environment variables are configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrInvalidConfiguration is returned for incomplete backend settings.
	ErrInvalidConfiguration = errors.New("invalid OCR configuration")

	// ErrUnsupportedBackend is returned for unknown backend names and for
	// backends not compiled into this binary.
	ErrUnsupportedBackend = errors.New("unsupported OCR backend")

	// ErrEmptyImage is returned when a page carries no image data.
	ErrEmptyImage = errors.New("page has no image data")
)

// OCRError wraps errors with additional context about the OCR processing failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "Recognize", "NewVisionBackend").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err // Already wrapped
	}

	return NewOCRError(op, err, details)
}

// IsTransient reports whether a failed page is worth one more attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrOCRUnavailable) || errors.Is(err, ErrOCRTimeout)
}

// handleRPCError maps gRPC status codes from the Google clients onto the
// adapter's taxonomy.
func handleRPCError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapOCRError(op, ErrOCRTimeout, err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return WrapOCRError(op, ErrOCRFailed, err.Error())
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return WrapOCRError(op, ErrOCRTimeout, st.Message())
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.Internal:
		return WrapOCRError(op, ErrOCRUnavailable, fmt.Sprintf("%s: %s", st.Code(), st.Message()))
	case codes.Unauthenticated, codes.PermissionDenied:
		return WrapOCRError(op, ErrMissingCredentials, st.Message())
	case codes.NotFound:
		return WrapOCRError(op, ErrInvalidConfiguration, st.Message())
	case codes.Canceled:
		return context.Canceled
	default:
		return WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("%s: %s", st.Code(), st.Message()))
	}
}
