package pipeline

import (
	"errors"
	"fmt"
	"net/http"

	"policyocr/internal/raster"
)

// Reason classifies why a document failed.
type Reason string

const (
	ReasonMalformedDocument Reason = "malformed_document"
	ReasonPageLimitExceeded Reason = "page_limit_exceeded"
	ReasonPayloadTooLarge   Reason = "payload_too_large"
	ReasonExtractionFailed  Reason = "extraction_failed"
	ReasonTimeout           Reason = "timeout"
	ReasonInvalidRequest    Reason = "invalid_request"
	ReasonCanceled          Reason = "canceled"
)

// StatusClientClosedRequest is reported when the caller went away.
const StatusClientClosedRequest = 499

var (
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrExtractionFailed = errors.New("extraction failed")
	ErrTimeout          = errors.New("pipeline time budget exceeded")
	ErrCanceled         = errors.New("processing canceled")
)

var reasonErrors = map[Reason]error{
	ReasonMalformedDocument: raster.ErrMalformedDocument,
	ReasonPageLimitExceeded: raster.ErrPageLimitExceeded,
	ReasonPayloadTooLarge:   ErrPayloadTooLarge,
	ReasonExtractionFailed:  ErrExtractionFailed,
	ReasonTimeout:           ErrTimeout,
	ReasonInvalidRequest:    ErrInvalidRequest,
	ReasonCanceled:          ErrCanceled,
}

var reasonStatus = map[Reason]int{
	ReasonMalformedDocument: http.StatusUnprocessableEntity,
	ReasonPageLimitExceeded: http.StatusRequestEntityTooLarge,
	ReasonPayloadTooLarge:   http.StatusRequestEntityTooLarge,
	ReasonExtractionFailed:  http.StatusBadGateway,
	ReasonTimeout:           http.StatusGatewayTimeout,
	ReasonInvalidRequest:    http.StatusBadRequest,
	ReasonCanceled:          StatusClientClosedRequest,
}

// Failure is the only error type Process returns. No result accompanies it.
type Failure struct {
	Reason     Reason
	Stage      State // last state reached before failing
	DocumentID string
	Err        error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("pipeline: %s after %s: %v", f.Reason, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches the sentinel for the failure's reason, so callers can test
// errors.Is(err, pipeline.ErrTimeout) or errors.Is(err, raster.ErrMalformedDocument).
func (f *Failure) Is(target error) bool {
	return reasonErrors[f.Reason] == target
}

// HTTPStatus maps the reason onto a response status for the inbound boundary.
func (f *Failure) HTTPStatus() int {
	if s, ok := reasonStatus[f.Reason]; ok {
		return s
	}
	return http.StatusInternalServerError
}
