//go:build !gosseract

package ocr

import "context"

// GosseractBackend is only functional in binaries built with -tags gosseract.
type GosseractBackend struct{}

func NewGosseractBackend(TesseractConfig) (*GosseractBackend, error) {
	return nil, NewOCRError("NewGosseractBackend", ErrUnsupportedBackend, "rebuild with -tags gosseract")
}

func (g *GosseractBackend) Name() string { return "gosseract" }

func (g *GosseractBackend) Close() error { return nil }

func (g *GosseractBackend) Recognize(context.Context, Request) (*Response, error) {
	return nil, ErrUnsupportedBackend
}
