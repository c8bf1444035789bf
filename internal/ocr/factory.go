package ocr

import (
	"context"
	"fmt"
	"strings"

	"policyocr/internal/runner"
)

// Backend names accepted by NewBackend.
const (
	BackendTesseract  = "tesseract"
	BackendGosseract  = "gosseract"
	BackendVision     = "vision"
	BackendDocumentAI = "documentai"
)

// BackendConfig selects and configures one backend.
type BackendConfig struct {
	Name       string
	Tesseract  TesseractConfig
	DocumentAI DocumentAIConfig
	Runner     runner.Runner // tesseract only; nil uses os/exec
}

// NewBackend builds the backend named in cfg.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch strings.ToLower(cfg.Name) {
	case "", BackendTesseract:
		return NewTesseractBackend(cfg.Tesseract, cfg.Runner), nil
	case BackendGosseract:
		b, err := NewGosseractBackend(cfg.Tesseract)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendVision:
		b, err := NewVisionBackend(ctx)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendDocumentAI:
		b, err := NewDocumentAIBackend(ctx, cfg.DocumentAI)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, NewOCRError("NewBackend", ErrUnsupportedBackend, fmt.Sprintf("%q", cfg.Name))
	}
}
