package ocr_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"policyocr/internal/ocr"
	"policyocr/pkg/models"
)

// Example demonstrates recognizing one rendered page with the local
// tesseract binary.
func Example() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := ocr.NewBackend(ctx, ocr.BackendConfig{Name: ocr.BackendTesseract})
	if err != nil {
		log.Fatalf("Failed to create OCR backend: %v", err)
	}
	adapter := ocr.NewAdapter(backend, ocr.DefaultAdapterConfig())
	defer adapter.Close()

	img, err := os.ReadFile("page-1.png")
	if err != nil {
		log.Fatalf("Failed to read page: %v", err)
	}

	tokens, err := adapter.RecognizePage(ctx, models.Page{Index: 0, Image: img, Format: "png", DPI: 200})
	if err != nil {
		log.Fatalf("Failed to recognize page: %v", err)
	}
	for _, tok := range tokens {
		fmt.Printf("%-20s %.2f %+v\n", tok.Text, tok.Confidence, tok.Box)
	}
}

// ExampleNewBackend_documentAI demonstrates the cloud backend and the
// error checks callers usually need.
func ExampleNewBackend_documentAI() {
	ctx := context.Background()

	backend, err := ocr.NewBackend(ctx, ocr.BackendConfig{
		Name: ocr.BackendDocumentAI,
		DocumentAI: ocr.DocumentAIConfig{
			ProjectID:   os.Getenv("GOOGLE_CLOUD_PROJECT"),
			Location:    "eu",
			ProcessorID: os.Getenv("DOCUMENT_AI_PROCESSOR_ID"),
		},
	})
	switch {
	case errors.Is(err, ocr.ErrMissingCredentials):
		log.Fatalf("Please set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")
	case errors.Is(err, ocr.ErrInvalidConfiguration):
		log.Fatalf("Document AI is not configured: %v", err)
	case err != nil:
		log.Fatalf("Failed to create OCR backend: %v", err)
	}

	adapter := ocr.NewAdapter(backend, ocr.DefaultAdapterConfig())
	defer adapter.Close()

	_, err = adapter.RecognizePage(ctx, models.Page{Index: 0, Image: []byte{}, Format: "png"})
	if errors.Is(err, ocr.ErrEmptyImage) {
		fmt.Println("nothing to recognize")
	}
}
