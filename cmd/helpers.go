package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"policyocr/internal/assemble"
	"policyocr/internal/config"
	"policyocr/internal/ocr"
	"policyocr/internal/pipeline"
	"policyocr/internal/raster"
	"policyocr/internal/schema"
	"policyocr/pkg/models"
)

// engine bundles the pipeline with the OCR adapter it owns.
type engine struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	adapter  *ocr.Adapter
	raster   *raster.Rasterizer
}

func (e *engine) Close() error {
	return e.adapter.Close()
}

// buildEngine wires config, schema, rasterizer, OCR backend and assembler
// into a pipeline. schemaPath overrides FIELD_SCHEMA_PATH when set.
func buildEngine(ctx context.Context, schemaPath string, log zerolog.Logger) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return nil, err
	}

	if schemaPath == "" {
		schemaPath = cfg.FieldSchemaPath
	}
	s, err := schema.LoadOrDefault(schemaPath)
	if err != nil {
		log.Error().Err(err).Str("schema", schemaPath).Msg("Failed to load field schema")
		return nil, fmt.Errorf("failed to load field schema: %w", err)
	}

	backend, err := ocr.NewBackend(ctx, cfg.BackendConfig())
	if err != nil {
		return nil, createBackendError(err, cfg.OCRBackend, log)
	}

	adapter := ocr.NewAdapter(backend, cfg.OCRConfig())
	rasterizer := raster.New(cfg.RasterConfig(), nil)
	p := pipeline.New(cfg.PipelineConfig(), s, rasterizer, adapter, assemble.New(cfg.AssembleConfig()))

	log.Debug().
		Str("backend", cfg.OCRBackend).
		Str("schema_version", s.Version()).
		Int("fields", s.Len()).
		Msg("Pipeline created")

	return &engine{cfg: cfg, pipeline: p, adapter: adapter, raster: rasterizer}, nil
}

func createBackendError(err error, backend string, log zerolog.Logger) error {
	log.Error().Err(err).Str("backend", backend).Msg("Failed to create OCR backend")

	switch {
	case errors.Is(err, ocr.ErrMissingCredentials):
		return fmt.Errorf("%w. Please set one of:\n\n" +
			"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
			"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
			"2. Export GOOGLE_CREDENTIALS with inline JSON:\n" +
			"   export GOOGLE_CREDENTIALS='{\"type\":\"service_account\",\"project_id\":\"your-project\",...}'\n\n" +
			"3. Use Application Default Credentials (if gcloud is configured):\n" +
			"   gcloud auth application-default login", err)
	case errors.Is(err, ocr.ErrUnsupportedBackend):
		return fmt.Errorf("OCR backend %q is not available in this build: %w", backend, err)
	default:
		return fmt.Errorf("failed to create OCR backend: %w", err)
	}
}

// validatePDFFile checks if the file exists, is readable, and is not empty
func validatePDFFile(pdfPath string, maxBytes int64, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(pdfPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", pdfPath).Msg("PDF file not found")
			return nil, fmt.Errorf("PDF file not found: %s", pdfPath)
		}
		if os.IsPermission(err) {
			log.Error().Str("file", pdfPath).Msg("Permission denied accessing PDF file")
			return nil, fmt.Errorf("permission denied accessing PDF file: %s", pdfPath)
		}
		return nil, fmt.Errorf("error accessing PDF file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().Str("file", pdfPath).Msg("Path is not a regular file")
		return nil, fmt.Errorf("path is not a regular file: %s", pdfPath)
	}

	if !strings.HasSuffix(strings.ToLower(pdfPath), ".pdf") {
		log.Warn().Str("file", pdfPath).Msg("File does not have .pdf extension")
	}

	if fileInfo.Size() == 0 {
		log.Error().Str("file", pdfPath).Msg("PDF file is empty")
		return nil, fmt.Errorf("PDF file is empty: %s", pdfPath)
	}

	if maxBytes > 0 && fileInfo.Size() > maxBytes {
		log.Error().
			Str("file", pdfPath).
			Int64("size", fileInfo.Size()).
			Int64("max_size", maxBytes).
			Msg("PDF file exceeds maximum size limit")
		return nil, fmt.Errorf("PDF file too large (%d bytes). Maximum size is %d bytes", fileInfo.Size(), maxBytes)
	}

	return fileInfo, nil
}

// createContextWithTimeout creates a context with timeout and signal handling.
// A zero timeout leaves the deadline to the pipeline.
func createContextWithTimeout(timeout time.Duration, log zerolog.Logger) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// handleExtractError provides user-friendly error messages for pipeline failures
func handleExtractError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Extraction failed")

	switch {
	case errors.Is(err, pipeline.ErrTimeout):
		return fmt.Errorf("processing timed out. Try increasing --timeout or PIPELINE_TIMEOUT")
	case errors.Is(err, pipeline.ErrCanceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, raster.ErrPageLimitExceeded):
		return fmt.Errorf("PDF has too many pages. Raise MAX_PAGES or split the file: %w", err)
	case errors.Is(err, raster.ErrMalformedDocument):
		return fmt.Errorf("invalid or corrupted PDF file. Please check the file integrity: %w", err)
	case errors.Is(err, pipeline.ErrPayloadTooLarge):
		return fmt.Errorf("PDF file is too large. Raise MAX_PAYLOAD_BYTES or compress the file")
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return fmt.Errorf("invalid request: %w", err)
	case errors.Is(err, ocr.ErrOCRUnavailable):
		return fmt.Errorf("OCR engine unavailable. Check that the configured backend is installed and reachable: %w", err)
	case errors.Is(err, pipeline.ErrExtractionFailed):
		return fmt.Errorf("OCR failed on at least one page: %w", err)
	default:
		return fmt.Errorf("extraction failed: %w", err)
	}
}

// writeOutput writes data to outputPath, or stdout when the path is empty.
func writeOutput(data []byte, outputPath string, log zerolog.Logger) error {
	if outputPath == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			log.Error().Err(err).Msg("Failed to write to stdout")
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		log.Error().Err(err).Str("output_file", outputPath).Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().
		Str("output_file", outputPath).
		Int("bytes", len(data)).
		Msg("Results written to file")
	return nil
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON output: %w", err)
	}
	return append(data, '\n'), nil
}

// printResult renders a result as an aligned table in schema order.
func printResult(w io.Writer, filename string, res *models.ExtractionResult) error {
	fmt.Fprintf(w, "=== %s ===\n", filename)
	fmt.Fprintf(w, "Document ID: %s\n", res.DocumentID)
	fmt.Fprintf(w, "Pages: %d  Confidence: %.1f%%  Duration: %s\n\n", res.PageCount, res.Confidence*100, res.Duration.Round(time.Millisecond))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tSTATUS\tVALUE\tCONFIDENCE\tPAGE")
	for _, name := range res.Order {
		f := res.Fields[name]
		value, page := "-", "-"
		if f.Value != nil {
			value = *f.Value
		}
		if f.Page != nil {
			page = fmt.Sprint(*f.Page + 1)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", name, f.Status, value, f.Confidence, page)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, warning := range res.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
	return nil
}
