package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"policyocr/internal/logger"
	"policyocr/internal/pipeline"
	"policyocr/internal/schema"
	"policyocr/internal/sheets"
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Extract policy fields from a PDF",
	Long: `Rasterize a policy PDF, run OCR on every page and extract the configured
fields. Each field is reported as found, ambiguous or not_found together
with a confidence score, the page it came from and the label it was read
next to.

Configuration is read from the environment (see .env.example). The most
relevant variables are:
  OCR_BACKEND        - tesseract (default), gosseract, vision or documentai
  MAX_PAGES          - page limit per document (default: 10)
  PIPELINE_TIMEOUT   - time budget per document (default: 55s)
  FIELD_SCHEMA_PATH  - field schema file (default: embedded motor schema)
  GOOGLE_SHEET_URL   - target sheet for --sheet`,
	Example: `  # Extract all fields and print a table
  policyocr extract policy.pdf

  # Only a few fields, as JSON
  policyocr extract policy.pdf --fields policy_number,total_premium --json

  # Write JSON to a file and append a row to the Google Sheet
  policyocr extract policy.pdf --json -o result.json --sheet`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().String("fields", "", "Comma separated subset of fields to extract")
	extractCmd.Flags().String("schema", "", "Field schema file (overrides FIELD_SCHEMA_PATH)")
	extractCmd.Flags().Bool("json", false, "Output as JSON")
	extractCmd.Flags().Duration("timeout", 0, "Overall timeout (default: PIPELINE_TIMEOUT)")
	extractCmd.Flags().Bool("sheet", false, "Append the result to GOOGLE_SHEET_URL")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
	fieldList, _ := cmd.Flags().GetString("fields")
	schemaPath, _ := cmd.Flags().GetString("schema")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	toSheet, _ := cmd.Flags().GetBool("sheet")

	pdfPath := args[0]

	log.Info().
		Str("file", pdfPath).
		Str("output", outputPath).
		Str("fields", fieldList).
		Bool("json", jsonOutput).
		Dur("timeout", timeout).
		Msg("Starting extraction")

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	eng, err := buildEngine(ctx, schemaPath, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close OCR backend")
		}
	}()

	if _, err := validatePDFFile(pdfPath, eng.cfg.MaxPayloadBytes, log); err != nil {
		return err
	}

	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to read PDF file: %w", err)
	}

	startTime := time.Now()
	result, err := eng.pipeline.Process(ctx, pipeline.Request{
		Data:     data,
		Filename: filepath.Base(pdfPath),
		Fields:   schema.SplitFields(fieldList),
	})
	if err != nil {
		return handleExtractError(err, log)
	}

	log.Info().
		Str("document_id", result.DocumentID).
		Int("page_count", result.PageCount).
		Float64("confidence", result.Confidence).
		Dur("duration", time.Since(startTime)).
		Msg("Extraction completed successfully")

	var out []byte
	if jsonOutput {
		if out, err = marshalJSON(result); err != nil {
			return err
		}
	} else {
		var buf bytes.Buffer
		if err := printResult(&buf, filepath.Base(pdfPath), result); err != nil {
			return err
		}
		out = buf.Bytes()
	}

	if err := writeOutput(out, outputPath, log); err != nil {
		return err
	}

	if toSheet {
		if eng.cfg.GoogleSheetURL == "" {
			return fmt.Errorf("GOOGLE_SHEET_URL environment variable is required for --sheet")
		}
		svc, err := sheets.NewSheetsService(ctx, eng.cfg.GoogleSheetURL)
		if err != nil {
			return fmt.Errorf("failed to create Google Sheets service: %w", err)
		}
		if err := svc.AppendResult(ctx, eng.cfg.GoogleSheetWorksheet, filepath.Base(pdfPath), result); err != nil {
			return fmt.Errorf("failed to write to Google Sheet: %w", err)
		}
	}

	return nil
}
