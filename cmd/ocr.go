package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"policyocr/internal/extract"
	"policyocr/internal/logger"
	"policyocr/pkg/models"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [pdf-file]",
	Short: "Rasterize a PDF and print the recognized text",
	Long: `Run only the rasterization and OCR stages on a PDF and print what the
configured backend recognized. Useful for checking scan quality and for
tuning field anchors against real documents.

With --json every recognized token is written with its bounding box,
confidence and page index.`,
	Example: `  # Print the recognized text, page by page
  policyocr ocr policy.pdf

  # Only the second page, as JSON tokens
  policyocr ocr policy.pdf --page 2 --json -o tokens.json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput represents the JSON output structure when --json flag is used
type OCROutput struct {
	FileName           string                   `json:"file_name"`
	FileSize           int64                    `json:"file_size"`
	Backend            string                   `json:"backend"`
	PageCount          int                      `json:"page_count"`
	Tokens             []models.RecognizedToken `json:"tokens"`
	ProcessingDuration string                   `json:"processing_duration"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().Bool("json", false, "Output tokens as JSON")
	ocrCmd.Flags().Int("page", 0, "Only recognize this page (1-based, default: all)")
	ocrCmd.Flags().Duration("timeout", 0, "Overall timeout (default: PIPELINE_TIMEOUT)")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	pageNum, _ := cmd.Flags().GetInt("page")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	pdfPath := args[0]

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	eng, err := buildEngine(ctx, "", log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close OCR backend")
		}
	}()

	fileInfo, err := validatePDFFile(pdfPath, eng.cfg.MaxPayloadBytes, log)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to read PDF file: %w", err)
	}

	startTime := time.Now()

	pages, err := eng.raster.Rasterize(ctx, data)
	if err != nil {
		return handleExtractError(err, log)
	}

	if pageNum > 0 {
		if pageNum > len(pages) {
			return fmt.Errorf("page %d out of range, document has %d pages", pageNum, len(pages))
		}
		pages = pages[pageNum-1 : pageNum]
	}

	perPage := make([][]models.RecognizedToken, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(eng.cfg.OCRConcurrency)
	for i, page := range pages {
		g.Go(func() error {
			tokens, err := eng.adapter.RecognizePage(gctx, page)
			if err != nil {
				return fmt.Errorf("page %d: %w", page.Index+1, err)
			}
			perPage[i] = tokens
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return handleExtractError(err, log)
	}

	log.Info().
		Int("page_count", len(pages)).
		Dur("duration", time.Since(startTime)).
		Msg("OCR processing completed successfully")

	var out []byte
	if jsonOutput {
		var tokens []models.RecognizedToken
		for _, pt := range perPage {
			tokens = append(tokens, pt...)
		}
		out, err = marshalJSON(OCROutput{
			FileName:           filepath.Base(fileInfo.Name()),
			FileSize:           fileInfo.Size(),
			Backend:            eng.adapter.Name(),
			PageCount:          len(pages),
			Tokens:             tokens,
			ProcessingDuration: time.Since(startTime).String(),
		})
		if err != nil {
			return err
		}
	} else {
		var buf bytes.Buffer
		for i, pt := range perPage {
			fmt.Fprintf(&buf, "=== Page %d ===\n", pages[i].Index+1)
			buf.WriteString(extract.PageText(pt))
			buf.WriteString("\n")
		}
		out = buf.Bytes()
	}

	return writeOutput(out, outputPath, log)
}
