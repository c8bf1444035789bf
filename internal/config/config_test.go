package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"policyocr/internal/ocr"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"RASTER_DPI", "MAX_PAGES", "OCR_BACKEND", "OCR_MODE", "PIPELINE_TIMEOUT", "PAGE_OCR_TIMEOUT", "AMBIGUITY_MARGIN"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.RasterDPI)
	assert.Equal(t, 10, cfg.MaxPages)
	assert.Equal(t, int64(16<<20), cfg.MaxPayloadBytes)
	assert.Equal(t, 55*time.Second, cfg.PipelineTimeout)
	assert.Equal(t, "tesseract", cfg.OCRBackend)
	assert.Equal(t, 0.05, cfg.AmbiguityMargin)
	assert.Equal(t, "Extractions", cfg.GoogleSheetWorksheet)

	oc := cfg.OCRConfig()
	assert.Equal(t, 1, oc.MaxRetries)
	assert.Equal(t, ocr.ModeDocument, oc.Mode)
	assert.Equal(t, 20*time.Second, oc.PageTimeout)

	assert.Equal(t, cfg.PipelineTimeout+5*time.Second, cfg.ServerConfig().RequestTimeout)
	assert.Equal(t, 10, cfg.RasterConfig().MaxPages)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RASTER_DPI", "300")
	t.Setenv("OCR_BACKEND", "DocumentAI")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "acme")
	t.Setenv("DOCUMENT_AI_PROCESSOR_ID", "proc")
	t.Setenv("GOOGLE_CLOUD_LOCATION", "eu")
	t.Setenv("OCR_MODE", "sparse")
	t.Setenv("OCR_RETRY_DELAY", "1s")
	t.Setenv("AMBIGUITY_MARGIN", "0.1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.RasterDPI)
	assert.Equal(t, ocr.BackendDocumentAI, cfg.OCRBackend)
	assert.Equal(t, ocr.ModeSparse, cfg.OCRConfig().Mode)
	assert.Equal(t, time.Second, cfg.OCRConfig().RetryDelay)
	assert.Equal(t, 0.1, cfg.AssembleConfig().Margin)

	bc := cfg.BackendConfig()
	assert.Equal(t, "eu", bc.DocumentAI.Location)
	assert.Equal(t, "proc", bc.DocumentAI.ProcessorID)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"dpi too low", map[string]string{"RASTER_DPI": "50"}, "RASTER_DPI"},
		{"no pages", map[string]string{"MAX_PAGES": "0"}, "MAX_PAGES"},
		{"margin", map[string]string{"AMBIGUITY_MARGIN": "1"}, "AMBIGUITY_MARGIN"},
		{"budget below page timeout", map[string]string{"PIPELINE_TIMEOUT": "10s", "PAGE_OCR_TIMEOUT": "20s"}, "PIPELINE_TIMEOUT"},
		{"unknown backend", map[string]string{"OCR_BACKEND": "abbyy"}, "OCR_BACKEND"},
		{"unknown mode", map[string]string{"OCR_MODE": "dense"}, "OCR_MODE"},
		{"documentai without processor", map[string]string{"OCR_BACKEND": "documentai", "GOOGLE_CLOUD_PROJECT": "p", "DOCUMENT_AI_PROCESSOR_ID": ""}, "DOCUMENT_AI_PROCESSOR_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
