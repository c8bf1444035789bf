package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"policyocr/internal/assemble"
	"policyocr/internal/logger"
	"policyocr/internal/ocr"
	"policyocr/internal/pipeline"
	"policyocr/internal/raster"
	"policyocr/internal/server"
)

type Config struct {
	// Rasterization
	RasterDPI       int
	RasterMaxPixels int
	PdftoppmPath    string

	// Document limits
	MaxPages        int
	MaxPayloadBytes int64
	PipelineTimeout time.Duration

	// OCR
	OCRBackend     string
	OCRLanguage    string
	OCRMode        string
	OCRConcurrency int
	PageOCRTimeout time.Duration
	OCRRetryDelay  time.Duration
	TesseractPath  string
	TessdataDir    string

	// Extraction
	FieldSchemaPath string
	AmbiguityMargin float64

	// Google Cloud Configuration
	GoogleCloudProject         string
	GoogleCloudLocation        string
	DocumentAIProcessorID      string
	DocumentAIProcessorVersion string

	// Google Sheets Configuration
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// HTTP
	HTTPAddr string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		RasterDPI:                  getEnvAsInt("RASTER_DPI", 200),
		RasterMaxPixels:            getEnvAsInt("RASTER_MAX_PIXELS", 12_000_000),
		PdftoppmPath:               getEnv("PDFTOPPM_PATH", "pdftoppm"),
		MaxPages:                   getEnvAsInt("MAX_PAGES", 10),
		MaxPayloadBytes:            int64(getEnvAsInt("MAX_PAYLOAD_BYTES", 16<<20)),
		PipelineTimeout:            getEnvAsDuration("PIPELINE_TIMEOUT", 55*time.Second),
		OCRBackend:                 strings.ToLower(getEnv("OCR_BACKEND", ocr.BackendTesseract)),
		OCRLanguage:                getEnv("OCR_LANGUAGE", "eng"),
		OCRMode:                    strings.ToLower(getEnv("OCR_MODE", string(ocr.ModeDocument))),
		OCRConcurrency:             getEnvAsInt("OCR_CONCURRENCY", 4),
		PageOCRTimeout:             getEnvAsDuration("PAGE_OCR_TIMEOUT", 20*time.Second),
		OCRRetryDelay:              getEnvAsDuration("OCR_RETRY_DELAY", 250*time.Millisecond),
		TesseractPath:              getEnv("TESSERACT_PATH", "tesseract"),
		TessdataDir:                getEnv("TESSDATA_DIR", ""),
		FieldSchemaPath:            getEnv("FIELD_SCHEMA_PATH", ""),
		AmbiguityMargin:            getEnvAsFloat("AMBIGUITY_MARGIN", assemble.DefaultMargin),
		GoogleCloudProject:         getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:        getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID:      getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocumentAIProcessorVersion: getEnv("DOCUMENT_AI_PROCESSOR_VERSION", ""),
		GoogleSheetURL:             getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:       getEnv("GOOGLE_SHEET_WORKSHEET", "Extractions"),
		HTTPAddr:                   getEnv("HTTP_ADDR", ":8080"),
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		LogFormat:                  getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:              getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                  getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.RasterDPI < 72 || c.RasterDPI > 600 {
		return fmt.Errorf("RASTER_DPI must be between 72 and 600, got %d", c.RasterDPI)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("MAX_PAGES must be at least 1")
	}
	if c.MaxPayloadBytes < 1 {
		return fmt.Errorf("MAX_PAYLOAD_BYTES must be positive")
	}
	if c.OCRConcurrency < 1 {
		return fmt.Errorf("OCR_CONCURRENCY must be at least 1")
	}
	if c.AmbiguityMargin < 0 || c.AmbiguityMargin >= 1 {
		return fmt.Errorf("AMBIGUITY_MARGIN must be in [0,1), got %v", c.AmbiguityMargin)
	}
	if c.PageOCRTimeout <= 0 {
		return fmt.Errorf("PAGE_OCR_TIMEOUT must be positive")
	}
	if c.PipelineTimeout <= c.PageOCRTimeout {
		return fmt.Errorf("PIPELINE_TIMEOUT (%s) must exceed PAGE_OCR_TIMEOUT (%s)", c.PipelineTimeout, c.PageOCRTimeout)
	}

	switch c.OCRMode {
	case string(ocr.ModeDocument), string(ocr.ModeSparse):
	default:
		return fmt.Errorf("OCR_MODE must be %q or %q, got %q", ocr.ModeDocument, ocr.ModeSparse, c.OCRMode)
	}

	switch c.OCRBackend {
	case ocr.BackendTesseract, ocr.BackendGosseract, ocr.BackendVision:
	case ocr.BackendDocumentAI:
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the documentai backend")
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for the documentai backend")
		}
	default:
		return fmt.Errorf("unknown OCR_BACKEND %q", c.OCRBackend)
	}
	return nil
}

// RasterConfig returns the rasterizer settings.
func (c *Config) RasterConfig() raster.Config {
	return raster.Config{
		Pdftoppm:    c.PdftoppmPath,
		DPI:         c.RasterDPI,
		MaxPages:    c.MaxPages,
		MaxPixels:   c.RasterMaxPixels,
		Concurrency: c.OCRConcurrency,
	}
}

// OCRConfig returns the adapter settings. One retry is allowed per page.
func (c *Config) OCRConfig() ocr.AdapterConfig {
	return ocr.AdapterConfig{
		PageTimeout: c.PageOCRTimeout,
		RetryDelay:  c.OCRRetryDelay,
		MaxRetries:  1,
		Language:    c.OCRLanguage,
		Mode:        ocr.Mode(c.OCRMode),
	}
}

// BackendConfig returns the settings for the selected OCR backend.
func (c *Config) BackendConfig() ocr.BackendConfig {
	return ocr.BackendConfig{
		Name: c.OCRBackend,
		Tesseract: ocr.TesseractConfig{
			Path:        c.TesseractPath,
			TessdataDir: c.TessdataDir,
		},
		DocumentAI: ocr.DocumentAIConfig{
			ProjectID:        c.GoogleCloudProject,
			Location:         c.GoogleCloudLocation,
			ProcessorID:      c.DocumentAIProcessorID,
			ProcessorVersion: c.DocumentAIProcessorVersion,
		},
	}
}

// PipelineConfig returns the orchestrator settings.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		MaxPayloadBytes: c.MaxPayloadBytes,
		Timeout:         c.PipelineTimeout,
		Concurrency:     c.OCRConcurrency,
	}
}

// AssembleConfig returns the result assembler settings.
func (c *Config) AssembleConfig() assemble.Config {
	return assemble.Config{Margin: c.AmbiguityMargin}
}

// ServerConfig returns the HTTP settings. The request timeout leaves the
// pipeline room to report its own timeout.
func (c *Config) ServerConfig() server.Config {
	return server.Config{
		Addr:            c.HTTPAddr,
		MaxPayloadBytes: c.MaxPayloadBytes,
		RequestTimeout:  c.PipelineTimeout + 5*time.Second,
		Backend:         c.OCRBackend,
	}
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
