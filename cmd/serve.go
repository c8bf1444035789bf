package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"policyocr/internal/logger"
	"policyocr/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the extraction HTTP service",
	Long: `Start an HTTP server exposing the extraction pipeline.

Endpoints:
  POST /v1/extract  - PDF as multipart "file" part or raw request body;
                      optional "fields" (comma separated) and "filename"
  GET  /v1/schema   - the active field schema
  GET  /healthz     - liveness and backend name
  GET  /metrics     - Prometheus metrics

The server shuts down gracefully on SIGINT or SIGTERM.`,
	Example: `  # Listen on the default HTTP_ADDR (:8080)
  policyocr serve

  # Custom address and schema
  policyocr serve --addr 127.0.0.1:9000 --schema ./fields.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: HTTP_ADDR)")
	serveCmd.Flags().String("schema", "", "Field schema file (overrides FIELD_SCHEMA_PATH)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	addr, _ := cmd.Flags().GetString("addr")
	schemaPath, _ := cmd.Flags().GetString("schema")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, schemaPath, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close OCR backend")
		}
	}()

	cfg := eng.cfg.ServerConfig()
	if addr != "" {
		cfg.Addr = addr
	}

	log.Info().
		Str("addr", cfg.Addr).
		Str("backend", cfg.Backend).
		Str("schema_version", eng.pipeline.Schema().Version()).
		Msg("Starting extraction service")

	return server.New(cfg, eng.pipeline).Run(ctx)
}
