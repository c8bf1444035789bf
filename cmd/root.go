package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"policyocr/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "policyocr",
	Short: "Extract structured fields from motor insurance policy PDFs",
	Long: `policyocr rasterizes insurance policy PDFs, runs OCR on every page and
extracts a fixed set of fields (policy number, insured name, premiums,
vehicle details and so on), each with a confidence score and provenance.

Documents can be processed one at a time, in folders, or through the
HTTP service started by "policyocr serve".`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("policyocr executed")

		fmt.Println("policyocr - insurance policy field extraction")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}

// Version returns the build version.
func Version() string { return version }
