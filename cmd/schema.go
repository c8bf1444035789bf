package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"policyocr/internal/logger"
	"policyocr/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and validate field schemas",
}

var schemaShowCmd = &cobra.Command{
	Use:   "show [schema-file]",
	Short: "Print the fields of a schema (default: embedded motor schema)",
	Example: `  # List the built-in fields
  policyocr schema show

  # Print the embedded YAML to start a custom schema
  policyocr schema show --raw > fields.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSchemaShow,
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate [schema-file]",
	Short: "Check a schema file for structural and pattern errors",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaValidate,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaShowCmd, schemaValidateCmd)

	schemaShowCmd.Flags().Bool("raw", false, "Print the embedded schema YAML")
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetBool("raw")
	if raw {
		_, err := os.Stdout.Write(schema.DefaultYAML())
		return err
	}

	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	s, err := schema.LoadOrDefault(path)
	if err != nil {
		return err
	}

	fmt.Printf("Schema %s (%s), %d fields\n\n", s.Version(), s.Source(), s.Len())

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tNORMALIZE\tMIN CONF\tANCHORS")
	for _, f := range s.Fields() {
		norm := f.Normalize
		if norm == "" {
			norm = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", f.Name, norm, f.MinConfidence, strings.Join(f.Anchors, " | "))
	}
	return tw.Flush()
}

func runSchemaValidate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("schema")

	s, err := schema.Load(args[0])
	if err != nil {
		log.Error().Err(err).Str("file", args[0]).Msg("Schema validation failed")
		return err
	}

	log.Info().
		Str("file", args[0]).
		Str("version", s.Version()).
		Int("fields", s.Len()).
		Msg("Schema is valid")
	fmt.Printf("%s: valid, version %s, %d fields\n", args[0], s.Version(), s.Len())
	return nil
}
