package main

import (
	"fmt"
	"os"

	"github.com/artpar/docgate/config"
	"github.com/artpar/docgate/core/formatter"
	"github.com/artpar/docgate/core/schema"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and resource definitions",
	Long: `Validate the docgate configuration and every resource definition.

Checks:
  - Config syntax is valid and required fields are present
  - Every resource file parses and its schema is consistent
  - Relations point at declared resources

Examples:
  docgate validate
  docgate validate --config /etc/docgate/config.yaml
  docgate validate --format table`,
	RunE: runValidate,
}

var validateFormat string

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFormat, "format", "f", "table", formatter.Usage("resource summary"))
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	f, err := formatter.Lookup(validateFormat)
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) && !config.HasEnvConfig() {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)
	fmt.Fprintf(out, "  %s Database: %s (%s)\n", checkMark, cfg.Database.DSN, cfg.Database.Driver)
	fmt.Fprintf(out, "  %s Hooks configured: %d\n", checkMark, len(cfg.Hooks))

	domain, err := schema.ParseDir(cfg.Resources.Dir)
	if err != nil {
		fmt.Fprintf(out, "  %s Resources valid\n", crossMark)
		return fmt.Errorf("resource error: %w", err)
	}
	fmt.Fprintf(out, "  %s Resources valid: %d in %s\n\n", checkMark, len(domain), cfg.Resources.Dir)

	return f.FormatResources(out, formatter.Summarize(domain), formatter.FormatOptions{
		Names: cfg.Documents.Settings().Names,
	})
}

