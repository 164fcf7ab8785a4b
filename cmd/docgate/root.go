package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docgate",
	Short: "Schema-governed document write service",
	Long: `docgate accepts documents for declared resources, fills in defaults,
validates them against their schema, stamps identity and timestamps,
and persists the valid ones.

Quick start:
  docgate validate            # Check config and resource definitions
  docgate serve               # Start the HTTP write endpoint
  docgate insert people a.json  # Insert documents from a file`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "docgate.yaml", "config file path")
}
