package main

import (
	"fmt"
	"os"

	"github.com/artpar/docgate/bootstrap"
	"github.com/artpar/docgate/config"
	"github.com/spf13/cobra"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the document write server",
	Long: `Start the docgate HTTP server.

The server will:
  - Load configuration from docgate.yaml (or --config)
  - Or load configuration from DOCGATE_* environment variables
  - Load every resource definition under resources.dir
  - Accept POST /{resource} with a document or an array of documents

Environment variables (for Docker deployments):
  DOCGATE_RESOURCES_DIR     - Resource definitions directory (required)
  DOCGATE_DATABASE_DSN      - Database path (default: docgate.db)
  DOCGATE_SERVER_PORT       - Server port (default: 8080)
  DOCGATE_LOG_LEVEL         - Log level: debug, info, warn, error

Examples:
  docgate serve
  docgate serve --config /etc/docgate/config.yaml
  docgate serve --hot-reload=false

  # Docker (env vars only):
  DOCGATE_RESOURCES_DIR=/srv/resources docgate serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload resources and hooks when files change or on SIGHUP")
}

func runServe(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	if !hasConfigFile && !config.HasEnvConfig() {
		fmt.Fprintln(out, "No configuration found.")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Option 1: Create %s with a resources.dir entry\n", cfgFile)
		fmt.Fprintln(out, "Option 2: Set DOCGATE_RESOURCES_DIR environment variable")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Example (env vars):")
		fmt.Fprintln(out, "  DOCGATE_RESOURCES_DIR=./resources docgate serve")
		return nil
	}

	if !hasConfigFile {
		fmt.Fprintln(out, "Running with environment variables (no config file)")
	}

	app, err := bootstrap.New(bootstrap.Options{
		ConfigPath: cfgFile,
		Watch:      hasConfigFile && hotReload,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
