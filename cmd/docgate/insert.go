package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/artpar/docgate/bootstrap"
	"github.com/artpar/docgate/core/formatter"
	"github.com/artpar/docgate/core/response"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var insertCmd = &cobra.Command{
	Use:   "insert <resource> <file>",
	Short: "Insert documents from a JSON or YAML file",
	Long: `Insert one document or an array of documents into a resource.

The file is read as YAML when it ends in .yaml or .yml and as JSON
otherwise. Use "-" to read JSON from stdin. The result is printed the
same way the HTTP endpoint reports it.

Examples:
  docgate insert people ada.json
  docgate insert contacts batch.yaml --format table
  echo '{"name":"Ada"}' | docgate insert people -`,
	Args: cobra.ExactArgs(2),
	RunE: runInsert,
}

var insertFormat string

func init() {
	rootCmd.AddCommand(insertCmd)

	insertCmd.Flags().StringVarP(&insertFormat, "format", "f", "json", formatter.Usage("output"))
}

func runInsert(cmd *cobra.Command, args []string) error {
	resource, source := args[0], args[1]

	f, err := formatter.Lookup(insertFormat)
	if err != nil {
		return err
	}

	docs, isArray, err := readDocuments(cmd.InOrStdin(), source)
	if err != nil {
		return err
	}

	app, err := bootstrap.New(bootstrap.Options{ConfigPath: cfgFile, Version: version})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}
	defer app.Close()

	settings := app.Pipeline.Settings()
	renderer := response.NewRenderer(settings)
	opts := formatter.FormatOptions{Names: settings.Names}

	report, err := app.Pipeline.Insert(context.Background(), resource, docs)
	code := response.StatusFor(report, err)

	var body map[string]any
	if err != nil {
		body = renderer.Error(code, err)
	} else {
		for _, warning := range report.HookWarnings {
			app.Logger.Warn().Err(warning).Str("resource", resource).Msg("hook failed after insert")
		}
		res, _ := app.Pipeline.Resource(resource)
		body = renderer.Report(res, report, isArray)
	}

	if ferr := f.FormatResponse(cmd.OutOrStdout(), body, opts); ferr != nil {
		return ferr
	}
	if code >= 400 {
		return fmt.Errorf("insert into %s failed with status %d", resource, code)
	}
	return nil
}

// readDocuments loads a single document or an array of documents.
func readDocuments(stdin io.Reader, source string) ([]map[string]any, bool, error) {
	var (
		data []byte
		err  error
	)
	if source == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", source, err)
	}

	var payload any
	switch strings.ToLower(filepath.Ext(source)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &payload)
	default:
		err = json.Unmarshal(data, &payload)
	}
	if err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", source, err)
	}

	switch v := payload.(type) {
	case map[string]any:
		return []map[string]any{v}, false, nil
	case []any:
		docs := make([]map[string]any, len(v))
		for i, item := range v {
			doc, ok := item.(map[string]any)
			if !ok {
				return nil, true, fmt.Errorf("%s: item %d is not an object", source, i)
			}
			docs[i] = doc
		}
		return docs, true, nil
	default:
		return nil, false, fmt.Errorf("%s: expected an object or an array of objects", source)
	}
}
