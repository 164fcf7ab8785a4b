package formatter

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats output as YAML.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// Name returns the formatter name.
func (f *YAMLFormatter) Name() string {
	return "yaml"
}

// FormatResponse formats a response body as YAML.
func (f *YAMLFormatter) FormatResponse(w io.Writer, body map[string]any, opts FormatOptions) error {
	return f.encode(w, body)
}

// FormatResources formats resource summaries as YAML.
func (f *YAMLFormatter) FormatResources(w io.Writer, resources []ResourceSummary, opts FormatOptions) error {
	output := map[string]any{
		"count":     len(resources),
		"resources": resources,
	}
	return f.encode(w, output)
}

// FormatError formats an error as YAML.
func (f *YAMLFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	return f.encode(w, output)
}

// encode writes YAML to the writer.
func (f *YAMLFormatter) encode(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(data)
}

func init() {
	Register(NewYAMLFormatter())
}
