package formatter

import (
	"io"

	"github.com/goccy/go-json"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Name returns the formatter name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// FormatResponse writes the response body as-is.
func (f *JSONFormatter) FormatResponse(w io.Writer, body map[string]any, opts FormatOptions) error {
	return f.encode(w, body, opts.Compact)
}

// FormatResources formats resource summaries as JSON.
func (f *JSONFormatter) FormatResources(w io.Writer, resources []ResourceSummary, opts FormatOptions) error {
	output := map[string]any{
		"count":     len(resources),
		"resources": resources,
	}
	return f.encode(w, output, opts.Compact)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := map[string]any{
		"error": err.Error(),
	}
	return f.encode(w, output, false)
}

// encode writes JSON to the writer.
func (f *JSONFormatter) encode(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

func init() {
	Register(NewJSONFormatter())
}
