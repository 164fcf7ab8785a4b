package formatter

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/artpar/docgate/core/convention"
	"github.com/goccy/go-json"
)

// TableFormatter formats output as aligned text tables.
type TableFormatter struct{}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter() *TableFormatter {
	return &TableFormatter{}
}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// FormatResponse prints one row per outcome: index, status, id and issues.
func (f *TableFormatter) FormatResponse(w io.Writer, body map[string]any, opts FormatOptions) error {
	names := opts.names()

	if e, ok := body[names.Error].(map[string]any); ok {
		fmt.Fprintf(w, "Error: %v\n", e["message"])
		return nil
	}

	rows := []map[string]any{body}
	if items, ok := body[names.Items].([]any); ok {
		rows = rows[:0]
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, m)
			}
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !opts.NoHeader {
		fmt.Fprintln(tw, "#\tSTATUS\tID\tISSUES")
	}
	for i, row := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
			i,
			f.formatValue(row[names.Status], 0),
			f.formatValue(row[names.ID], opts.MaxWidth),
			f.formatIssues(row, names, opts.MaxWidth),
		)
	}
	return tw.Flush()
}

// FormatResources prints one row per resource.
func (f *TableFormatter) FormatResources(w io.Writer, resources []ResourceSummary, opts FormatOptions) error {
	if len(resources) == 0 {
		fmt.Fprintln(w, "No resources found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !opts.NoHeader {
		fmt.Fprintln(tw, "NAME\tFIELDS\tREQUIRED\tUNIQUE\tRELATIONS\tREADONLY")
	}
	for _, r := range resources {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			r.Name,
			r.Fields,
			f.formatList(r.Required, opts.MaxWidth),
			f.formatList(r.Unique, opts.MaxWidth),
			f.formatList(r.Relations, opts.MaxWidth),
			f.formatValue(r.ReadOnly, 0),
		)
	}
	return tw.Flush()
}

// FormatError formats an error message.
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	fmt.Fprintf(w, "Error: %s\n", err.Error())
	return nil
}

// formatIssues flattens an issue tree into "path: message" pairs.
func (f *TableFormatter) formatIssues(row map[string]any, names convention.Names, maxWidth int) string {
	tree, ok := row[names.Issues].(map[string]any)
	if !ok {
		return "-"
	}
	var parts []string
	flattenIssues("", tree, &parts)
	sort.Strings(parts)
	return f.truncate(strings.Join(parts, "; "), maxWidth)
}

func flattenIssues(prefix string, node map[string]any, out *[]string) {
	for key, v := range node {
		path := prefix
		if key != "" {
			if path != "" {
				path += "."
			}
			path += key
		}
		switch msg := v.(type) {
		case map[string]any:
			flattenIssues(path, msg, out)
		case []string:
			for _, m := range msg {
				*out = append(*out, path+": "+m)
			}
		case []any:
			for _, m := range msg {
				*out = append(*out, fmt.Sprintf("%s: %v", path, m))
			}
		default:
			*out = append(*out, fmt.Sprintf("%s: %v", path, msg))
		}
	}
}

func (f *TableFormatter) formatList(list []string, maxWidth int) string {
	if len(list) == 0 {
		return "-"
	}
	return f.truncate(strings.Join(list, ","), maxWidth)
}

// formatValue formats a value for display.
func (f *TableFormatter) formatValue(val any, maxWidth int) string {
	if val == nil {
		return "-"
	}

	var str string
	switch v := val.(type) {
	case string:
		str = v
	case bool:
		if v {
			str = "yes"
		} else {
			str = "no"
		}
	case float64:
		// Check if it's a whole number
		if v == float64(int64(v)) {
			str = fmt.Sprintf("%d", int64(v))
		} else {
			str = fmt.Sprintf("%.2f", v)
		}
	default:
		b, _ := json.Marshal(v)
		str = string(b)
	}

	return f.truncate(str, maxWidth)
}

func (f *TableFormatter) truncate(str string, maxWidth int) string {
	if maxWidth > 3 && len(str) > maxWidth {
		return str[:maxWidth-3] + "..."
	}
	return str
}

func init() {
	Register(NewTableFormatter())
}
