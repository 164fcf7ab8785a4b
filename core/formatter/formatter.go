// Package formatter provides a pluggable output formatting system for the
// command line. Formatters render write responses and resource summaries as
// table, json or yaml.
package formatter

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/artpar/docgate/core/convention"
)

// Formatter renders CLI output.
type Formatter interface {
	// Name is the --format value that selects the formatter.
	Name() string

	// FormatResponse formats a rendered write response: a single outcome
	// body or an items wrapper.
	FormatResponse(w io.Writer, body map[string]any, opts FormatOptions) error

	// FormatResources formats resource summaries.
	FormatResources(w io.Writer, resources []ResourceSummary, opts FormatOptions) error

	// FormatError formats an error.
	FormatError(w io.Writer, err error) error
}

// FormatOptions configures formatting behavior.
type FormatOptions struct {
	// Names are the reserved field names used in response bodies.
	Names convention.Names

	// NoHeader disables header row for tabular formats.
	NoHeader bool

	// Compact minimizes whitespace (for json).
	Compact bool

	// MaxWidth truncates long values (0 = no limit).
	MaxWidth int
}

func (o FormatOptions) names() convention.Names {
	return convention.Settings{Names: o.Names}.WithDefaults().Names
}

// ErrUnknownFormat is returned by Lookup for an unregistered --format value.
var ErrUnknownFormat = errors.New("unknown format")

// Registry maps --format values to formatters.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{formatters: make(map[string]Formatter)}
}

// Register adds a formatter under its name.
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[f.Name()]; exists {
		return fmt.Errorf("formatter %q already registered", f.Name())
	}
	r.formatters[f.Name()] = f
	return nil
}

// Lookup resolves a --format value. The error names the registered formats.
func (r *Registry) Lookup(name string) (Formatter, error) {
	r.mu.RLock()
	f, ok := r.formatters[strings.ToLower(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownFormat, name, strings.Join(r.Names(), ", "))
	}
	return f, nil
}

// Names returns the registered format names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.formatters))
	for name := range r.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Usage describes the accepted values for a --format flag.
func (r *Registry) Usage(what string) string {
	return fmt.Sprintf("%s format (%s)", what, strings.Join(r.Names(), ", "))
}

var formats = NewRegistry()

// Register adds a formatter to the formats the CLI accepts.
func Register(f Formatter) error {
	return formats.Register(f)
}

// Lookup resolves a --format value against the built-in formats.
func Lookup(name string) (Formatter, error) {
	return formats.Lookup(name)
}

// Names lists the built-in formats.
func Names() []string {
	return formats.Names()
}

// Usage describes the built-in formats for flag help.
func Usage(what string) string {
	return formats.Usage(what)
}
