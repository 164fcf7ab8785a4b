// Package schema defines the core types for declarative resource definitions.
// A resource is a named collection of documents sharing one schema.
package schema

import "sort"

// Resource is the root definition for a declarative resource.
type Resource struct {
	// Name is the resource name used in routes and storage (e.g., "contacts").
	Name string `yaml:"resource"`

	// Schema defines the fields of every document in the resource.
	Schema map[string]Field `yaml:"schema"`

	// AllowUnknown lets undeclared fields pass through validation untouched.
	// Nil defers to the global setting.
	AllowUnknown *bool `yaml:"allow_unknown,omitempty"`

	// ReadOnly disables the write endpoint for this resource.
	ReadOnly bool `yaml:"readonly,omitempty"`

	// ExtraResponseFields are echoed back on success even in bandwidth saver mode.
	ExtraResponseFields []string `yaml:"extra_response_fields,omitempty"`

	// Meta contains optional metadata.
	Meta ResourceMeta `yaml:"meta,omitempty"`
}

// ResourceMeta contains optional resource metadata.
type ResourceMeta struct {
	// Version of the resource definition.
	Version string `yaml:"version,omitempty"`

	// Description for documentation.
	Description string `yaml:"description,omitempty"`
}

// AllowsUnknown resolves the allow-unknown toggle against the global default.
func (r Resource) AllowsUnknown(global bool) bool {
	if r.AllowUnknown != nil {
		return *r.AllowUnknown
	}
	return global
}

// FieldNames returns the schema's field names in sorted order.
func (r Resource) FieldNames() []string {
	return SortedNames(r.Schema)
}

// SortedNames returns the keys of a field map in sorted order.
func SortedNames(fields map[string]Field) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Domain holds every resource known to the process, keyed by name.
type Domain map[string]Resource

// Get returns the resource with the given name.
func (d Domain) Get(name string) (Resource, bool) {
	res, ok := d[name]
	return res, ok
}

// Names returns resource names in sorted order.
func (d Domain) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
