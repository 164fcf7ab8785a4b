package formatter

import (
	"sort"

	"github.com/artpar/docgate/core/schema"
)

// ResourceSummary describes a loaded resource for listing.
type ResourceSummary struct {
	Name      string   `json:"name" yaml:"name"`
	Fields    int      `json:"fields" yaml:"fields"`
	Required  []string `json:"required,omitempty" yaml:"required,omitempty"`
	Unique    []string `json:"unique,omitempty" yaml:"unique,omitempty"`
	Relations []string `json:"relations,omitempty" yaml:"relations,omitempty"`
	ReadOnly  bool     `json:"readonly,omitempty" yaml:"readonly,omitempty"`
}

// Summarize builds summaries for every resource of a domain, sorted by name.
// Relations are listed as "path -> resource.field".
func Summarize(domain schema.Domain) []ResourceSummary {
	out := make([]ResourceSummary, 0, len(domain))
	for _, name := range domain.Names() {
		res := domain[name]
		s := ResourceSummary{
			Name:     name,
			Fields:   len(res.Schema),
			ReadOnly: res.ReadOnly,
		}
		for _, field := range res.FieldNames() {
			f := res.Schema[field]
			if f.Required {
				s.Required = append(s.Required, field)
			}
			if f.Unique {
				s.Unique = append(s.Unique, field)
			}
		}
		collectRelations("", res.Schema, &s.Relations)
		sort.Strings(s.Relations)
		out = append(out, s)
	}
	return out
}

func collectRelations(prefix string, fields map[string]schema.Field, out *[]string) {
	for _, name := range schema.SortedNames(fields) {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		collectField(path, fields[name], out)
	}
}

func collectField(path string, f schema.Field, out *[]string) {
	if f.Relation != nil {
		target := f.Relation.Resource
		if f.Relation.Field != "" {
			target += "." + f.Relation.Field
		}
		*out = append(*out, path+" -> "+target)
	}
	if f.Items != nil {
		collectField(path+".[]", *f.Items, out)
	}
	collectRelations(path, f.Schema, out)
}
