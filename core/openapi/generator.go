// Package openapi generates OpenAPI 3.0 documents from resource schemas.
// Every writable resource contributes a POST path with its request and
// response shapes; field constraints carry over as JSON Schema keywords.
package openapi

import (
	"fmt"
	"strings"

	"github.com/artpar/docgate/core/convention"
	"github.com/artpar/docgate/core/schema"
	"github.com/goccy/go-json"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Spec represents an OpenAPI 3.0 specification.
type Spec struct {
	OpenAPI    string              `json:"openapi"`
	Info       Info                `json:"info"`
	Servers    []Server            `json:"servers,omitempty"`
	Paths      map[string]PathItem `json:"paths"`
	Components Components          `json:"components"`
	Tags       []Tag               `json:"tags,omitempty"`
}

// Info provides API metadata.
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// Server represents a server URL.
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PathItem contains operations for a path.
type PathItem struct {
	Post *Operation `json:"post,omitempty"`
}

// Operation represents an API operation.
type Operation struct {
	Tags        []string            `json:"tags,omitempty"`
	Summary     string              `json:"summary,omitempty"`
	Description string              `json:"description,omitempty"`
	OperationID string              `json:"operationId,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses"`
}

// RequestBody represents a request body.
type RequestBody struct {
	Description string               `json:"description,omitempty"`
	Required    bool                 `json:"required,omitempty"`
	Content     map[string]MediaType `json:"content"`
}

// Response represents an API response.
type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

// MediaType represents a media type.
type MediaType struct {
	Schema *Schema `json:"schema,omitempty"`
}

// Schema represents a JSON Schema.
type Schema struct {
	Type                 string             `json:"type,omitempty"`
	Format               string             `json:"format,omitempty"`
	Description          string             `json:"description,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	AdditionalProperties any                `json:"additionalProperties,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Enum                 []any              `json:"enum,omitempty"`
	Ref                  string             `json:"$ref,omitempty"`
	MinLength            *int               `json:"minLength,omitempty"`
	MaxLength            *int               `json:"maxLength,omitempty"`
	MinItems             *int               `json:"minItems,omitempty"`
	MaxItems             *int               `json:"maxItems,omitempty"`
	Minimum              *float64           `json:"minimum,omitempty"`
	Maximum              *float64           `json:"maximum,omitempty"`
	Pattern              string             `json:"pattern,omitempty"`
	Default              any                `json:"default,omitempty"`
	Nullable             bool               `json:"nullable,omitempty"`
	ReadOnly             bool               `json:"readOnly,omitempty"`
	OneOf                []*Schema          `json:"oneOf,omitempty"`
}

// Components contains reusable schemas.
type Components struct {
	Schemas map[string]*Schema `json:"schemas,omitempty"`
}

// Tag provides metadata for a group of operations.
type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Generator generates OpenAPI specs from a resource domain.
type Generator struct {
	domain   schema.Domain
	settings convention.Settings
	info     Info
	servers  []Server
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(domain schema.Domain, settings convention.Settings) *Generator {
	return &Generator{
		domain:   domain,
		settings: settings.WithDefaults(),
		info: Info{
			Title:       "docgate API",
			Version:     "1.0.0",
			Description: "Write endpoints generated from resource schemas",
		},
	}
}

// SetInfo sets the API info.
func (g *Generator) SetInfo(info Info) {
	g.info = info
}

// AddServer adds a server URL.
func (g *Generator) AddServer(url, description string) {
	g.servers = append(g.servers, Server{
		URL:         url,
		Description: description,
	})
}

// Generate creates the OpenAPI specification.
func (g *Generator) Generate() *Spec {
	spec := &Spec{
		OpenAPI: "3.0.3",
		Info:    g.info,
		Servers: g.servers,
		Paths:   make(map[string]PathItem),
		Components: Components{
			Schemas: map[string]*Schema{
				"Error": g.errorSchema(),
			},
		},
		Tags: make([]Tag, 0),
	}

	for _, name := range g.domain.Names() {
		res := g.domain[name]
		if res.ReadOnly {
			continue
		}
		g.generateResource(spec, res)
	}

	return spec
}

// generateResource adds a resource's schemas and write path to the spec.
func (g *Generator) generateResource(spec *Spec, res schema.Resource) {
	title := titleCase(res.Name)

	spec.Tags = append(spec.Tags, Tag{
		Name:        res.Name,
		Description: res.Meta.Description,
	})

	spec.Components.Schemas[title] = g.documentSchema(res)
	spec.Components.Schemas[title+"Outcome"] = g.outcomeSchema()
	spec.Components.Schemas[title+"Batch"] = g.batchSchema(title)

	ref := "#/components/schemas/" + title
	body := &Schema{OneOf: []*Schema{
		{Ref: ref},
		{Type: "array", Items: &Schema{Ref: ref}, MinItems: intPtr(1)},
	}}

	outcome := &Schema{OneOf: []*Schema{
		{Ref: "#/components/schemas/" + title + "Outcome"},
		{Ref: "#/components/schemas/" + title + "Batch"},
	}}

	spec.Paths["/"+res.Name] = PathItem{Post: &Operation{
		Tags:        []string{res.Name},
		Summary:     fmt.Sprintf("Insert %s", res.Name),
		Description: "Insert one document or an array of documents. Valid documents are committed even when others in the batch fail.",
		OperationID: "insert" + title,
		RequestBody: &RequestBody{
			Required:    true,
			Description: fmt.Sprintf("%s document or array of documents", res.Name),
			Content: map[string]MediaType{
				"application/json":                  {Schema: body},
				"application/x-www-form-urlencoded": {Schema: &Schema{Ref: ref}},
			},
		},
		Responses: map[string]Response{
			"201": {Description: "Every document committed", Content: jsonContent(outcome)},
			"422": {Description: "At least one document rejected", Content: jsonContent(outcome)},
			"400": {Description: "Malformed payload or vetoed by a hook", Content: jsonContent(&Schema{Ref: "#/components/schemas/Error"})},
			"404": {Description: "Unknown resource", Content: jsonContent(&Schema{Ref: "#/components/schemas/Error"})},
			"500": {Description: "Storage failure", Content: jsonContent(&Schema{Ref: "#/components/schemas/Error"})},
		},
	}}
}

// documentSchema builds the schema of a submitted document.
func (g *Generator) documentSchema(res schema.Resource) *Schema {
	s := g.objectSchema(res.Schema)
	s.Description = res.Meta.Description
	if res.AllowsUnknown(g.settings.AllowUnknown) {
		s.AdditionalProperties = true
	} else {
		s.AdditionalProperties = false
	}
	return s
}

func (g *Generator) objectSchema(fields map[string]schema.Field) *Schema {
	s := &Schema{
		Type:       "object",
		Properties: make(map[string]*Schema, len(fields)),
	}
	for _, name := range schema.SortedNames(fields) {
		f := fields[name]
		s.Properties[name] = g.fieldToSchema(f)
		if f.Required && !f.HasDefault() && f.Computed == "" {
			s.Required = append(s.Required, name)
		}
	}
	return s
}

// fieldToSchema converts a field to OpenAPI schema.
func (g *Generator) fieldToSchema(f schema.Field) *Schema {
	s := &Schema{
		Nullable: f.Nullable,
		ReadOnly: f.ReadOnly,
		Default:  f.Default,
	}

	switch f.Type {
	case schema.FieldTypeString:
		s.Type = "string"
	case schema.FieldTypeInteger:
		s.Type = "integer"
	case schema.FieldTypeFloat:
		s.Type = "number"
		s.Format = "double"
	case schema.FieldTypeNumber:
		s.Type = "number"
	case schema.FieldTypeBoolean:
		s.Type = "boolean"
	case schema.FieldTypeDatetime:
		s.Type = "string"
		s.Format = "date-time"
	case schema.FieldTypeUUID:
		s.Type = "string"
		s.Format = "uuid"
	case schema.FieldTypeDict:
		if len(f.Schema) > 0 {
			nested := g.objectSchema(f.Schema)
			s.Type = nested.Type
			s.Properties = nested.Properties
			s.Required = nested.Required
		} else {
			s.Type = "object"
			if len(f.Keys) == 1 && f.Keys[0].Schema != nil {
				s.AdditionalProperties = g.fieldToSchema(*f.Keys[0].Schema)
			}
		}
	case schema.FieldTypeList:
		s.Type = "array"
		switch {
		case f.Items != nil:
			s.Items = g.fieldToSchema(*f.Items)
		case len(f.Tuple) > 0:
			n := len(f.Tuple)
			s.MinItems, s.MaxItems = intPtr(n), intPtr(n)
			elems := make([]*Schema, n)
			for i, elem := range f.Tuple {
				elems[i] = g.fieldToSchema(elem)
			}
			s.Items = &Schema{OneOf: elems}
		}
	}

	var notes []string
	if f.Relation != nil {
		target := f.Relation.Field
		if target == "" {
			target = g.settings.Names.ID
		}
		notes = append(notes, fmt.Sprintf("References %s.%s", f.Relation.Resource, target))
	}
	if f.Unique {
		notes = append(notes, "Unique")
	}
	if f.Computed != "" {
		notes = append(notes, fmt.Sprintf("Defaults to the value of %s", f.Computed))
	}
	if len(f.Dependencies) > 0 {
		notes = append(notes, fmt.Sprintf("Requires %s", strings.Join(f.Dependencies, ", ")))
	}
	for _, c := range f.Constraints {
		if note := g.applyConstraint(s, f.Type, c); note != "" {
			notes = append(notes, note)
		}
	}
	s.Description = strings.Join(notes, ". ")

	return s
}

// applyConstraint maps a constraint onto schema keywords and returns a note
// for constraints JSON Schema cannot express.
func (g *Generator) applyConstraint(s *Schema, t schema.FieldType, c schema.Constraint) string {
	switch c.Type {
	case schema.ConstraintMinLength, schema.ConstraintMaxLength:
		n, ok := toInt(c.Value)
		if !ok {
			return ""
		}
		switch {
		case t == schema.FieldTypeList && c.Type == schema.ConstraintMinLength:
			s.MinItems = &n
		case t == schema.FieldTypeList:
			s.MaxItems = &n
		case c.Type == schema.ConstraintMinLength:
			s.MinLength = &n
		default:
			s.MaxLength = &n
		}
	case schema.ConstraintMin:
		if v, ok := toFloat(c.Value); ok {
			s.Minimum = &v
		}
	case schema.ConstraintMax:
		if v, ok := toFloat(c.Value); ok {
			s.Maximum = &v
		}
	case schema.ConstraintPattern:
		if v, ok := c.Value.(string); ok {
			s.Pattern = v
		}
	case schema.ConstraintNotEmpty:
		return "Must not be empty"
	case schema.ConstraintOneOf:
		switch values := c.Value.(type) {
		case []any:
			s.Enum = values
		case []string:
			for _, v := range values {
				s.Enum = append(s.Enum, v)
			}
		}
	}
	return ""
}

// outcomeSchema describes a single per-document outcome.
func (g *Generator) outcomeSchema() *Schema {
	n := g.settings.Names
	props := map[string]*Schema{
		n.Status:  {Type: "string", Enum: []any{convention.StatusOK, convention.StatusErr}},
		n.ID:      {Description: "Document identifier"},
		n.Created: {Type: "string", Description: "Creation time (RFC 1123)"},
		n.Updated: {Type: "string", Description: "Modification time (RFC 1123)"},
		n.Issues:  {Type: "object", Description: "Validation issues keyed by field path"},
	}
	if g.settings.IfMatch {
		props[n.ETag] = &Schema{Type: "string", Description: "Concurrency token"}
	}
	return &Schema{
		Type:                 "object",
		Properties:           props,
		Required:             []string{n.Status},
		AdditionalProperties: true,
	}
}

// batchSchema describes the wrapper returned for array submissions.
func (g *Generator) batchSchema(title string) *Schema {
	n := g.settings.Names
	return &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			n.Status: {Type: "string", Enum: []any{convention.StatusOK, convention.StatusErr}},
			n.Items:  {Type: "array", Items: &Schema{Ref: "#/components/schemas/" + title + "Outcome"}},
		},
		Required: []string{n.Status, n.Items},
	}
}

func (g *Generator) errorSchema() *Schema {
	n := g.settings.Names
	return &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			n.Status: {Type: "string", Enum: []any{convention.StatusErr}},
			n.Error: {
				Type: "object",
				Properties: map[string]*Schema{
					"code":    {Type: "integer"},
					"message": {Type: "string"},
				},
			},
		},
	}
}

// ToJSON converts the spec to JSON.
func (spec *Spec) ToJSON() ([]byte, error) {
	return json.MarshalIndent(spec, "", "  ")
}

// ToJSONCompact converts the spec to compact JSON.
func (spec *Spec) ToJSONCompact() ([]byte, error) {
	return json.Marshal(spec)
}

func jsonContent(s *Schema) map[string]MediaType {
	return map[string]MediaType{"application/json": {Schema: s}}
}

var titler = cases.Title(language.Und, cases.NoLower)

// titleCase turns snake_case resource names into component names.
func titleCase(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		parts[i] = titler.String(p)
	}
	return strings.Join(parts, "")
}

func intPtr(n int) *int {
	return &n
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
