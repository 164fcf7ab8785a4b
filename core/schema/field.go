package schema

// Field defines a data field in a resource's schema.
type Field struct {
	// Type is the field type. See FieldType constants.
	Type FieldType `yaml:"type"`

	// Required indicates this field must have a value once defaults are resolved.
	Required bool `yaml:"required,omitempty"`

	// Unique indicates no two documents of the resource may share a value.
	Unique bool `yaml:"unique,omitempty"`

	// Nullable allows an explicit null value.
	Nullable bool `yaml:"nullable,omitempty"`

	// ReadOnly rejects submitted values unless they equal Default.
	ReadOnly bool `yaml:"readonly,omitempty"`

	// Default value for this field. Falsy values ("", 0, false) are real defaults.
	Default any `yaml:"default,omitempty"`

	// Computed names a sibling field whose final value is copied when this one is absent.
	Computed string `yaml:"computed,omitempty"`

	// Dependencies lists sibling fields that must be present whenever this one is.
	Dependencies []string `yaml:"dependencies,omitempty"`

	// Relation is the referential target for this field's value.
	Relation *Relation `yaml:"relation,omitempty"`

	// Schema is the nested document schema for dict fields.
	Schema map[string]Field `yaml:"schema,omitempty"`

	// Items is the schema every element of a list must satisfy.
	Items *Field `yaml:"items,omitempty"`

	// Tuple is a fixed-length list where element i must satisfy Tuple[i].
	Tuple []Field `yaml:"tuple,omitempty"`

	// Keys constrains the keys of a mapping field and the values stored under them.
	Keys []KeyRule `yaml:"keys,omitempty"`

	// Constraints defines additional validation rules for this field.
	Constraints []Constraint `yaml:"constraints,omitempty"`
}

// Relation points a field at a field of another resource.
type Relation struct {
	Resource string `yaml:"resource"`
	Field    string `yaml:"field,omitempty"` // empty = the id field
}

// KeyRule validates mapping keys matching Pattern against Schema.
// An empty Pattern matches every key.
type KeyRule struct {
	Pattern string `yaml:"pattern,omitempty"`
	Schema  *Field `yaml:"schema"`
}

// FieldType represents the type of a schema field.
type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeInteger  FieldType = "integer"
	FieldTypeFloat    FieldType = "float"
	FieldTypeNumber   FieldType = "number"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeUUID     FieldType = "uuid"
	FieldTypeDict     FieldType = "dict"
	FieldTypeList     FieldType = "list"
	FieldTypeAny      FieldType = "any"
)

// Known reports whether t is a supported field type.
func (t FieldType) Known() bool {
	switch t {
	case FieldTypeString, FieldTypeInteger, FieldTypeFloat, FieldTypeNumber,
		FieldTypeBoolean, FieldTypeDatetime, FieldTypeUUID, FieldTypeDict,
		FieldTypeList, FieldTypeAny:
		return true
	}
	return false
}

// Kind is the closed set of field variants validation dispatches on.
type Kind int

const (
	KindScalar Kind = iota
	KindList
	KindKeyed
	KindDocument
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindList:
		return "list"
	case KindKeyed:
		return "keyed"
	case KindDocument:
		return "document"
	case KindReference:
		return "reference"
	default:
		return "scalar"
	}
}

// Kind classifies the field. A relation wins over the structural type so
// that a referencing field is always checked against its target.
func (f Field) Kind() Kind {
	switch {
	case f.Relation != nil:
		return KindReference
	case f.Type == FieldTypeList || f.Items != nil || len(f.Tuple) > 0:
		return KindList
	case len(f.Keys) > 0:
		return KindKeyed
	case f.Type == FieldTypeDict:
		return KindDocument
	default:
		return KindScalar
	}
}

// HasDefault reports whether a default value is declared.
func (f Field) HasDefault() bool {
	return f.Default != nil
}

// DependsOn returns every sibling this field's resolution waits for.
func (f Field) DependsOn() []string {
	deps := make([]string, 0, len(f.Dependencies)+1)
	deps = append(deps, f.Dependencies...)
	if f.Computed != "" && !contains(deps, f.Computed) {
		deps = append(deps, f.Computed)
	}
	return deps
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
