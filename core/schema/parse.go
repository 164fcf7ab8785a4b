package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile parses a resource definition from a YAML file.
func ParseFile(path string) (Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Resource{}, fmt.Errorf("read file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses a resource definition from YAML bytes.
func Parse(data []byte) (Resource, error) {
	var res Resource
	if err := yaml.Unmarshal(data, &res); err != nil {
		return Resource{}, fmt.Errorf("parse yaml: %w", err)
	}

	if err := Validate(res); err != nil {
		return Resource{}, fmt.Errorf("validate resource %q: %w", res.Name, err)
	}

	return res, nil
}

// ParseDir parses all resource definitions from a directory, including subdirectories.
// Cross-resource relations are checked once every file is loaded.
func ParseDir(dir string) (Domain, error) {
	domain := make(Domain)
	if err := parseDirInto(dir, domain); err != nil {
		return nil, err
	}

	if err := domain.Validate(); err != nil {
		return nil, err
	}

	return domain, nil
}

func parseDirInto(dir string, domain Domain) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if err := parseDirInto(path, domain); err != nil {
				return err
			}
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		res, err := ParseFile(path)
		if err != nil {
			return err
		}

		if _, dup := domain[res.Name]; dup {
			return fmt.Errorf("resource %q defined twice (second in %s)", res.Name, path)
		}
		domain[res.Name] = res
	}

	return nil
}

// Validate validates a single resource definition in isolation.
func Validate(res Resource) error {
	var errs []string

	if res.Name == "" {
		errs = append(errs, "resource name is required")
	} else if !isValidIdentifier(res.Name) {
		errs = append(errs, fmt.Sprintf("resource name %q is not a valid identifier", res.Name))
	}

	if len(res.Schema) == 0 {
		errs = append(errs, "schema must have at least one field")
	}

	errs = append(errs, validateFields("", res.Schema)...)

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Validate checks every resource and that relations target known resources.
func (d Domain) Validate() error {
	var errs []string

	for _, name := range d.Names() {
		res := d[name]
		if err := Validate(res); err != nil {
			errs = append(errs, fmt.Sprintf("resource %q: %v", name, err))
			continue
		}
		walkFields("", res.Schema, func(path string, f Field) {
			if f.Relation == nil {
				return
			}
			if _, ok := d[f.Relation.Resource]; !ok {
				errs = append(errs, fmt.Sprintf("resource %q: field %q relates to unknown resource %q",
					name, path, f.Relation.Resource))
			}
		})
	}

	if len(errs) > 0 {
		return fmt.Errorf("domain errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// validateFields checks a sibling set of fields, recursing into nested schemas.
func validateFields(prefix string, fields map[string]Field) []string {
	var errs []string

	for _, name := range SortedNames(fields) {
		field := fields[name]
		path := joinPath(prefix, name)

		if !isValidIdentifier(name) {
			errs = append(errs, fmt.Sprintf("field name %q is not a valid identifier", path))
		}

		for _, dep := range field.Dependencies {
			if _, ok := fields[dep]; !ok {
				errs = append(errs, fmt.Sprintf("field %q: dependency %q not in schema", path, dep))
			}
		}

		if field.Computed != "" {
			if field.Computed == name {
				errs = append(errs, fmt.Sprintf("field %q: computed from itself", path))
			} else if _, ok := fields[field.Computed]; !ok {
				errs = append(errs, fmt.Sprintf("field %q: computed source %q not in schema", path, field.Computed))
			}
		}

		errs = append(errs, validateField(path, field)...)
	}

	return errs
}

// validateField checks one field specification, including nested element specs.
func validateField(path string, field Field) []string {
	var errs []string

	if !field.Type.Known() {
		errs = append(errs, fmt.Sprintf("field %q: unknown type %q", path, field.Type))
	}

	if field.Relation != nil && field.Relation.Resource == "" {
		errs = append(errs, fmt.Sprintf("field %q: relation requires a resource", path))
	}

	if len(field.Schema) > 0 && field.Type != FieldTypeDict {
		errs = append(errs, fmt.Sprintf("field %q: nested schema requires type dict", path))
	}

	if (field.Items != nil || len(field.Tuple) > 0) && field.Type != FieldTypeList {
		errs = append(errs, fmt.Sprintf("field %q: items require type list", path))
	}

	if field.Items != nil && len(field.Tuple) > 0 {
		errs = append(errs, fmt.Sprintf("field %q: items and tuple are mutually exclusive", path))
	}

	if len(field.Keys) > 0 && field.Type != FieldTypeDict {
		errs = append(errs, fmt.Sprintf("field %q: key rules require type dict", path))
	}

	for i, rule := range field.Keys {
		if rule.Pattern != "" {
			if _, err := regexp.Compile(rule.Pattern); err != nil {
				errs = append(errs, fmt.Sprintf("field %q: key rule %d: invalid pattern: %v", path, i, err))
			}
		}
		if rule.Schema == nil {
			errs = append(errs, fmt.Sprintf("field %q: key rule %d: schema is required", path, i))
			continue
		}
		errs = append(errs, validateField(fmt.Sprintf("%s.<%s>", path, rule.Pattern), *rule.Schema)...)
	}

	for _, c := range field.Constraints {
		if !c.Type.Known() {
			errs = append(errs, fmt.Sprintf("field %q: unknown constraint %q", path, c.Type))
			continue
		}
		if c.Type == ConstraintPattern {
			pattern, ok := c.Value.(string)
			if !ok {
				errs = append(errs, fmt.Sprintf("field %q: pattern must be a string", path))
			} else if _, err := regexp.Compile(pattern); err != nil {
				errs = append(errs, fmt.Sprintf("field %q: invalid pattern: %v", path, err))
			}
		}
	}

	if field.Items != nil {
		errs = append(errs, validateField(path+".[]", *field.Items)...)
	}
	for i, elem := range field.Tuple {
		errs = append(errs, validateField(fmt.Sprintf("%s.%d", path, i), elem)...)
	}
	if len(field.Schema) > 0 {
		errs = append(errs, validateFields(path, field.Schema)...)
	}

	return errs
}

// walkFields visits every field, nested ones included, in sorted order.
func walkFields(prefix string, fields map[string]Field, fn func(path string, f Field)) {
	for _, name := range SortedNames(fields) {
		walkField(joinPath(prefix, name), fields[name], fn)
	}
}

func walkField(path string, f Field, fn func(path string, f Field)) {
	fn(path, f)
	if f.Items != nil {
		walkField(path+".[]", *f.Items, fn)
	}
	for i, elem := range f.Tuple {
		walkField(fmt.Sprintf("%s.%d", path, i), elem, fn)
	}
	for _, rule := range f.Keys {
		if rule.Schema != nil {
			walkField(path+".<"+rule.Pattern+">", *rule.Schema, fn)
		}
	}
	walkFields(path, f.Schema, fn)
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// isValidIdentifier checks if a string is a valid identifier.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
