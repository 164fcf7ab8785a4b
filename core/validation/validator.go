// Package validation checks resolved documents against their resource schema
// and against live storage state.
//
// A Session covers one batch. It remembers the unique values claimed by the
// documents it accepted, so a later document in the same batch that repeats
// one is rejected even though nothing has been written yet.
package validation

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/artpar/docgate/core/canonical"
	"github.com/artpar/docgate/core/convention"
	"github.com/artpar/docgate/core/schema"
	"github.com/artpar/docgate/core/storage"
	"github.com/rs/zerolog"
)

// Validator validates documents for any resource of a domain.
type Validator struct {
	lookup   storage.Lookup
	settings convention.Settings
	logger   zerolog.Logger
}

// New creates a validator. Uniqueness and relation checks query lookup.
func New(lookup storage.Lookup, settings convention.Settings, logger zerolog.Logger) *Validator {
	return &Validator{
		lookup:   lookup,
		settings: settings.WithDefaults(),
		logger:   logger,
	}
}

// Session starts validating one batch for res.
func (v *Validator) Session(res schema.Resource) *Session {
	return &Session{
		v:            v,
		res:          res,
		allowUnknown: res.AllowsUnknown(v.settings.AllowUnknown),
		claims:       make(map[string]map[string]struct{}),
	}
}

// Session validates the documents of one batch in submission order.
// It is not safe for concurrent use.
type Session struct {
	v            *Validator
	res          schema.Resource
	allowUnknown bool
	claims       map[string]map[string]struct{}
}

// Validate returns every issue found in doc. An error means storage could
// not be queried; it is never a property of the document.
func (s *Session) Validate(ctx context.Context, doc map[string]any) (Issues, error) {
	var issues Issues

	// Paths whose value failed structural checks are skipped by the storage checks.
	bad := make(map[string]bool)

	s.checkDocument("", s.res.Schema, doc, &issues)
	for _, issue := range issues {
		bad[issue.Path] = true
	}

	s.checkRequired(doc, &issues)
	s.checkReadOnly(doc, &issues)

	if err := s.checkUnique(ctx, doc, bad, &issues); err != nil {
		return nil, err
	}
	if err := s.checkRelations(ctx, doc, bad, &issues); err != nil {
		return nil, err
	}

	if issues.Valid() {
		s.claim(doc)
	} else {
		s.v.logger.Debug().
			Str("resource", s.res.Name).
			Int("issues", len(issues)).
			Msg("document rejected")
	}

	return issues, nil
}

// checkDocument runs type, structure, constraint and dependency checks.
func (s *Session) checkDocument(prefix string, fields map[string]schema.Field, doc map[string]any, issues *Issues) {
	for _, name := range schema.SortedNames(fields) {
		value, present := doc[name]
		if !present {
			continue
		}
		field := fields[name]
		path := joinPath(prefix, name)

		s.checkValue(path, field, value, issues)

		for _, dep := range field.Dependencies {
			if _, ok := doc[dep]; !ok {
				issues.Add(path, RuleDependencies, fmt.Sprintf("field '%s' is required", dep))
			}
		}
	}

	if s.allowUnknown {
		return
	}
	for _, name := range sortedKeys(doc) {
		if _, declared := fields[name]; !declared {
			issues.Add(joinPath(prefix, name), RuleUnknown, "unknown field")
		}
	}
}

// checkValue validates one present value, recursing by field kind.
func (s *Session) checkValue(path string, field schema.Field, value any, issues *Issues) {
	if value == nil {
		if !field.Nullable {
			issues.Add(path, RuleNull, "null value not allowed")
		}
		return
	}

	if !typeMatches(field.Type, value) {
		issues.Add(path, RuleType, fmt.Sprintf("must be of %s type", field.Type))
		return
	}

	for _, c := range field.Constraints {
		if violation := schema.ValidateConstraint(path, value, c); violation != nil {
			issues.Add(path, string(c.Type), violation.Message)
		}
	}

	switch field.Kind() {
	case schema.KindDocument:
		if len(field.Schema) > 0 {
			s.checkDocument(path, field.Schema, value.(map[string]any), issues)
		}

	case schema.KindKeyed:
		s.checkKeys(path, field.Keys, value.(map[string]any), issues)

	case schema.KindList:
		list := value.([]any)
		if len(field.Tuple) > 0 {
			if len(list) != len(field.Tuple) {
				issues.Add(path, RuleLength,
					fmt.Sprintf("length of list should be %d, it is %d", len(field.Tuple), len(list)))
				return
			}
			for i, elem := range list {
				s.checkValue(indexPath(path, i), field.Tuple[i], elem, issues)
			}
			return
		}
		if field.Items != nil {
			for i, elem := range list {
				s.checkValue(indexPath(path, i), *field.Items, elem, issues)
			}
		}
	}
}

// checkKeys validates every entry of a mapping against the first key rule
// whose pattern matches the key. Issues are keyed by the offending key.
func (s *Session) checkKeys(path string, rules []schema.KeyRule, m map[string]any, issues *Issues) {
	for _, key := range sortedKeys(m) {
		rule, ok := matchKeyRule(rules, key)
		if !ok {
			issues.Add(joinPath(path, key), RuleKey, "key does not match any allowed pattern")
			continue
		}
		s.checkValue(joinPath(path, key), *rule.Schema, m[key], issues)
	}
}

var patterns sync.Map // pattern -> *regexp.Regexp

// compiled returns the cached regexp for pattern. Schemas are checked at load,
// so a nil result only follows a schema that skipped validation.
func compiled(pattern string) *regexp.Regexp {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	patterns.Store(pattern, re)
	return re
}

func matchKeyRule(rules []schema.KeyRule, key string) (schema.KeyRule, bool) {
	for _, rule := range rules {
		if rule.Schema == nil {
			continue
		}
		if rule.Pattern == "" {
			return rule, true
		}
		if re := compiled(rule.Pattern); re != nil && re.MatchString(key) {
			return rule, true
		}
	}
	return schema.KeyRule{}, false
}

// checkRequired reports declared-required fields with no resolved value.
func (s *Session) checkRequired(doc map[string]any, issues *Issues) {
	walk("", s.res.Schema, doc, func(path string, field schema.Field, _ any, present bool, _ map[string]any) {
		if field.Required && !present {
			issues.Add(path, RuleRequired, "required field")
		}
	})
}

// checkReadOnly rejects values of read-only fields other than their default.
// A computed read-only field may only hold its source's value.
func (s *Session) checkReadOnly(doc map[string]any, issues *Issues) {
	walk("", s.res.Schema, doc, func(path string, field schema.Field, value any, present bool, siblings map[string]any) {
		if !field.ReadOnly || !present {
			return
		}
		switch {
		case field.HasDefault() && canonical.Equal(value, field.Default):
			return
		case field.Computed != "":
			if source, ok := siblings[field.Computed]; ok && canonical.Equal(value, source) {
				return
			}
		}
		issues.Add(path, RuleReadOnly, "field is read-only")
	})
}

// uniqueFields lists top-level fields whose values must not repeat. A
// declared id field is always unique.
func (s *Session) uniqueFields() []string {
	idField := s.v.settings.Names.ID
	var out []string
	for _, name := range s.res.FieldNames() {
		if s.res.Schema[name].Unique || name == idField {
			out = append(out, name)
		}
	}
	return out
}

// checkUnique rejects values already stored or claimed earlier in the batch.
func (s *Session) checkUnique(ctx context.Context, doc map[string]any, bad map[string]bool, issues *Issues) error {
	for _, name := range s.uniqueFields() {
		value, present := doc[name]
		if !present || value == nil || bad[name] {
			continue
		}

		key, err := canonical.Key(value)
		if err != nil {
			return fmt.Errorf("unique %s: %w", name, err)
		}
		if _, claimed := s.claims[name][key]; claimed {
			issues.Add(name, RuleUnique, fmt.Sprintf("value '%v' is not unique", value))
			continue
		}

		existing, err := s.v.lookup.FindOne(ctx, s.res.Name, storage.Filter{name: value})
		if err != nil {
			return fmt.Errorf("unique %s.%s: %w", s.res.Name, name, err)
		}
		if existing != nil {
			issues.Add(name, RuleUnique, fmt.Sprintf("value '%v' is not unique", value))
		}
	}
	return nil
}

// claim records the unique values of an accepted document.
func (s *Session) claim(doc map[string]any) {
	for _, name := range s.uniqueFields() {
		value, present := doc[name]
		if !present || value == nil {
			continue
		}
		key, err := canonical.Key(value)
		if err != nil {
			continue
		}
		if s.claims[name] == nil {
			s.claims[name] = make(map[string]struct{})
		}
		s.claims[name][key] = struct{}{}
	}
}

// checkRelations verifies that every reference points at a stored document.
func (s *Session) checkRelations(ctx context.Context, doc map[string]any, bad map[string]bool, issues *Issues) error {
	var err error
	walk("", s.res.Schema, doc, func(path string, field schema.Field, value any, present bool, _ map[string]any) {
		if err != nil || field.Relation == nil || !present || value == nil || bad[path] {
			return
		}

		target := field.Relation.Field
		if target == "" {
			target = s.v.settings.Names.ID
		}

		existing, lookupErr := s.v.lookup.FindOne(ctx, field.Relation.Resource, storage.Filter{target: value})
		if lookupErr != nil {
			err = fmt.Errorf("relation %s: %w", path, lookupErr)
			return
		}
		if existing == nil {
			issues.Add(path, RuleRelation, fmt.Sprintf("value '%v' must exist in resource '%s', field '%s'",
				value, field.Relation.Resource, target))
		}
	})
	return err
}

// visitFunc receives each declared value. siblings is the enclosing
// document for document fields and nil for list elements and keyed entries.
type visitFunc func(path string, field schema.Field, value any, present bool, siblings map[string]any)

// walk visits every declared field of doc, descending into present nested
// documents, list elements and keyed entries of the right shape.
func walk(prefix string, fields map[string]schema.Field, doc map[string]any, fn visitFunc) {
	for _, name := range schema.SortedNames(fields) {
		value, present := doc[name]
		path := joinPath(prefix, name)
		fn(path, fields[name], value, present, doc)
		if present {
			descend(path, fields[name], value, fn)
		}
	}
}

func descend(path string, field schema.Field, value any, fn visitFunc) {
	switch v := value.(type) {
	case map[string]any:
		if len(field.Schema) > 0 {
			walk(path, field.Schema, v, fn)
			return
		}
		for _, key := range sortedKeys(v) {
			if rule, ok := matchKeyRule(field.Keys, key); ok {
				p := joinPath(path, key)
				fn(p, *rule.Schema, v[key], true, nil)
				descend(p, *rule.Schema, v[key], fn)
			}
		}
	case []any:
		for i, elem := range v {
			var spec schema.Field
			switch {
			case len(field.Tuple) > 0 && i < len(field.Tuple):
				spec = field.Tuple[i]
			case len(field.Tuple) == 0 && field.Items != nil:
				spec = *field.Items
			default:
				continue
			}
			p := indexPath(path, i)
			fn(p, spec, elem, true, nil)
			descend(p, spec, elem, fn)
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func indexPath(prefix string, i int) string {
	return prefix + "." + strconv.Itoa(i)
}
