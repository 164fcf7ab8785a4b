// Package resolve fills absent fields from schema-declared defaults and
// computed sources before validation runs.
//
// Fields are evaluated in topological order over the dependency graph the
// schema declares (dependencies plus computed sources), so a field is only
// resolved once everything it names has its final value, submitted or
// defaulted. A cycle in that graph is a configuration error.
package resolve

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/artpar/docgate/core/schema"
)

// ErrCyclicDependency is wrapped by every CyclicDependencyError.
var ErrCyclicDependency = errors.New("cyclic dependency")

// CyclicDependencyError names the fields forming a dependency cycle.
type CyclicDependencyError struct {
	// Path lists the cycle, first field repeated at the end: [a b a].
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(e.Path, " -> "))
}

func (e *CyclicDependencyError) Unwrap() error {
	return ErrCyclicDependency
}

// Plan is a precomputed resolution order for one schema level, with plans
// for nested document schemas.
type Plan struct {
	fields map[string]schema.Field
	order  []string
	nested map[string]*Plan // field name -> plan for its dict schema or dict list items
}

// NewPlan computes the resolution order for fields and every nested schema.
func NewPlan(fields map[string]schema.Field) (*Plan, error) {
	return newPlan("", fields)
}

func newPlan(prefix string, fields map[string]schema.Field) (*Plan, error) {
	order, err := Order(fields)
	if err != nil {
		var cycle *CyclicDependencyError
		if prefix != "" && errors.As(err, &cycle) {
			for i, name := range cycle.Path {
				cycle.Path[i] = prefix + "." + name
			}
		}
		return nil, err
	}

	p := &Plan{fields: fields, order: order, nested: make(map[string]*Plan)}
	for _, name := range order {
		f := fields[name]
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		var sub map[string]schema.Field
		switch {
		case len(f.Schema) > 0:
			sub = f.Schema
		case f.Items != nil && len(f.Items.Schema) > 0:
			sub = f.Items.Schema
		}
		if sub == nil {
			continue
		}

		child, err := newPlan(path, sub)
		if err != nil {
			return nil, err
		}
		p.nested[name] = child
	}
	return p, nil
}

// Order returns field names so that every field comes after the fields it
// depends on. Ties are broken alphabetically, so the order is deterministic.
func Order(fields map[string]schema.Field) ([]string, error) {
	indegree := make(map[string]int, len(fields))
	dependents := make(map[string][]string, len(fields))

	for name, f := range fields {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range f.DependsOn() {
			if _, ok := fields[dep]; !ok {
				// Dangling references are rejected by schema.Validate; ignore here.
				continue
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(fields))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		next := dependents[name]
		sort.Strings(next)
		for _, d := range next {
			indegree[d]--
			if indegree[d] == 0 {
				ready = insertSorted(ready, d)
			}
		}
	}

	if len(order) < len(fields) {
		return nil, &CyclicDependencyError{Path: findCycle(fields, indegree)}
	}
	return order, nil
}

func insertSorted(list []string, s string) []string {
	i := sort.SearchStrings(list, s)
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}

// findCycle walks the unresolved remainder of the graph and returns one cycle.
// Every node left with a positive indegree lies on or behind a cycle, so a
// walk along unresolved dependencies must revisit a node.
func findCycle(fields map[string]schema.Field, indegree map[string]int) []string {
	var start string
	for _, name := range schema.SortedNames(fields) {
		if indegree[name] > 0 {
			start = name
			break
		}
	}

	seen := make(map[string]int)
	var path []string
	node := start
	for {
		if i, ok := seen[node]; ok {
			cycle := append([]string{}, path[i:]...)
			return append(cycle, node)
		}
		seen[node] = len(path)
		path = append(path, node)

		deps := fields[node].DependsOn()
		sort.Strings(deps)
		next := ""
		for _, d := range deps {
			if indegree[d] > 0 {
				next = d
				break
			}
		}
		if next == "" {
			return path
		}
		node = next
	}
}

// Order returns the top-level resolution order of the plan.
func (p *Plan) Order() []string {
	return append([]string(nil), p.order...)
}

// Apply returns a resolved copy of candidate. The candidate is never mutated.
// Only absence triggers substitution: a default of "", 0 or false is applied
// exactly like any other value.
func (p *Plan) Apply(candidate map[string]any) map[string]any {
	out := make(map[string]any, len(candidate)+len(p.fields))
	for k, v := range candidate {
		out[k] = v
	}

	for _, name := range p.order {
		f := p.fields[name]

		if _, present := out[name]; !present {
			switch {
			case f.Computed != "" && has(out, f.Computed):
				out[name] = Clone(out[f.Computed])
			case f.HasDefault():
				out[name] = Clone(f.Default)
			}
		}

		child := p.nested[name]
		if child == nil {
			continue
		}
		switch v := out[name].(type) {
		case map[string]any:
			if len(f.Schema) > 0 {
				out[name] = child.Apply(v)
			}
		case []any:
			if f.Items != nil && len(f.Items.Schema) > 0 {
				items := make([]any, len(v))
				for i, item := range v {
					if m, ok := item.(map[string]any); ok {
						items[i] = child.Apply(m)
					} else {
						items[i] = item
					}
				}
				out[name] = items
			}
		}
	}

	return out
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

// Clone deep-copies maps and slices so resolved documents never share
// storage with schema defaults or with each other.
func Clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// CloneDocument deep-copies a document.
func CloneDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	return Clone(doc).(map[string]any)
}
