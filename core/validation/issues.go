package validation

import (
	"strings"
)

// Issue rules. Constraint violations use the constraint type as their rule.
const (
	RuleType         = "type"
	RuleNull         = "nullable"
	RuleUnknown      = "unknown"
	RuleKey          = "keys"
	RuleLength       = "length"
	RuleDependencies = "dependencies"
	RuleRequired     = "required"
	RuleReadOnly     = "readonly"
	RuleUnique       = "unique"
	RuleRelation     = "relation"
)

// Issue is one problem with one value of a document.
type Issue struct {
	Path    string `json:"path" yaml:"path"`
	Rule    string `json:"rule" yaml:"rule"`
	Message string `json:"message" yaml:"message"`
}

// Issues is the ordered list of problems found in a document.
type Issues []Issue

// Add appends an issue.
func (is *Issues) Add(path, rule, message string) {
	*is = append(*is, Issue{Path: path, Rule: rule, Message: message})
}

// Valid reports whether there are no issues.
func (is Issues) Valid() bool {
	return len(is) == 0
}

// Has reports whether any issue is recorded at path.
func (is Issues) Has(path string) bool {
	for _, issue := range is {
		if issue.Path == path {
			return true
		}
	}
	return false
}

// Tree nests issues by path segment, the shape clients receive:
//
//	{"location": {"city": "required field"}, "ref": "min length is 25"}
//
// A path with several issues maps to a list of messages.
func (is Issues) Tree() map[string]any {
	tree := make(map[string]any)
	for _, issue := range is {
		insert(tree, strings.Split(issue.Path, "."), issue.Message)
	}
	return tree
}

func insert(node map[string]any, segments []string, message string) {
	key := segments[0]
	if len(segments) == 1 {
		switch existing := node[key].(type) {
		case nil:
			node[key] = message
		case string:
			node[key] = []string{existing, message}
		case []string:
			node[key] = append(existing, message)
		case map[string]any:
			insert(existing, []string{""}, message)
		}
		return
	}

	var child map[string]any
	switch existing := node[key].(type) {
	case map[string]any:
		child = existing
	case nil:
		child = make(map[string]any)
	default:
		// Messages about the value itself sit under the empty key.
		child = map[string]any{"": existing}
	}
	node[key] = child
	insert(child, segments[1:], message)
}
