package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Constraint defines a validation rule for a field.
type Constraint struct {
	// Type is the constraint type (min, max, min_length, max_length, pattern, etc.)
	Type ConstraintType `yaml:"type" json:"type"`

	// Value is the constraint parameter (number, regex pattern, etc.)
	Value any `yaml:"value" json:"value"`

	// Message is the custom error message (optional).
	Message string `yaml:"message,omitempty" json:"message,omitempty"`
}

// ConstraintType identifies the type of constraint.
type ConstraintType string

const (
	// Numeric constraints
	ConstraintMin ConstraintType = "min"
	ConstraintMax ConstraintType = "max"

	// Length constraints apply to strings (in characters) and lists (in elements).
	ConstraintMinLength ConstraintType = "min_length"
	ConstraintMaxLength ConstraintType = "max_length"
	ConstraintPattern   ConstraintType = "pattern"

	ConstraintNotEmpty ConstraintType = "not_empty"
	ConstraintOneOf    ConstraintType = "one_of"
)

// Known reports whether t is a supported constraint type.
func (t ConstraintType) Known() bool {
	switch t {
	case ConstraintMin, ConstraintMax, ConstraintMinLength, ConstraintMaxLength,
		ConstraintPattern, ConstraintNotEmpty, ConstraintOneOf:
		return true
	}
	return false
}

// ConstraintError represents a constraint violation at a field path.
type ConstraintError struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Value      any    `json:"value,omitempty"`
	Message    string `json:"message"`
}

func (e ConstraintError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConstraint validates a value against a single constraint.
// This is a PURE function. Values of a kind the constraint does not
// apply to are skipped; type checks report those.
func ValidateConstraint(path string, value any, c Constraint) *ConstraintError {
	switch c.Type {
	case ConstraintMin:
		return validateMin(path, value, c)
	case ConstraintMax:
		return validateMax(path, value, c)
	case ConstraintMinLength:
		return validateMinLength(path, value, c)
	case ConstraintMaxLength:
		return validateMaxLength(path, value, c)
	case ConstraintPattern:
		return validatePattern(path, value, c)
	case ConstraintNotEmpty:
		return validateNotEmpty(path, value, c)
	case ConstraintOneOf:
		return validateOneOf(path, value, c)
	default:
		return nil
	}
}

func violation(path string, c Constraint, value any, msg string) *ConstraintError {
	if c.Message != "" {
		msg = c.Message
	}
	return &ConstraintError{Field: path, Constraint: string(c.Type), Value: value, Message: msg}
}

func validateMin(path string, value any, c Constraint) *ConstraintError {
	min, err := toFloat64(c.Value)
	if err != nil {
		return nil
	}
	val, err := numeric(value)
	if err != nil {
		return nil
	}
	if val < min {
		return violation(path, c, value, fmt.Sprintf("min value is %v", c.Value))
	}
	return nil
}

func validateMax(path string, value any, c Constraint) *ConstraintError {
	max, err := toFloat64(c.Value)
	if err != nil {
		return nil
	}
	val, err := numeric(value)
	if err != nil {
		return nil
	}
	if val > max {
		return violation(path, c, value, fmt.Sprintf("max value is %v", c.Value))
	}
	return nil
}

func validateMinLength(path string, value any, c Constraint) *ConstraintError {
	minLen, err := toInt(c.Value)
	if err != nil {
		return nil
	}
	n, ok := length(value)
	if !ok {
		return nil
	}
	if n < minLen {
		return violation(path, c, n, fmt.Sprintf("min length is %d", minLen))
	}
	return nil
}

func validateMaxLength(path string, value any, c Constraint) *ConstraintError {
	maxLen, err := toInt(c.Value)
	if err != nil {
		return nil
	}
	n, ok := length(value)
	if !ok {
		return nil
	}
	if n > maxLen {
		return violation(path, c, n, fmt.Sprintf("max length is %d", maxLen))
	}
	return nil
}

func validatePattern(path string, value any, c Constraint) *ConstraintError {
	pattern, ok := c.Value.(string)
	if !ok {
		return nil
	}
	str, ok := value.(string)
	if !ok {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil // rejected by Validate at load time
	}
	if !re.MatchString(str) {
		return violation(path, c, value, fmt.Sprintf("value does not match regex '%s'", pattern))
	}
	return nil
}

func validateNotEmpty(path string, value any, c Constraint) *ConstraintError {
	str, ok := value.(string)
	if !ok {
		return nil
	}
	if strings.TrimSpace(str) == "" {
		return violation(path, c, value, "empty values not allowed")
	}
	return nil
}

func validateOneOf(path string, value any, c Constraint) *ConstraintError {
	allowed := oneOfValues(c.Value)
	if allowed == nil {
		return nil
	}

	strVal := fmt.Sprintf("%v", value)
	for _, a := range allowed {
		if fmt.Sprintf("%v", a) == strVal {
			return nil
		}
	}
	return violation(path, c, value, fmt.Sprintf("unallowed value %v", value))
}

func oneOfValues(v any) []any {
	switch vals := v.(type) {
	case []any:
		return vals
	case []string:
		out := make([]any, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out
	}
	return nil
}

// length returns the character count of strings and element count of lists.
func length(v any) (int, bool) {
	switch val := v.(type) {
	case string:
		return utf8.RuneCountInString(val), true
	case []any:
		return len(val), true
	}
	return 0, false
}

// numeric converts a document value to float64. Strings are not numbers here.
func numeric(v any) (float64, error) {
	if _, ok := v.(string); ok {
		return 0, fmt.Errorf("string is not numeric")
	}
	return toFloat64(v)
}

// toFloat64 converts various numeric types to float64.
func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}

// toInt converts various types to int.
func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case int32:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}
