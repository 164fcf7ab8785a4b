package rules

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
)

// functions is the set of helpers available in every condition.
func functions() []expr.Option {
	return []expr.Option{
		// String functions
		expr.Function("lower", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("lower requires 1 argument")
			}
			return strings.ToLower(toString(params[0])), nil
		}),
		expr.Function("upper", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("upper requires 1 argument")
			}
			return strings.ToUpper(toString(params[0])), nil
		}),
		expr.Function("trim", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("trim requires 1 argument")
			}
			return strings.TrimSpace(toString(params[0])), nil
		}),
		expr.Function("has", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("has requires 2 arguments (doc, path)")
			}
			_, ok := lookup(params[0], toString(params[1]))
			return ok, nil
		}),
		expr.Function("get", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("get requires 2 arguments (doc, path)")
			}
			v, _ := lookup(params[0], toString(params[1]))
			return v, nil
		}),
		expr.Function("coalesce", func(params ...any) (any, error) {
			for _, p := range params {
				if p != nil && p != "" {
					return p, nil
				}
			}
			return nil, nil
		}),
		expr.Function("toString", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("toString requires 1 argument")
			}
			return toString(params[0]), nil
		}),
		expr.Function("toFloat", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("toFloat requires 1 argument")
			}
			return toFloat(params[0]), nil
		}),
		// sum(docs, field) adds a numeric field across documents.
		expr.Function("sum", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("sum requires 2 arguments (docs, field)")
			}
			arr, ok := params[0].([]any)
			if !ok {
				return 0.0, nil
			}
			var total float64
			for _, item := range arr {
				if v, ok := lookup(item, toString(params[1])); ok {
					total += toFloat(v)
				}
			}
			return total, nil
		}),
	}
}

// lookup follows a dotted path through nested documents.
func lookup(v any, path string) (any, bool) {
	current := v
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		var f float64
		fmt.Sscanf(val, "%f", &f)
		return f
	default:
		return 0
	}
}
