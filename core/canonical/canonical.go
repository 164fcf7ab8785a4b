// Package canonical renders document values into a single byte form used for
// content fingerprints and value equality. Object keys are sorted, strings
// are NFC normalised and numbers of any Go numeric type render identically,
// so YAML defaults (int) compare equal to JSON submissions (float64).
package canonical

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/text/unicode/norm"
)

// Marshal produces the canonical JSON rendering of v.
func Marshal(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return json.MarshalNoEscape(normalized)
}

// Equal reports whether a and b have the same canonical rendering.
// Values that cannot be rendered are never equal.
func Equal(a, b any) bool {
	ab, err := Marshal(a)
	if err != nil {
		return false
	}
	bb, err := Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// Key returns the canonical rendering as a string, for use as a map key.
func Key(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil, bool:
		return val, nil
	case string:
		return norm.NFC.String(val), nil
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint:
		return float64(val), nil
	case uint8:
		return float64(val), nil
	case uint16:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	case float32:
		return float64(val), nil
	case float64:
		return val, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", val, err)
		}
		return f, nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			n, err := normalize(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = norm.NFC.String(e)
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			n, err := normalize(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[norm.NFC.String(k)] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
