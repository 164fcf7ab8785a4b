package validation

import (
	"math"
	"net/http"
	"time"

	"github.com/artpar/docgate/core/schema"
	"github.com/google/uuid"
)

// typeMatches reports whether value conforms to the declared type.
// Decoded JSON numbers arrive as float64, so integer accepts integral floats
// and float accepts any number.
func typeMatches(t schema.FieldType, value any) bool {
	switch t {
	case schema.FieldTypeString:
		_, ok := value.(string)
		return ok
	case schema.FieldTypeInteger:
		return isInteger(value)
	case schema.FieldTypeFloat, schema.FieldTypeNumber:
		return isNumber(value)
	case schema.FieldTypeBoolean:
		_, ok := value.(bool)
		return ok
	case schema.FieldTypeDatetime:
		return isDatetime(value)
	case schema.FieldTypeUUID:
		s, ok := value.(string)
		if !ok {
			return false
		}
		_, err := uuid.Parse(s)
		return err == nil
	case schema.FieldTypeDict:
		_, ok := value.(map[string]any)
		return ok
	case schema.FieldTypeList:
		_, ok := value.([]any)
		return ok
	case schema.FieldTypeAny, "":
		return true
	}
	return false
}

func isNumber(value any) bool {
	switch v := value.(type) {
	case float64:
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case float64:
		return !math.IsInf(v, 0) && v == math.Trunc(v)
	case float32:
		return v == float32(math.Trunc(float64(v)))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// datetimeLayouts are the accepted textual timestamp forms.
var datetimeLayouts = []string{time.RFC3339Nano, http.TimeFormat, time.RFC1123}

func isDatetime(value any) bool {
	switch v := value.(type) {
	case time.Time:
		return true
	case string:
		for _, layout := range datetimeLayouts {
			if _, err := time.Parse(layout, v); err == nil {
				return true
			}
		}
	}
	return false
}
