package vectorstore

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Metadata is a JSON-compatible mapping attached to collections and documents.
//
// Values are limited to string, float64, int64, bool, nil, []any and
// map[string]any. Normalize converts other Go values into that set.
type Metadata map[string]any

// Collection is a named group of documents with collection-level metadata.
type Collection struct {
	Name     string   `json:"name"`
	Metadata Metadata `json:"metadata"`
}

// Document is a chunk of text with its metadata. ID is only used when
// writing and is not part of the serialized form.
type Document struct {
	ID       string   `json:"-"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// MarshalJSON always emits an object, never null.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}

// OrEmpty returns m, or an empty mapping when m is nil.
func (m Metadata) OrEmpty() Metadata {
	if m == nil {
		return Metadata{}
	}
	return m
}

// Normalize returns a copy of m whose values are restricted to JSON kinds.
// Integers become int64, floats become float64 and typed slices and maps are
// converted recursively. Values with no JSON form are rendered with %v.
func (m Metadata) Normalize() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint32:
		return int64(val)
	case float32:
		return float64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case Metadata:
		return map[string]any(val.Normalize())
	case map[string]any:
		return map[string]any(Metadata(val).Normalize())
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalizeValue(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalizeValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = normalizeValue(iter.Value().Interface())
			}
			return out
		}
	}
	return fmt.Sprintf("%v", v)
}

// scalarString renders a scalar metadata value for backends that only
// store strings.
func scalarString(v any) string {
	switch val := normalizeValue(v).(type) {
	case string:
		return val
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}
