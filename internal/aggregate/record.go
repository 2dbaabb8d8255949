package aggregate

import (
	"encoding/json"
	"fmt"
)

// Record is one structured line of CLI output.
type Record map[string]any

// decode parses a line as JSON. It does not require an object.
func decode(line string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(line), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// String returns the string value of key. Absent and null keys yield "".
// Any other JSON type is an error.
func (r Record) String(key string) (string, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &FieldTypeError{Key: key, Want: "string", Got: jsonKind(v)}
	}
	return s, nil
}

// LookupString is String that also reports whether key held a string.
// Absent and null keys yield ok == false; an empty string yields ok == true.
func (r Record) LookupString(key string) (s string, ok bool, err error) {
	v, present := r[key]
	if !present || v == nil {
		return "", false, nil
	}
	s, ok = v.(string)
	if !ok {
		return "", false, &FieldTypeError{Key: key, Want: "string", Got: jsonKind(v)}
	}
	return s, true, nil
}

// Object returns the nested object under key. Absent and null keys yield
// a nil Record, which is safe to read from.
func (r Record) Object(key string) (Record, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &FieldTypeError{Key: key, Want: "object", Got: jsonKind(v)}
	}
	return Record(m), nil
}

// Bool returns the boolean value of key, false when absent or null.
func (r Record) Bool(key string) (bool, error) {
	v, ok := r[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, &FieldTypeError{Key: key, Want: "boolean", Got: jsonKind(v)}
	}
	return b, nil
}

// Type returns the record's type tag.
func (r Record) Type() (string, error) {
	return r.String("type")
}

// nestedString reads r[outer][inner] as a string.
func (r Record) nestedString(outer, inner string) (string, error) {
	obj, err := r.Object(outer)
	if err != nil {
		return "", err
	}
	s, err := obj.String(inner)
	if err != nil {
		return "", fmt.Errorf("%s: %w", outer, err)
	}
	return s, nil
}

// FieldTypeError reports a recognized key holding the wrong JSON type.
type FieldTypeError struct {
	Key  string
	Want string
	Got  string
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("field %q is %s, want %s", e.Key, e.Got, e.Want)
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case float64, json.Number:
		return "a number"
	case bool:
		return "a boolean"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
