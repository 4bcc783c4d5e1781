package models

import (
	"encoding/json"
	"strings"
)

// Properties is the loosely typed payload attached to an event. All accessors
// are nil-safe and return zero values for missing or mistyped fields.
type Properties map[string]any

// DecodeProperties parses a stored JSON object. Anything that is not a JSON
// object decodes to an empty Properties.
func DecodeProperties(raw string) Properties {
	if strings.TrimSpace(raw) == "" {
		return Properties{}
	}
	var p Properties
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p == nil {
		return Properties{}
	}
	return p
}

// String returns the string value at key, or "" if absent or not a string.
func (p Properties) String(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// Bool returns the boolean value at key and whether it was present as a bool.
func (p Properties) Bool(key string) (bool, bool) {
	if p == nil {
		return false, false
	}
	b, ok := p[key].(bool)
	return b, ok
}

// Nested returns the object at key. A missing or non-object value yields nil,
// which is still safe to call accessors on.
func (p Properties) Nested(key string) Properties {
	if p == nil {
		return nil
	}
	switch v := p[key].(type) {
	case map[string]any:
		return Properties(v)
	case Properties:
		return v
	default:
		return nil
	}
}

// Path walks nested objects and returns the string at the final key.
func (p Properties) Path(keys ...string) string {
	if len(keys) == 0 {
		return ""
	}
	cur := p
	for _, k := range keys[:len(keys)-1] {
		cur = cur.Nested(k)
	}
	return cur.String(keys[len(keys)-1])
}

// OptionalString returns a pointer to the string at the nested path, or nil
// when it is absent or empty.
func (p Properties) OptionalString(keys ...string) *string {
	s := p.Path(keys...)
	if s == "" {
		return nil
	}
	return &s
}
