package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Row is an insertion-ordered JSON object. Rows produced by the interpreter are
// never modified after they are handed to the next step; Set is only used while
// a new row is being built.
type Row struct {
	keys   []string
	values map[string]interface{}
}

// NewRow creates an empty row with room for n fields.
func NewRow(n int) *Row {
	return &Row{
		keys:   make([]string, 0, n),
		values: make(map[string]interface{}, n),
	}
}

// RowOf builds a row from alternating key/value pairs. Used mostly by tests.
func RowOf(kv ...interface{}) *Row {
	r := NewRow(len(kv) / 2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		r.Set(k, kv[i+1])
	}
	return r
}

// Set adds or replaces a field. A replaced field keeps its position.
func (r *Row) Set(key string, value interface{}) {
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key.
func (r *Row) Get(key string) (interface{}, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Has reports whether key is present.
func (r *Row) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Keys returns the field names in insertion order.
func (r *Row) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *Row) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Clone returns a shallow copy that can be extended without touching r.
func (r *Row) Clone() *Row {
	c := NewRow(r.Len() + 1)
	if r == nil {
		return c
	}
	for _, k := range r.keys {
		c.Set(k, r.values[k])
	}
	return c
}

// MarshalJSON writes the fields in insertion order.
func (r *Row) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keeping its key order.
func (r *Row) UnmarshalJSON(data []byte) error {
	v, err := DecodeDocument(data)
	if err != nil {
		return err
	}
	obj, ok := v.(*Row)
	if !ok {
		return ErrValidation("expected a JSON object, got %s", TypeName(v))
	}
	*r = *obj
	return nil
}

// Plain converts a document value into plain maps and slices, the shape most
// third-party JSON tooling expects.
func Plain(v interface{}) interface{} {
	switch val := v.(type) {
	case *Row:
		if val == nil {
			return nil
		}
		m := make(map[string]interface{}, val.Len())
		for _, k := range val.keys {
			m[k] = Plain(val.values[k])
		}
		return m
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Plain(item)
		}
		return out
	case []*Row:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Plain(item)
		}
		return out
	default:
		return v
	}
}

// TypeName returns the JSON type name of a document value.
func TypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64, float32, int, int64, json.Number:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case *Row:
		return "object"
	default:
		return "unknown"
	}
}

// ExportResult represents the result of an export operation
type ExportResult struct {
	Type        string    `json:"type"` // "csv", "json"
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	Columns     []string  `json:"columns"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
