package model

import (
	"encoding/json"
	"sort"
)

// Schema is an inferred, permissive JSON Schema for a row list.
type Schema struct {
	Properties []Property
}

// Property is one observed key and every JSON type seen for it.
type Property struct {
	Name  string
	Types []string // sorted, "null" included when observed
}

// Columns returns the property names in declared order.
func (s *Schema) Columns() []string {
	if s == nil {
		return nil
	}
	cols := make([]string, len(s.Properties))
	for i, p := range s.Properties {
		cols[i] = p.Name
	}
	return cols
}

// Property looks up a property by name.
func (s *Schema) Property(name string) (Property, bool) {
	if s == nil {
		return Property{}, false
	}
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Document returns the schema as plain maps, ready for JSON Schema tooling.
func (s *Schema) Document() map[string]interface{} {
	props := make(map[string]interface{}, len(s.Properties))
	order := make([]interface{}, 0, len(s.Properties))
	for _, p := range s.Properties {
		prop := map[string]interface{}{}
		if t := typeValue(p.Types); t != nil {
			prop["type"] = t
		}
		props[p.Name] = prop
		order = append(order, p.Name)
	}
	return map[string]interface{}{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type":    "array",
		"items": map[string]interface{}{
			"type":                 "object",
			"properties":           props,
			"additionalProperties": true,
		},
		"x-propertyOrder": order,
	}
}

// typeValue renders the JSON Schema "type" keyword. Values of a Go type
// with no JSON Schema name leave the property unconstrained.
func typeValue(types []string) interface{} {
	out := make([]interface{}, 0, len(types))
	for _, t := range types {
		if t == "unknown" {
			return nil
		}
		out = append(out, t)
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// MarshalJSON writes properties in declared order.
func (s *Schema) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	props := NewRow(len(s.Properties))
	for _, p := range s.Properties {
		prop := NewRow(1)
		if t := typeValue(p.Types); t != nil {
			prop.Set("type", t)
		}
		props.Set(p.Name, prop)
	}
	order := make([]interface{}, len(s.Properties))
	for i, p := range s.Properties {
		order[i] = p.Name
	}
	doc := RowOf(
		"$schema", "http://json-schema.org/draft-07/schema#",
		"type", "array",
		"items", RowOf(
			"type", "object",
			"properties", props,
			"additionalProperties", true,
		),
		"x-propertyOrder", order,
	)
	return doc.MarshalJSON()
}

// UnmarshalJSON reads a schema written by MarshalJSON (or any array-of-object
// JSON Schema). Without x-propertyOrder, properties are sorted by name.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var raw struct {
		Items struct {
			Properties map[string]struct {
				Type json.RawMessage `json:"type"`
			} `json:"properties"`
		} `json:"items"`
		Order []string `json:"x-propertyOrder"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	order := raw.Order
	if len(order) == 0 {
		for name := range raw.Items.Properties {
			order = append(order, name)
		}
		sort.Strings(order)
	}
	s.Properties = s.Properties[:0]
	for _, name := range order {
		p := Property{Name: name}
		if def, ok := raw.Items.Properties[name]; ok {
			var one string
			if err := json.Unmarshal(def.Type, &one); err == nil {
				p.Types = []string{one}
			} else {
				_ = json.Unmarshal(def.Type, &p.Types)
			}
		}
		s.Properties = append(s.Properties, p)
	}
	return nil
}
