package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"go-plan-pipeline/internal/model"
)

// InferSchema derives a permissive schema from rows: the union of observed
// keys in first-seen order, each allowing every JSON type seen for it.
func InferSchema(rows []*model.Row) *model.Schema {
	var order []string
	types := make(map[string]map[string]struct{})
	for _, row := range rows {
		if row == nil {
			continue
		}
		for _, key := range row.Keys() {
			v, _ := row.Get(key)
			set, ok := types[key]
			if !ok {
				set = make(map[string]struct{})
				types[key] = set
				order = append(order, key)
			}
			set[model.TypeName(v)] = struct{}{}
		}
	}

	schema := &model.Schema{Properties: make([]model.Property, 0, len(order))}
	for _, key := range order {
		list := make([]string, 0, len(types[key]))
		for t := range types[key] {
			list = append(list, t)
		}
		sort.Strings(list)
		schema.Properties = append(schema.Properties, model.Property{Name: key, Types: list})
	}
	return schema
}

// ValidateRows checks rows against schema with a JSON Schema validator.
func ValidateRows(schema *model.Schema, rows []*model.Row) error {
	if schema == nil {
		return model.ErrValidation("schema is required")
	}
	if rows == nil {
		rows = []*model.Row{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema.Document()),
		gojsonschema.NewGoLoader(model.Plain(rows)),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed to run: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return model.ErrValidation("rows do not match schema: %s", strings.Join(msgs, "; "))
	}
	return nil
}
