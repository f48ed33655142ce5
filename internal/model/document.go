package model

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/buger/jsonparser"
)

// DecodeDocument decodes a JSON document into the document value tree
// (nil, bool, float64, string, []interface{}, *Row). Object key order is
// preserved, which encoding/json's map decoding cannot do.
func DecodeDocument(data []byte) (interface{}, error) {
	if !json.Valid(data) {
		return nil, ErrValidation("document is not valid JSON")
	}
	raw, dataType, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, ErrValidation("document is not valid JSON: %v", err)
	}
	return decodeValue(raw, dataType)
}

func decodeValue(raw []byte, dataType jsonparser.ValueType) (interface{}, error) {
	switch dataType {
	case jsonparser.Null:
		return nil, nil
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(raw)
	case jsonparser.Number:
		return jsonparser.ParseFloat(raw)
	case jsonparser.String:
		return jsonparser.ParseString(raw)
	case jsonparser.Object:
		row := NewRow(8)
		err := jsonparser.ObjectEach(raw, func(key, value []byte, vt jsonparser.ValueType, _ int) error {
			child, err := decodeValue(value, vt)
			if err != nil {
				return err
			}
			// ObjectEach hands keys over already unescaped.
			row.Set(string(key), child)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("decode object: %w", err)
		}
		return row, nil
	case jsonparser.Array:
		items := make([]interface{}, 0)
		var itemErr error
		_, err := jsonparser.ArrayEach(raw, func(value []byte, vt jsonparser.ValueType, _ int, err error) {
			if itemErr != nil {
				return
			}
			if err != nil {
				itemErr = err
				return
			}
			child, err := decodeValue(value, vt)
			if err != nil {
				itemErr = err
				return
			}
			items = append(items, child)
		})
		if err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		if itemErr != nil {
			return nil, fmt.Errorf("decode array item: %w", itemErr)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unsupported JSON value type %v", dataType)
	}
}

// FromPlain converts values produced by encoding/json (maps, slices) into
// the document tree. Map keys are sorted since their order is already lost.
func FromPlain(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		row := NewRow(len(keys))
		for _, k := range keys {
			row.Set(k, FromPlain(val[k]))
		}
		return row
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = FromPlain(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return f
	default:
		return v
	}
}

// EncodeDocument renders a document value as compact JSON.
func EncodeDocument(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
