package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Condition is a boolean predicate tree. Implementations: *AndCondition,
// *OrCondition, *NotCondition and *Predicate.
type Condition interface {
	condition()
}

// AndCondition is true when every child is true.
type AndCondition struct {
	Conditions []Condition
}

// OrCondition is true when any child is true.
type OrCondition struct {
	Conditions []Condition
}

// NotCondition negates its single child.
type NotCondition struct {
	Condition Condition
}

// CompareOp is a leaf predicate operator.
type CompareOp string

const (
	CmpEq       CompareOp = "eq"
	CmpNeq      CompareOp = "neq"
	CmpGt       CompareOp = "gt"
	CmpGte      CompareOp = "gte"
	CmpLt       CompareOp = "lt"
	CmpLte      CompareOp = "lte"
	CmpContains CompareOp = "contains"
	CmpIn       CompareOp = "in"
)

var compareAliases = map[string]CompareOp{
	"eq": CmpEq, "=": CmpEq, "==": CmpEq, "equals": CmpEq,
	"neq": CmpNeq, "ne": CmpNeq, "!=": CmpNeq,
	"gt": CmpGt, ">": CmpGt,
	"gte": CmpGte, ">=": CmpGte, "ge": CmpGte,
	"lt": CmpLt, "<": CmpLt,
	"lte": CmpLte, "<=": CmpLte, "le": CmpLte,
	"contains": CmpContains,
	"in":       CmpIn,
}

// ParseCompareOp normalizes a predicate operator name.
func ParseCompareOp(s string) (CompareOp, bool) {
	op, ok := compareAliases[strings.ToLower(strings.TrimSpace(s))]
	return op, ok
}

// Operand is either a field reference or a literal.
type Operand struct {
	Field string
	Value interface{}
	Ref   bool
}

// FieldRef builds a field operand.
func FieldRef(path string) Operand { return Operand{Field: path, Ref: true} }

// Literal builds a literal operand.
func Literal(v interface{}) Operand { return Operand{Value: v} }

// Predicate compares two operands.
type Predicate struct {
	Op    CompareOp
	Left  Operand
	Right Operand
}

func (*AndCondition) condition() {}
func (*OrCondition) condition()  {}
func (*NotCondition) condition() {}
func (*Predicate) condition()    {}

// MarshalCondition renders a condition tree in its wire form.
func MarshalCondition(c Condition) ([]byte, error) {
	switch cond := c.(type) {
	case nil:
		return []byte("null"), nil
	case *AndCondition:
		children, err := marshalConditions(cond.Conditions)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{"and": children})
	case *OrCondition:
		children, err := marshalConditions(cond.Conditions)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{"or": children})
	case *NotCondition:
		child, err := MarshalCondition(cond.Condition)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{"not": child})
	case *Predicate:
		return json.Marshal(struct {
			Op    CompareOp   `json:"op"`
			Left  interface{} `json:"left"`
			Right interface{} `json:"right"`
		}{cond.Op, operandWire(cond.Left), operandWire(cond.Right)})
	}
	return nil, fmt.Errorf("unsupported condition %T", c)
}

func marshalConditions(conds []Condition) (json.RawMessage, error) {
	parts := make([]json.RawMessage, 0, len(conds))
	for _, c := range conds {
		b, err := MarshalCondition(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, b)
	}
	return json.Marshal(parts)
}

func operandWire(o Operand) interface{} {
	if o.Ref {
		return map[string]string{"field": o.Field}
	}
	return map[string]interface{}{"value": o.Value}
}

// DecodeCondition decodes the wire form of a condition. Leaves may be written
// as {"op","left","right"} or the shorthand {"field","op","value"}.
func DecodeCondition(data []byte) (Condition, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("condition is not an object: %w", err)
	}
	if body, ok := obj["and"]; ok {
		children, err := decodeConditions(body)
		if err != nil {
			return nil, fmt.Errorf("and: %w", err)
		}
		return &AndCondition{Conditions: children}, nil
	}
	if body, ok := obj["or"]; ok {
		children, err := decodeConditions(body)
		if err != nil {
			return nil, fmt.Errorf("or: %w", err)
		}
		return &OrCondition{Conditions: children}, nil
	}
	if body, ok := obj["not"]; ok {
		child, err := DecodeCondition(body)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return &NotCondition{Condition: child}, nil
	}

	var opName string
	if raw, ok := obj["op"]; ok {
		if err := json.Unmarshal(raw, &opName); err != nil {
			return nil, fmt.Errorf("op must be a string")
		}
	}
	switch strings.ToLower(opName) {
	case "and", "or":
		body := obj["conditions"]
		children, err := decodeConditions(body)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(opName, "and") {
			return &AndCondition{Conditions: children}, nil
		}
		return &OrCondition{Conditions: children}, nil
	}
	op, ok := ParseCompareOp(opName)
	if !ok {
		return nil, fmt.Errorf("unknown condition operator %q", opName)
	}

	pred := &Predicate{Op: op}
	if raw, ok := obj["field"]; ok {
		var field string
		if err := json.Unmarshal(raw, &field); err != nil {
			return nil, fmt.Errorf("field must be a string")
		}
		pred.Left = FieldRef(field)
		right, err := decodeLiteral(obj["value"])
		if err != nil {
			return nil, err
		}
		pred.Right = right
		return pred, nil
	}
	left, err := decodeOperand(obj["left"])
	if err != nil {
		return nil, fmt.Errorf("left: %w", err)
	}
	right, err := decodeOperand(obj["right"])
	if err != nil {
		return nil, fmt.Errorf("right: %w", err)
	}
	pred.Left, pred.Right = left, right
	return pred, nil
}

func decodeConditions(data json.RawMessage) ([]Condition, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("expected a list of conditions")
	}
	out := make([]Condition, 0, len(items))
	for _, item := range items {
		c, err := DecodeCondition(item)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeOperand(data json.RawMessage) (Operand, error) {
	if len(data) == 0 {
		return Operand{}, fmt.Errorf("missing operand")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err == nil {
		if raw, ok := obj["field"]; ok {
			var field string
			if err := json.Unmarshal(raw, &field); err != nil {
				return Operand{}, fmt.Errorf("field must be a string")
			}
			return FieldRef(field), nil
		}
		if raw, ok := obj["value"]; ok {
			return decodeLiteral(raw)
		}
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil && strings.HasPrefix(s, "/") {
		return FieldRef(s), nil
	}
	return decodeLiteral(data)
}

func decodeLiteral(data json.RawMessage) (Operand, error) {
	if len(data) == 0 {
		return Literal(nil), nil
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return Operand{}, err
	}
	return Literal(FromPlain(v)), nil
}
