package pipeline

import (
	"fmt"
	"strings"

	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/pkg/utils"
)

// EvalCondition evaluates a condition tree against row.
func EvalCondition(cond model.Condition, row *model.Row) (bool, error) {
	switch c := cond.(type) {
	case *model.AndCondition:
		for _, child := range c.Conditions {
			ok, err := EvalCondition(child, row)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *model.OrCondition:
		for _, child := range c.Conditions {
			ok, err := EvalCondition(child, row)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case *model.NotCondition:
		if c.Condition == nil {
			return false, fmt.Errorf("not requires exactly one condition")
		}
		ok, err := EvalCondition(c.Condition, row)
		return !ok, err
	case *model.Predicate:
		return evalPredicate(c, row)
	case nil:
		return false, fmt.Errorf("missing condition")
	}
	return false, fmt.Errorf("unsupported condition %T", cond)
}

func evalPredicate(p *model.Predicate, row *model.Row) (bool, error) {
	left := operandValue(p.Left, row)
	right := operandValue(p.Right, row)
	switch p.Op {
	case model.CmpEq:
		return compareValues(left, right) == 0, nil
	case model.CmpNeq:
		return compareValues(left, right) != 0, nil
	case model.CmpGt:
		return compareValues(left, right) > 0, nil
	case model.CmpGte:
		return compareValues(left, right) >= 0, nil
	case model.CmpLt:
		return compareValues(left, right) < 0, nil
	case model.CmpLte:
		return compareValues(left, right) <= 0, nil
	case model.CmpContains:
		if items, ok := left.([]interface{}); ok {
			return memberOf(right, items), nil
		}
		return strings.Contains(strings.ToLower(utils.StringOf(left)), strings.ToLower(utils.StringOf(right))), nil
	case model.CmpIn:
		if items, ok := right.([]interface{}); ok {
			return memberOf(left, items), nil
		}
		return compareValues(left, right) == 0, nil
	}
	return false, fmt.Errorf("unsupported operator %q", p.Op)
}

func memberOf(v interface{}, items []interface{}) bool {
	for _, item := range items {
		if compareValues(v, item) == 0 {
			return true
		}
	}
	return false
}

// compareValues orders two values numerically when both are numeric and by
// their string form otherwise.
func compareValues(a, b interface{}) int {
	af, aok := utils.ToFloat(a)
	bf, bok := utils.ToFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(utils.StringOf(a), utils.StringOf(b))
}
