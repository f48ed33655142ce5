package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/pkg/utils"
)

// Expression is the restricted arithmetic grammar used by Compute and by
// expression metrics: one operand, or two operands joined by a single binary
// operator. Operands are field pointers ("/price") or numeric literals.
type Expression struct {
	Left  model.Operand
	Op    rune // 0 when the expression is a single operand
	Right model.Operand
}

var operatorAliases = map[rune]rune{
	'+': '+',
	'-': '-',
	'−': '-',
	'*': '*',
	'×': '*',
	'/': '/',
	'÷': '/',
}

// ParseExpression parses expr. Operators may be surrounded by spaces
// ("/price * /qty") or written compactly ("/price*/qty", "/a-/b").
func ParseExpression(expr string) (Expression, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Expression{}, fmt.Errorf("empty expression")
	}

	if fields := strings.Fields(expr); len(fields) == 3 && utf8.RuneCountInString(fields[1]) == 1 {
		op, ok := operatorAliases[[]rune(fields[1])[0]]
		if !ok {
			return Expression{}, fmt.Errorf("unsupported operator %q", fields[1])
		}
		return buildExpression(fields[0], op, fields[2])
	}
	if strings.ContainsAny(expr, " \t\n") {
		return Expression{}, fmt.Errorf("expression %q is not of the form <operand> <op> <operand>", expr)
	}

	if left, op, right, ok := splitCompact(expr); ok {
		return buildExpression(left, op, right)
	}
	operand, err := parseOperand(expr)
	if err != nil {
		return Expression{}, err
	}
	return Expression{Left: operand}, nil
}

// splitCompact finds the operator in a space-free expression. '-' and '/'
// only count as operators when a new operand starts right after them.
func splitCompact(expr string) (string, rune, string, bool) {
	runes := []rune(expr)
	for i := 1; i < len(runes)-1; i++ {
		op, ok := operatorAliases[runes[i]]
		if !ok {
			continue
		}
		if runes[i] == '-' || runes[i] == '/' {
			next := runes[i+1]
			if next != '/' && !unicode.IsDigit(next) && next != '.' {
				continue
			}
			if runes[i] == '/' && next != '/' && !endsOperand(runes[:i]) {
				continue
			}
			if runes[i] == '-' && unicode.IsDigit(next) && !endsOperand(runes[:i]) {
				continue
			}
		}
		return string(runes[:i]), op, string(runes[i+1:]), true
	}
	return "", 0, "", false
}

// endsOperand reports whether prefix is a complete numeric literal, in
// which case a following '/' or '-' must be an operator.
func endsOperand(prefix []rune) bool {
	_, err := strconv.ParseFloat(string(prefix), 64)
	return err == nil
}

func buildExpression(left string, op rune, right string) (Expression, error) {
	l, err := parseOperand(left)
	if err != nil {
		return Expression{}, err
	}
	r, err := parseOperand(right)
	if err != nil {
		return Expression{}, err
	}
	return Expression{Left: l, Op: op, Right: r}, nil
}

func parseOperand(s string) (model.Operand, error) {
	if strings.HasPrefix(s, "/") {
		if len(s) == 1 {
			return model.Operand{}, fmt.Errorf("empty field reference")
		}
		return model.FieldRef(s), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return model.Operand{}, fmt.Errorf("operand %q is neither a field reference nor a number", s)
	}
	return model.Literal(f), nil
}

// String renders the expression in its canonical spaced form.
func (e Expression) String() string {
	if e.Op == 0 {
		return operandText(e.Left)
	}
	return operandText(e.Left) + " " + string(e.Op) + " " + operandText(e.Right)
}

// Fields lists the field references of the expression.
func (e Expression) Fields() []string {
	var out []string
	if e.Left.Ref {
		out = append(out, e.Left.Field)
	}
	if e.Op != 0 && e.Right.Ref {
		out = append(out, e.Right.Field)
	}
	return out
}

func operandText(o model.Operand) string {
	if o.Ref {
		return o.Field
	}
	return utils.StringOf(o.Value)
}

// Eval computes the expression against row. ok is false when an operand is
// missing or not numeric. Division by zero yields 0.
func (e Expression) Eval(row *model.Row) (float64, bool) {
	left, ok := operandNumber(e.Left, row)
	if !ok {
		return 0, false
	}
	if e.Op == 0 {
		return left, true
	}
	right, ok := operandNumber(e.Right, row)
	if !ok {
		return 0, false
	}
	switch e.Op {
	case '+':
		return left + right, true
	case '-':
		return left - right, true
	case '*':
		return left * right, true
	case '/':
		if right == 0 {
			return 0, true
		}
		return left / right, true
	}
	return 0, false
}

func operandNumber(o model.Operand, row *model.Row) (float64, bool) {
	return utils.ToFloat(operandValue(o, row))
}

func operandValue(o model.Operand, row *model.Row) interface{} {
	if !o.Ref {
		return o.Value
	}
	if row == nil {
		return nil
	}
	v, _ := model.Lookup(row, o.Field)
	return v
}
