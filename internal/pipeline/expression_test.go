package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpression(t *testing.T) {
	tests := []struct {
		expr   string
		canon  string
		fields []string
	}{
		{"/price * /qty", "/price * /qty", []string{"/price", "/qty"}},
		{"/price*/qty", "/price * /qty", []string{"/price", "/qty"}},
		{"/a-/b", "/a - /b", []string{"/a", "/b"}},
		{"/a × 2", "/a * 2", []string{"/a"}},
		{"/a ÷ /b", "/a / /b", []string{"/a", "/b"}},
		{"10/2", "10 / 2", nil},
		{"/unit/price", "/unit/price", []string{"/unit/price"}},
		{"/items/2", "/items/2", []string{"/items/2"}},
		{"-5", "-5", nil},
		{"/x", "/x", []string{"/x"}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e, err := ParseExpression(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.canon, e.String())
			assert.Equal(t, tt.fields, e.Fields())
		})
	}
}

func TestParseExpressionErrors(t *testing.T) {
	for _, expr := range []string{"", "   ", "/a ^ 2", "/a + /b + /c", "abc", "/ + 1"} {
		t.Run(expr, func(t *testing.T) {
			_, err := ParseExpression(expr)
			assert.Error(t, err)
		})
	}
}

func TestExpressionEval(t *testing.T) {
	row := mustRow(t, `{"a":6,"b":"3","z":0,"s":"x"}`)
	tests := []struct {
		expr string
		want float64
		ok   bool
	}{
		{"/a + /b", 9, true},
		{"/a - /b", 3, true},
		{"/a * /b", 18, true},
		{"/a / /b", 2, true},
		{"/a / /z", 0, true},
		{"/a * 0.5", 3, true},
		{"/a", 6, true},
		{"/a + /s", 0, false},
		{"/missing * 2", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e, err := ParseExpression(tt.expr)
			require.NoError(t, err)
			got, ok := e.Eval(row)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
