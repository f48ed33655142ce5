package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-plan-pipeline/internal/model"
)

func TestResolve(t *testing.T) {
	sample := mustRow(t, `{"Preço":10,"nome":"Ana","Café":"x","customer":{"name":"c"},"qty":1}`)

	tests := []struct {
		name    string
		path    string
		want    string
		changed bool
		warns   int
	}{
		{"exact", "/qty", "/qty", false, 0},
		{"cross-language alias", "/price", "/Preço", true, 0},
		{"alias of alias", "/name", "/nome", true, 0},
		{"case insensitive", "/QTY", "/qty", true, 0},
		{"accent insensitive", "/cafe", "/Café", true, 0},
		{"nested keeps tail", "/Customer/name", "/customer/name", true, 0},
		{"bare name", "quantity", "/qty", true, 0},
		{"unknown", "/weight", "/weight", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(tt.path, sample)
			assert.Equal(t, tt.want, res.Path)
			assert.Equal(t, tt.changed, res.Changed)
			assert.Len(t, res.Warnings, tt.warns)
		})
	}
}

func TestResolveWarningListsKeys(t *testing.T) {
	res := Resolve("/zzz", mustRow(t, `{"a":1,"b":2}`))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, `field "zzz" not found; available keys: a, b`, res.Warnings[0])
}

func TestResolveNeverRewritesExistingKeys(t *testing.T) {
	// "data" is an alias of "date", but an exact key always wins.
	sample := mustRow(t, `{"data":"2024-01-01","date":"x"}`)
	for _, key := range sample.Keys() {
		res := Resolve(model.JoinPointer(key), sample)
		assert.Equal(t, model.JoinPointer(key), res.Path)
		assert.False(t, res.Changed)
	}
}

func TestResolveWithoutSample(t *testing.T) {
	res := Resolve("/a", nil)
	assert.Equal(t, "/a", res.Path)
	assert.Empty(t, res.Warnings)
}

func TestResolveStepDoesNotModifyInput(t *testing.T) {
	sample := mustRow(t, `{"Preço":10,"Qtd":2,"Categoria":"x"}`)
	steps := []model.Step{
		&model.SelectStep{Fields: []model.SelectField{{From: "/price"}, {From: "/qty", As: "units"}}},
		&model.ComputeStep{As: "total", Expr: "/price * /quantity"},
		&model.SortStep{By: "/category", Order: "desc"},
		&model.GroupByStep{Keys: []string{"/category"}},
		&model.AggregateStep{Metrics: []model.MetricSpec{{Fn: model.MetricSum, Field: "/price"}}},
		&model.MapValueStep{Field: "/category", Mapping: map[string]interface{}{"x": "y"}},
		&model.FilterStep{Where: &model.NotCondition{Condition: &model.Predicate{
			Op: model.CmpEq, Left: model.FieldRef("/price"), Right: model.Literal(1.0),
		}}},
	}

	before := model.NewPlan("", steps...).Text()
	var resolved []model.Step
	for _, s := range steps {
		out, warns := ResolveStep(s, sample)
		assert.Empty(t, warns)
		resolved = append(resolved, out)
	}
	assert.Equal(t, before, model.NewPlan("", steps...).Text())

	sel := resolved[0].(*model.SelectStep)
	assert.Equal(t, []model.SelectField{{From: "/Preço", As: "price"}, {From: "/Qtd", As: "units"}}, sel.Fields)
	assert.Equal(t, "/Preço * /Qtd", resolved[1].(*model.ComputeStep).Expr)
	assert.Equal(t, &model.SortStep{By: "/Categoria", Order: "desc"}, resolved[2])
	assert.Equal(t, []string{"/Categoria"}, resolved[3].(*model.GroupByStep).Keys)
	metric := resolved[4].(*model.AggregateStep).Metrics[0]
	assert.Equal(t, "/Preço", metric.Field)
	assert.Equal(t, "sum_price", metric.Name())
	mv := resolved[5].(*model.MapValueStep)
	assert.Equal(t, "/Categoria", mv.Field)
	assert.Equal(t, "category", mv.Target())
	pred := resolved[6].(*model.FilterStep).Where.(*model.NotCondition).Condition.(*model.Predicate)
	assert.Equal(t, "/Preço", pred.Left.Field)
}
