package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-plan-pipeline/internal/model"
)

func TestInferSchemaUnionInFirstSeenOrder(t *testing.T) {
	exec, err := Execute(model.NewPlan(""), mustDoc(t, `[
		{"name":"a","qty":1},
		{"name":null,"extra":true},
		{"qty":"many","tags":["x"]}
	]`))
	require.NoError(t, err)

	schema := InferSchema(exec.Rows)
	want := []model.Property{
		{Name: "name", Types: []string{"null", "string"}},
		{Name: "qty", Types: []string{"number", "string"}},
		{Name: "extra", Types: []string{"boolean"}},
		{Name: "tags", Types: []string{"array"}},
	}
	if diff := cmp.Diff(want, schema.Properties); diff != "" {
		t.Errorf("properties mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"name", "qty", "extra", "tags"}, schema.Columns())
}

func TestInferSchemaEmpty(t *testing.T) {
	schema := InferSchema(nil)
	require.NotNil(t, schema)
	assert.Empty(t, schema.Properties)
	require.NoError(t, ValidateRows(schema, nil))
}

func TestInferredSchemaAcceptsItsRows(t *testing.T) {
	plan := model.NewPlan("/sales",
		&model.GroupByStep{Keys: []string{"/category"}},
		&model.AggregateStep{Metrics: []model.MetricSpec{
			{As: "count", Fn: model.MetricCount},
			{As: "avg", Fn: model.MetricAvg, Field: "/qty"},
		}},
	)
	exec, err := Execute(plan, mustDoc(t, salesDoc))
	require.NoError(t, err)

	require.NoError(t, ValidateRows(InferSchema(exec.Rows), exec.Rows))
}

func TestValidateRowsRejectsWrongType(t *testing.T) {
	schema := &model.Schema{Properties: []model.Property{{Name: "qty", Types: []string{"number"}}}}
	rows := []*model.Row{model.RowOf("qty", "three")}

	err := ValidateRows(schema, rows)
	require.Error(t, err)
	assert.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestValidateRowsNeedsSchema(t *testing.T) {
	err := ValidateRows(nil, nil)
	assert.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestCheckOutput(t *testing.T) {
	rows := []*model.Row{model.RowOf("qty", 2.0), model.RowOf("qty", "many")}
	require.NoError(t, checkOutput(InferSchema(rows), rows))

	narrow := &model.Schema{Properties: []model.Property{{Name: "qty", Types: []string{"number"}}}}
	err := checkOutput(narrow, rows)
	require.Error(t, err)
	assert.Equal(t, model.KindExecutionFailure, model.KindOf(err))

	var me *model.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, StageSchema, me.Op)
	assert.Contains(t, err.Error(), "rows do not match schema")
}
