package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go-plan-pipeline/internal/model"
)

func mustDoc(t *testing.T, text string) interface{} {
	t.Helper()
	doc, err := model.DecodeDocument([]byte(text))
	require.NoError(t, err)
	return doc
}

func mustPlan(t *testing.T, text string) *model.Plan {
	t.Helper()
	plan, err := model.ParsePlan([]byte(text))
	require.NoError(t, err)
	return plan
}

func mustRow(t *testing.T, text string) *model.Row {
	t.Helper()
	row, ok := mustDoc(t, text).(*model.Row)
	require.True(t, ok, "not an object: %s", text)
	return row
}

// plainRows converts rows to maps for comparison with cmp.Diff.
func plainRows(rows []*model.Row) interface{} {
	return model.Plain(rows)
}

func rowsJSON(t *testing.T, rows []*model.Row) string {
	t.Helper()
	b, err := model.EncodeDocument(rows)
	require.NoError(t, err)
	return string(b)
}
