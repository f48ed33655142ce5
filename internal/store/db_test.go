package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-plan-pipeline/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestSaveAndGetGeneration(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	rec := &model.GenerationRecord{
		ID:       "gen-1",
		Goal:     "total by category",
		Mode:     model.ModeAuto,
		Path:     model.PathTemplate,
		Status:   model.StatusCompleted,
		PlanText: `{"steps":[]}`,
		Schema:   json.RawMessage(`{"type":"array"}`),
		Metadata: json.RawMessage(`{"path":"template"}`),
		Sample:   json.RawMessage(`[{"a":1}]`),
		Warnings: []string{"w1"},
	}
	require.NoError(t, st.SaveGeneration(ctx, rec))
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := st.GetGeneration(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Goal, got.Goal)
	assert.Equal(t, model.PathTemplate, got.Path)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.JSONEq(t, `[{"a":1}]`, string(got.Sample))
	assert.JSONEq(t, `{"path":"template"}`, string(got.Metadata))
	assert.Equal(t, []string{"w1"}, got.Warnings)

	_, err = st.GetGeneration(ctx, "missing")
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}

func TestListGenerationsNewestFirst(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, st.SaveGeneration(ctx, &model.GenerationRecord{
			ID:        id,
			Sample:    json.RawMessage(`[]`),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	all, err := st.ListGenerations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].ID)
	assert.Equal(t, "old", all[2].ID)
	assert.Nil(t, all[0].Sample)
	assert.Equal(t, model.StatusPending, all[0].Status)

	two, err := st.ListGenerations(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestUpdateGenerationStatus(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveGeneration(ctx, &model.GenerationRecord{ID: "g"}))

	require.NoError(t, st.UpdateGenerationStatus(ctx, "g", model.StatusFailed))
	got, err := st.GetGeneration(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)

	err = st.UpdateGenerationStatus(ctx, "nope", model.StatusFailed)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}

func TestGenerationErrors(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.SaveGenerationError(ctx, model.ErrorDetail{
		GenerationID: "g", Kind: "oracle", Category: "invalid_syntax", Message: "median",
	}))
	require.NoError(t, st.SaveGenerationError(ctx, model.ErrorDetail{
		GenerationID: "g", Kind: model.KindExecutionFailure, Message: "bad step",
	}))
	require.NoError(t, st.SaveGenerationError(ctx, model.ErrorDetail{GenerationID: "other", Message: "x"}))

	details, err := st.GetGenerationErrors(ctx, "g")
	require.NoError(t, err)
	require.Len(t, details, 2)
	assert.Equal(t, "invalid_syntax", details[0].Category)
	assert.Equal(t, model.KindExecutionFailure, details[1].Kind)
	assert.False(t, details[0].Timestamp.IsZero())

	none, err := st.GetGenerationErrors(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}
