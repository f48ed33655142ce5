package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/internal/oracle"
)

func TestGenerationTrackerRecordsOracleOutcome(t *testing.T) {
	tr := NewGenerationTracker("g1", nil)
	failures := []oracle.Category{oracle.CategoryMalformed}
	tr.RecordOracle(2, failures, 40*time.Millisecond)
	failures[0] = oracle.CategoryTimeout

	m := tr.GetMetrics()
	assert.Equal(t, 2, m.OracleAttempts)
	assert.Equal(t, []oracle.Category{oracle.CategoryMalformed}, m.OracleFailures)
	assert.Equal(t, 40*time.Millisecond, m.OracleLatency)
}

func TestGenerationTrackerStagesAndErrors(t *testing.T) {
	tr := NewGenerationTracker("g1", nil)
	tr.StartStage(StageDiscovery)
	tr.EndStage(StageDiscovery, 3, nil)
	tr.StartStage(StageExecution)
	tr.EndStage(StageExecution, 0, errors.New("boom"))
	tr.Fail(model.ErrNotFound(nil, "nothing here"))

	m := tr.GetMetrics()
	assert.Equal(t, model.StatusFailed, m.Status)
	assert.Equal(t, "completed", m.Stages[StageDiscovery].Status)
	assert.Equal(t, 3, m.Stages[StageDiscovery].Rows)
	assert.Equal(t, "failed", m.Stages[StageExecution].Status)
	require.Len(t, m.Errors, 1)
	assert.Equal(t, model.KindNotFound, m.Errors[0].Kind)
	assert.Equal(t, "g1", m.Errors[0].GenerationID)
}
