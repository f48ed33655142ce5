package pipeline

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-plan-pipeline/internal/metrics"
	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/internal/oracle"
)

// Generation stages, in the order a request passes through them.
const (
	StageDiscovery  = "discovery"
	StageGeneration = "generation"
	StageExecution  = "execution"
	StageSchema     = "schema"
)

// StageMetrics tracks one stage of a generation.
type StageMetrics struct {
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Rows      int           `json:"rows"`
	Status    string        `json:"status"` // "running", "completed", "failed"
}

// GenerationMetrics summarizes a single generation request.
type GenerationMetrics struct {
	GenerationID string                  `json:"generation_id"`
	StartTime    time.Time               `json:"start_time"`
	Duration     time.Duration           `json:"duration"`
	Status       string                  `json:"status"`
	Path         model.GenerationPath    `json:"path,omitempty"`
	Stages       map[string]StageMetrics `json:"stages"`
	Errors       []model.ErrorDetail     `json:"errors"`

	OracleAttempts int               `json:"oracle_attempts,omitempty"`
	OracleFailures []oracle.Category `json:"oracle_failures,omitempty"`
	OracleLatency  time.Duration     `json:"oracle_latency,omitempty"`
}

// GenerationTracker records stage timings and errors for one request and
// feeds the process-wide metrics.
type GenerationTracker struct {
	mu      sync.Mutex
	metrics GenerationMetrics
	logger  *zap.Logger
}

// NewGenerationTracker starts tracking a generation.
func NewGenerationTracker(generationID string, logger *zap.Logger) *GenerationTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationTracker{
		logger: logger.With(zap.String("generation_id", generationID)),
		metrics: GenerationMetrics{
			GenerationID: generationID,
			StartTime:    time.Now(),
			Status:       model.StatusPending,
			Stages:       make(map[string]StageMetrics),
			Errors:       make([]model.ErrorDetail, 0),
		},
	}
}

// StartStage marks the start of a stage.
func (t *GenerationTracker) StartStage(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.Stages[stage] = StageMetrics{StartTime: time.Now(), Status: "running"}
}

// EndStage marks the end of a stage and the rows it produced.
func (t *GenerationTracker) EndStage(stage string, rows int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sm := t.metrics.Stages[stage]
	if !sm.StartTime.IsZero() {
		sm.Duration = time.Since(sm.StartTime)
	}
	sm.Rows = rows
	sm.Status = "completed"
	if err != nil {
		sm.Status = "failed"
	}
	t.metrics.Stages[stage] = sm
	t.logger.Debug("stage finished",
		zap.String("stage", stage),
		zap.Int("rows", rows),
		zap.Duration("duration", sm.Duration),
		zap.String("status", sm.Status))
}

// RecordError keeps an error with its kind and, for oracle failures, its
// category.
func (t *GenerationTracker) RecordError(err error) {
	if err == nil {
		return
	}
	detail := model.ErrorDetail{
		GenerationID: t.metrics.GenerationID,
		Kind:         model.KindOf(err),
		Message:      err.Error(),
		Timestamp:    time.Now(),
	}
	var me *model.Error
	if errors.As(err, &me) && me.Category != "" {
		detail.Category = me.Category
	}
	if cat := oracle.CategoryOf(err); cat != "" {
		detail.Category = string(cat)
		if detail.Kind == "" {
			detail.Kind = "oracle"
		}
	}
	t.mu.Lock()
	t.metrics.Errors = append(t.metrics.Errors, detail)
	t.mu.Unlock()
}

// RecordOracle keeps the outcome of the oracle call this generation used.
// Requests sharing one call each record it.
func (t *GenerationTracker) RecordOracle(attempts int, failures []oracle.Category, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.OracleAttempts = attempts
	t.metrics.OracleFailures = append([]oracle.Category(nil), failures...)
	t.metrics.OracleLatency = latency
}

// observeOracle feeds one oracle call into the process-wide metrics.
func observeOracle(failures []oracle.Category, latency time.Duration) {
	for _, cat := range failures {
		metrics.IncOracleFailure(string(cat))
	}
	if latency > 0 {
		metrics.ObserveOracleLatency(latency.Seconds())
	}
}

// Complete marks the generation as completed on path.
func (t *GenerationTracker) Complete(path model.GenerationPath) {
	t.finish(model.StatusCompleted, path)
	t.logger.Info("generation completed",
		zap.String("path", string(path)),
		zap.Duration("duration", t.metrics.Duration))
}

// Fail marks the generation as failed.
func (t *GenerationTracker) Fail(err error) {
	t.RecordError(err)
	t.finish(model.StatusFailed, "")
	t.logger.Warn("generation failed", zap.Duration("duration", t.metrics.Duration), zap.Error(err))
}

func (t *GenerationTracker) finish(status string, path model.GenerationPath) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.Status = status
	t.metrics.Path = path
	t.metrics.Duration = time.Since(t.metrics.StartTime)
	metrics.IncGeneration(string(path), status)
}

// GetMetrics returns a copy of the current metrics.
func (t *GenerationTracker) GetMetrics() GenerationMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.metrics
	m.Stages = make(map[string]StageMetrics, len(t.metrics.Stages))
	for k, v := range t.metrics.Stages {
		m.Stages[k] = v
	}
	m.Errors = append([]model.ErrorDetail(nil), t.metrics.Errors...)
	m.OracleFailures = append([]oracle.Category(nil), t.metrics.OracleFailures...)
	return m
}
