package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/internal/pipeline"
	"go-plan-pipeline/pkg/utils"
)

const generationsPrefix = "/api/v1/generations/"

// GenerationStore is the read side of the generation store.
type GenerationStore interface {
	GetGeneration(ctx context.Context, id string) (*model.GenerationRecord, error)
	ListGenerations(ctx context.Context, limit int) ([]*model.GenerationRecord, error)
	GetGenerationErrors(ctx context.Context, id string) ([]model.ErrorDetail, error)
}

// Handler serves the planner API.
type Handler struct {
	planner *pipeline.Planner
	store   GenerationStore
	outputs *utils.OutputManager
	logger  *zap.Logger
}

// New creates a Handler. store may be nil, in which case the generation
// history routes answer 404.
func New(planner *pipeline.Planner, store GenerationStore, outputs *utils.OutputManager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if outputs == nil {
		outputs = utils.NewOutputManager("outputs")
	}
	return &Handler{planner: planner, store: store, outputs: outputs, logger: logger}
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error    string          `json:"error"`
	Kind     model.ErrorKind `json:"kind,omitempty"`
	Op       string          `json:"op,omitempty"`
	Step     int             `json:"step,omitempty"`
	Field    string          `json:"field,omitempty"`
	Category string          `json:"category,omitempty"`
}

// discoverRequest is the POST /discover body.
type discoverRequest struct {
	Goal     string          `json:"goal"`
	Document json.RawMessage `json:"document" swaggertype:"object"`
}

// CreatePlan generates a plan for a goal and a sample
// @Summary Generate a plan
// @Description Turn a natural-language goal and a sample document into an executed, schema-checked plan
// @Tags plans
// @Accept json
// @Produce json
// @Param request body model.Request true "Goal, sample and constraints"
// @Success 200 {object} model.Response "Generated plan"
// @Failure 400 {object} errorResponse "Invalid request"
// @Failure 404 {object} errorResponse "No recordset found in the sample"
// @Failure 422 {object} errorResponse "Plan rejected or failed"
// @Router /plans [post]
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req model.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, model.ErrValidation("invalid JSON payload: %v", err))
		return
	}
	resp, err := h.planner.Generate(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExecutePlan runs a plan against a document
// @Summary Execute a plan
// @Description Run caller-supplied plan IR against a full document
// @Tags plans
// @Accept json
// @Produce json
// @Param request body model.ExecuteRequest true "Plan and document"
// @Success 200 {object} model.ExecuteResponse "Rows and schema"
// @Failure 400 {object} errorResponse "Invalid request"
// @Failure 422 {object} errorResponse "Plan rejected or failed"
// @Router /plans/execute [post]
func (h *Handler) ExecutePlan(w http.ResponseWriter, r *http.Request) {
	var req model.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, model.ErrValidation("invalid JSON payload: %v", err))
		return
	}
	resp, err := h.planner.Run(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Discover ranks the recordsets of a document
// @Summary Discover recordsets
// @Description Rank the arrays of objects in a document as candidate recordsets
// @Tags plans
// @Accept json
// @Produce json
// @Param request body discoverRequest true "Document and optional goal"
// @Success 200 {object} pipeline.Discovery "Ranked candidates"
// @Failure 400 {object} errorResponse "Invalid request"
// @Failure 404 {object} errorResponse "No recordset found"
// @Router /discover [post]
func (h *Handler) Discover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, model.ErrValidation("invalid JSON payload: %v", err))
		return
	}
	if len(req.Document) == 0 {
		h.writeError(w, model.ErrValidation("document is required"))
		return
	}
	disc, err := h.planner.Discover(req.Document, req.Goal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, disc)
}

// ListGenerations lists stored generations
// @Summary List generations
// @Description Get stored generations, newest first
// @Tags generations
// @Produce json
// @Param limit query int false "Maximum number of generations" default(100)
// @Success 200 {object} map[string]interface{} "Generations"
// @Failure 500 {object} errorResponse "Internal server error"
// @Router /generations [get]
func (h *Handler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, model.ErrNotFound(nil, "generation history is not enabled"))
		return
	}
	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	gens, err := h.store.ListGenerations(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"generations": gens,
		"count":       len(gens),
		"limit":       limit,
	})
}

// GetGeneration retrieves a stored generation
// @Summary Get generation
// @Description Retrieve a stored generation with its plan, schema and metadata
// @Tags generations
// @Produce json
// @Param id path string true "Generation ID"
// @Success 200 {object} model.GenerationRecord "Generation"
// @Failure 400 {object} errorResponse "Invalid generation ID"
// @Failure 404 {object} errorResponse "Generation not found"
// @Router /generations/{id} [get]
func (h *Handler) GetGeneration(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromPath(r.URL.Path, "")
	if !ok {
		h.writeError(w, model.ErrValidation("generation id is required"))
		return
	}
	rec, err := h.generation(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if rec.Status == model.StatusCompleted {
		w.Header().Set("Link", fmt.Sprintf("<%s>; rel=\"export\"", h.outputs.GetDownloadURL(id)))
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetGenerationErrors retrieves the errors recorded for a generation
// @Summary Get generation errors
// @Description Retrieve the failures (with oracle categories) recorded while a generation ran
// @Tags generations
// @Produce json
// @Param id path string true "Generation ID"
// @Success 200 {object} map[string]interface{} "Generation errors"
// @Failure 400 {object} errorResponse "Invalid generation ID"
// @Failure 404 {object} errorResponse "Generation not found"
// @Router /generations/{id}/errors [get]
func (h *Handler) GetGenerationErrors(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromPath(r.URL.Path, "/errors")
	if !ok {
		h.writeError(w, model.ErrValidation("generation id is required"))
		return
	}
	if _, err := h.generation(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	details, err := h.store.GetGenerationErrors(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"generation_id": id,
		"errors":        details,
		"count":         len(details),
	})
}

// ExportGeneration replays a stored plan on its sample and serves the rows
// @Summary Export generation rows
// @Description Re-run the stored plan on the stored sample and download the rows as CSV
// @Tags generations
// @Produce text/csv
// @Param id path string true "Generation ID"
// @Success 200 {file} file "CSV export"
// @Failure 404 {object} errorResponse "Generation not found"
// @Failure 422 {object} errorResponse "Stored plan cannot be replayed"
// @Failure 500 {object} errorResponse "Export failed"
// @Router /generations/{id}/export [get]
func (h *Handler) ExportGeneration(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromPath(r.URL.Path, "/export")
	if !ok {
		h.writeError(w, model.ErrValidation("generation id is required"))
		return
	}
	rec, err := h.generation(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if rec.Status != model.StatusCompleted || rec.PlanText == "" {
		h.writeError(w, model.ErrContract("generation %s has no plan to export (status %s)", id, rec.Status))
		return
	}
	plan, err := model.ParsePlan([]byte(rec.PlanText))
	if err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.planner.Run(r.Context(), &model.ExecuteRequest{Plan: plan, Document: rec.Sample})
	if err != nil {
		h.writeError(w, err)
		return
	}

	fileName := fmt.Sprintf("%s.csv", id)
	path, err := h.outputs.GetOutputFilePath(id, fileName)
	if err != nil {
		h.writeError(w, model.ErrStorage(err, "prepare export for %s", id))
		return
	}
	export, err := pipeline.ExportRows(res.Rows, res.Schema, path)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("generation exported",
		zap.String("generation_id", id),
		zap.String("path", export.Path),
		zap.Int("records", export.RecordCount))

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", fileName))
	w.Header().Set("Content-Type", "text/csv")
	http.ServeFile(w, r, path)
}

func (h *Handler) generation(ctx context.Context, id string) (*model.GenerationRecord, error) {
	if h.store == nil {
		return nil, model.ErrNotFound(nil, "generation history is not enabled")
	}
	return h.store.GetGeneration(ctx, id)
}

// idFromPath extracts the generation id from /api/v1/generations/{id}{suffix}.
func idFromPath(path, suffix string) (string, bool) {
	if !strings.HasPrefix(path, generationsPrefix) || !strings.HasSuffix(path, suffix) {
		return "", false
	}
	id := path[len(generationsPrefix) : len(path)-len(suffix)]
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch model.KindOf(err) {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindContractInvalid, model.KindExecutionFailure:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	body := errorResponse{Error: err.Error()}
	var me *model.Error
	if errors.As(err, &me) {
		body.Kind = me.Kind
		body.Op = me.Op
		body.Step = me.Step
		body.Field = me.Field
		body.Category = me.Category
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
