package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/internal/pipeline"
	"go-plan-pipeline/internal/store"
	"go-plan-pipeline/pkg/router"
	"go-plan-pipeline/pkg/utils"
)

const salesDoc = `{"meta":{"page":1},"sales":[{"category":"A","qty":2},{"category":"B","qty":1},{"category":"A","qty":3}]}`

type testServer struct {
	router *router.Router
	outDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	outDir := t.TempDir()
	h := New(pipeline.NewPlanner(pipeline.Options{Recorder: st}), st, utils.NewOutputManager(outDir), nil)

	r := router.New()
	r.POST("/api/v1/plans", h.CreatePlan)
	r.POST("/api/v1/plans/execute", h.ExecutePlan)
	r.POST("/api/v1/discover", h.Discover)
	r.GET("/api/v1/generations", h.ListGenerations)
	r.GET("/api/v1/generations/*/errors", h.GetGenerationErrors)
	r.GET("/api/v1/generations/*/export", h.ExportGeneration)
	r.GET("/api/v1/generations/*", h.GetGeneration)
	return &testServer{router: r, outDir: outDir}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func (s *testServer) createPlan(t *testing.T, goal string) model.Response {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{"goal": goal, "sample": json.RawMessage(salesDoc)})
	require.NoError(t, err)
	rec := s.do(t, http.MethodPost, "/api/v1/plans", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp model.Response
	decode(t, rec, &resp)
	return resp
}

func TestCreatePlan(t *testing.T) {
	s := newTestServer(t)

	resp := s.createPlan(t, "total qty by category")
	assert.Equal(t, model.PathTemplate, resp.Metadata.Path)
	assert.Equal(t, "/sales", resp.Metadata.RecordPath)
	require.Len(t, resp.ExampleRows, 2)
	assert.NotEmpty(t, resp.GenerationID)
}

func TestCreatePlanErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		kind   model.ErrorKind
	}{
		{"bad json", `{"goal":`, http.StatusBadRequest, model.KindValidation},
		{"missing sample", `{"goal":"x"}`, http.StatusBadRequest, model.KindValidation},
		{"no recordset", `{"goal":"x","sample":{"a":1}}`, http.StatusNotFound, model.KindNotFound},
		{"plan too wide", `{"sample":` + salesDoc + `,"constraints":{"maxColumns":1,"allowTransform":true},` +
			`"plan":{"steps":[{"op":"select","fields":["/category","/qty"]}]}}`,
			http.StatusUnprocessableEntity, model.KindContractInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/plans", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			var body errorResponse
			decode(t, rec, &body)
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestExecutePlan(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/plans/execute",
		`{"plan":{"steps":[{"op":"filter","where":{"field":"/qty","op":"gt","value":1}}]},"document":`+salesDoc+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Rows []map[string]interface{} `json:"rows"`
	}
	decode(t, rec, &resp)
	assert.Len(t, resp.Rows, 2)

	rec = s.do(t, http.MethodPost, "/api/v1/plans/execute", `{"plan":{"steps":[{"op":"explode"}]},"document":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiscover(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/discover", `{"document":`+salesDoc+`}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var disc pipeline.Discovery
	decode(t, rec, &disc)
	assert.Equal(t, "/sales", disc.Best.Path)
	assert.Equal(t, 3, disc.Best.Length)

	rec = s.do(t, http.MethodPost, "/api/v1/discover", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerationHistory(t *testing.T) {
	s := newTestServer(t)
	resp := s.createPlan(t, "total qty by category")
	id := resp.GenerationID

	rec := s.do(t, http.MethodGet, "/api/v1/generations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count       int                       `json:"count"`
		Generations []*model.GenerationRecord `json:"generations"`
	}
	decode(t, rec, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, id, list.Generations[0].ID)

	rec = s.do(t, http.MethodGet, "/api/v1/generations/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var gen model.GenerationRecord
	decode(t, rec, &gen)
	assert.Equal(t, model.StatusCompleted, gen.Status)
	assert.Equal(t, resp.PlanText, gen.PlanText)
	assert.Equal(t, `</api/v1/generations/`+id+`/export>; rel="export"`, rec.Header().Get("Link"))

	rec = s.do(t, http.MethodGet, "/api/v1/generations/"+id+"/errors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var errs struct {
		GenerationID string `json:"generation_id"`
		Count        int    `json:"count"`
	}
	decode(t, rec, &errs)
	assert.Equal(t, id, errs.GenerationID)
	assert.Equal(t, 0, errs.Count)

	rec = s.do(t, http.MethodGet, "/api/v1/generations/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportGeneration(t *testing.T) {
	s := newTestServer(t)
	id := s.createPlan(t, "total qty by category").GenerationID

	rec := s.do(t, http.MethodGet, "/api/v1/generations/"+id+"/export", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), id+".csv")
	assert.Equal(t, "category,count,sum_qty\nA,2,5\nB,1,1\n", rec.Body.String())
	assert.FileExists(t, filepath.Join(s.outDir, id, id+".csv"))
}

func TestExportFailedGeneration(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/api/v1/plans", `{"goal":"x","sample":{"a":1}}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/generations", "")
	var list struct {
		Generations []*model.GenerationRecord `json:"generations"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Generations, 1)
	id := list.Generations[0].ID
	assert.Equal(t, model.StatusFailed, list.Generations[0].Status)

	rec = s.do(t, http.MethodGet, "/api/v1/generations/"+id+"/errors", "")
	var errs struct {
		Errors []model.ErrorDetail `json:"errors"`
	}
	decode(t, rec, &errs)
	require.Len(t, errs.Errors, 1)
	assert.Equal(t, model.KindNotFound, errs.Errors[0].Kind)

	rec = s.do(t, http.MethodGet, "/api/v1/generations/"+id+"/export", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHistoryDisabled(t *testing.T) {
	h := New(pipeline.NewPlanner(pipeline.Options{}), nil, nil, nil)
	rec := httptest.NewRecorder()
	h.ListGenerations(rec, httptest.NewRequest(http.MethodGet, "/api/v1/generations", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIDFromPath(t *testing.T) {
	id, ok := idFromPath("/api/v1/generations/abc/errors", "/errors")
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = idFromPath("/api/v1/generations//errors", "/errors")
	assert.False(t, ok)
	_, ok = idFromPath("/api/v1/generations/a/b", "")
	assert.False(t, ok)
	_, ok = idFromPath("/api/v2/generations/a", "")
	assert.False(t, ok)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrValidation("bad"), http.StatusBadRequest},
		{model.ErrNotFound(nil, "gone"), http.StatusNotFound},
		{model.ErrContract("no"), http.StatusUnprocessableEntity},
		{model.ErrExecution(0, model.OpFilter, "/x", errors.New("boom")), http.StatusUnprocessableEntity},
		{model.ErrStorage(errors.New("disk"), "save"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}
