package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/internal/oracle"
)

// scriptedOracle answers prompts from a fixed list, repeating the last
// answer once the list runs out.
type scriptedOracle struct {
	answers []string
	calls   atomic.Int32
	mu      sync.Mutex
	prompts []string
}

func (s *scriptedOracle) CompleteWithSystem(_ context.Context, _, user string) (string, error) {
	n := int(s.calls.Add(1))
	s.mu.Lock()
	s.prompts = append(s.prompts, user)
	s.mu.Unlock()
	if n > len(s.answers) {
		n = len(s.answers)
	}
	return s.answers[n-1], nil
}

func newOraclePlanner(t *testing.T, answers ...string) (*Planner, *scriptedOracle) {
	t.Helper()
	o := &scriptedOracle{answers: answers}
	gen := oracle.NewGenerator(o, oracle.Config{
		Timeout:          time.Second,
		ContentRetries:   1,
		TransportRetries: 0,
		BackoffBase:      time.Millisecond,
	}, nil)
	return NewPlanner(Options{Generator: gen}), o
}

type memRecorder struct {
	mu      sync.Mutex
	records []*model.GenerationRecord
	errors  []model.ErrorDetail
}

func (r *memRecorder) SaveGeneration(_ context.Context, rec *model.GenerationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *memRecorder) SaveGenerationError(_ context.Context, detail model.ErrorDetail) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, detail)
	return nil
}

func TestGenerateTemplatePath(t *testing.T) {
	rec := &memRecorder{}
	p := NewPlanner(Options{Recorder: rec})

	resp, err := p.Generate(context.Background(), &model.Request{
		Goal:   "total qty by category",
		Sample: json.RawMessage(salesDoc),
	})
	require.NoError(t, err)

	assert.Equal(t, model.PathTemplate, resp.Metadata.Path)
	assert.Equal(t, TemplateGroupAggregate, resp.Metadata.Template)
	assert.Equal(t, "/sales", resp.Metadata.RecordPath)
	assert.Equal(t, `[{"category":"A","count":2,"sum_qty":5},{"category":"B","count":1,"sum_qty":1}]`, rowsJSON(t, resp.ExampleRows))
	assert.Equal(t, []string{"category", "count", "sum_qty"}, resp.Schema.Columns())
	assert.Equal(t, resp.Plan.Text(), resp.PlanText)
	assert.NotEmpty(t, resp.GenerationID)

	require.Len(t, rec.records, 1)
	assert.Equal(t, resp.GenerationID, rec.records[0].ID)
	assert.Equal(t, model.StatusCompleted, rec.records[0].Status)
	assert.Equal(t, model.ModeAuto, rec.records[0].Mode)
	assert.Equal(t, resp.PlanText, rec.records[0].PlanText)
}

func TestGenerateExplicitPlan(t *testing.T) {
	p := NewPlanner(Options{})

	resp, err := p.Generate(context.Background(), &model.Request{
		Sample: json.RawMessage(salesDoc),
		Plan:   mustPlan(t, `{"steps":[{"op":"filter","where":{"field":"/Category","op":"eq","value":"A"}}]}`),
	})
	require.NoError(t, err)

	assert.Equal(t, model.PathExplicit, resp.Metadata.Path)
	assert.Equal(t, "/sales", resp.Metadata.RecordPath)
	assert.Equal(t, `[{"category":"A","qty":2},{"category":"A","qty":3}]`, rowsJSON(t, resp.ExampleRows))
	require.NotNil(t, resp.OriginalPlan)
	assert.Contains(t, resp.PlanText, `"/category"`)
}

func TestGenerateExplicitPlanTooWide(t *testing.T) {
	p := NewPlanner(Options{})

	_, err := p.Generate(context.Background(), &model.Request{
		Sample:      json.RawMessage(salesDoc),
		Plan:        model.NewPlan("/sales"),
		Constraints: &model.Constraints{AllowTransform: true, MaxColumns: 1},
	})
	assert.Equal(t, model.KindContractInvalid, model.KindOf(err))
}

func TestGenerateOracleAccepted(t *testing.T) {
	p, o := newOraclePlanner(t,
		`{"plan":{"source":{"recordPath":"/sales"},"steps":[{"op":"select","fields":["/category"]}]},"rationale":"just the categories"}`)

	resp, err := p.Generate(context.Background(), &model.Request{
		Goal:   "list the categories",
		Sample: json.RawMessage(salesDoc),
	})
	require.NoError(t, err)

	assert.Equal(t, model.PathOracle, resp.Metadata.Path)
	assert.Equal(t, "just the categories", resp.Rationale)
	assert.Equal(t, 1, resp.Metadata.OracleAttempts)
	assert.False(t, resp.Metadata.CacheHit)
	assert.Equal(t, `[{"category":"A"},{"category":"A"},{"category":"B"}]`, rowsJSON(t, resp.ExampleRows))
	assert.EqualValues(t, 1, o.calls.Load())
}

func TestGenerateOracleCacheHit(t *testing.T) {
	p, o := newOraclePlanner(t,
		`{"plan":{"source":{"recordPath":"/sales"},"steps":[{"op":"select","fields":["/qty"]}]}}`)
	req := &model.Request{Goal: "list the quantities", Sample: json.RawMessage(salesDoc)}

	first, err := p.Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := p.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.EqualValues(t, 1, o.calls.Load())
	assert.False(t, first.Metadata.CacheHit)
	assert.True(t, second.Metadata.CacheHit)
	assert.Equal(t, first.PlanText, second.PlanText)
	assert.NotEqual(t, first.GenerationID, second.GenerationID)
}

func TestGenerateOracleRepairAttempt(t *testing.T) {
	p, o := newOraclePlanner(t,
		`{"plan":{"steps":[{"op":"select","fields":[{"from":"/qty","as":"x"},{"from":"/category","as":"x"}]}]}}`,
		`{"plan":{"steps":[{"op":"select","fields":["/qty"]}]}}`,
	)

	resp, err := p.Generate(context.Background(), &model.Request{
		Goal:   "list the quantities",
		Sample: json.RawMessage(salesDoc),
	})
	require.NoError(t, err)

	assert.Equal(t, model.PathOracle, resp.Metadata.Path)
	assert.Equal(t, 2, resp.Metadata.OracleAttempts)
	assert.EqualValues(t, 2, o.calls.Load())
	assert.Contains(t, o.prompts[1], "previous answer was rejected")
}

func TestGenerateOracleInvalidSyntaxFallsBack(t *testing.T) {
	rec := &memRecorder{}
	o := &scriptedOracle{answers: []string{
		`{"plan":{"steps":[{"op":"group_by","keys":["/category"]},{"op":"aggregate","metrics":[{"as":"m","fn":"median","field":"/qty"}]}]}}`,
	}}
	gen := oracle.NewGenerator(o, oracle.Config{ContentRetries: 1, BackoffBase: time.Millisecond}, nil)
	p := NewPlanner(Options{Generator: gen, Recorder: rec})

	resp, err := p.Generate(context.Background(), &model.Request{
		Goal:   "middle value of the quantities",
		Sample: json.RawMessage(salesDoc),
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, o.calls.Load())
	assert.Equal(t, model.PathTemplate, resp.Metadata.Path)
	assert.True(t, strings.HasPrefix(resp.Metadata.FallbackReason, "invalid_syntax: "), resp.Metadata.FallbackReason)
	assert.Equal(t, 1, resp.Metadata.OracleAttempts)
	require.NotEmpty(t, resp.Warnings)
	assert.True(t, strings.HasPrefix(resp.Warnings[0], "oracle failed, using template: "))

	require.Len(t, rec.errors, 1)
	assert.Equal(t, "invalid_syntax", rec.errors[0].Category)
	assert.Equal(t, resp.GenerationID, rec.errors[0].GenerationID)
}

func TestGenerateOracleModeWithoutTransport(t *testing.T) {
	p := NewPlanner(Options{})

	resp, err := p.Generate(context.Background(), &model.Request{
		Goal:   "everything",
		Sample: json.RawMessage(salesDoc),
		Mode:   model.ModeOracle,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PathTemplate, resp.Metadata.Path)
	assert.True(t, strings.HasPrefix(resp.Metadata.FallbackReason, "oracle_disabled: "))
}

func TestGenerateOracleWrongRecordPathIsReplaced(t *testing.T) {
	p, _ := newOraclePlanner(t,
		`{"plan":{"source":{"recordPath":"/nope"},"steps":[{"op":"select","fields":["/qty"]}]}}`)

	resp, err := p.Generate(context.Background(), &model.Request{
		Goal:   "list the quantities",
		Sample: json.RawMessage(salesDoc),
	})
	require.NoError(t, err)
	assert.Equal(t, model.PathOracle, resp.Metadata.Path)
	assert.Contains(t, resp.Warnings, `oracle recordPath "/nope" does not address an array; using "/sales"`)
	rp, _ := resp.Plan.RecordPath()
	assert.Equal(t, "/sales", rp)
}

func TestGenerateLimitsExampleRows(t *testing.T) {
	p := NewPlanner(Options{MaxExampleRows: 1})

	resp, err := p.Generate(context.Background(), &model.Request{
		Goal:   "everything",
		Sample: json.RawMessage(salesDoc),
	})
	require.NoError(t, err)
	assert.Len(t, resp.ExampleRows, 1)
}

func TestGenerateValidation(t *testing.T) {
	p := NewPlanner(Options{MaxGoalLength: 10, MaxSampleBytes: 200})
	sample := json.RawMessage(salesDoc)

	tests := []struct {
		name string
		req  *model.Request
	}{
		{"nil request", nil},
		{"unknown mode", &model.Request{Goal: "x", Sample: sample, Mode: "magic"}},
		{"explicit without plan", &model.Request{Goal: "x", Sample: sample, Mode: model.ModeExplicit}},
		{"missing goal", &model.Request{Sample: sample}},
		{"goal too long", &model.Request{Goal: "a goal that is too long", Sample: sample}},
		{"missing sample", &model.Request{Goal: "x"}},
		{"sample too large", &model.Request{Goal: "x", Sample: json.RawMessage(`[` + strings.Repeat(`{"a":1},`, 40) + `{"a":1}]`)}},
		{"invalid sample", &model.Request{Goal: "x", Sample: json.RawMessage(`{"a":`)}},
		{"negative maxColumns", &model.Request{Goal: "x", Sample: sample, Constraints: &model.Constraints{MaxColumns: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Generate(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, model.KindValidation, model.KindOf(err))
		})
	}
}

func TestGenerateNoRecordset(t *testing.T) {
	rec := &memRecorder{}
	p := NewPlanner(Options{Recorder: rec})

	_, err := p.Generate(context.Background(), &model.Request{Goal: "x", Sample: json.RawMessage(`{"a":1}`)})
	require.Error(t, err)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
	require.Len(t, rec.records, 1)
	assert.Equal(t, model.StatusFailed, rec.records[0].Status)
}

func TestRun(t *testing.T) {
	p := NewPlanner(Options{})

	resp, err := p.Run(context.Background(), &model.ExecuteRequest{
		Plan:     mustPlan(t, `{"steps":[{"op":"sort","by":"/qty","order":"desc"},{"op":"limit","n":1}]}`),
		Document: json.RawMessage(salesDoc),
	})
	require.NoError(t, err)
	assert.Equal(t, `[{"category":"A","qty":3}]`, rowsJSON(t, resp.Rows))
	assert.Equal(t, []string{"category", "qty"}, resp.Schema.Columns())

	_, err = p.Run(context.Background(), &model.ExecuteRequest{Plan: model.NewPlan("/sales")})
	assert.Equal(t, model.KindValidation, model.KindOf(err))

	_, err = p.Run(context.Background(), &model.ExecuteRequest{
		Plan:     model.NewPlan("/missing"),
		Document: json.RawMessage(salesDoc),
	})
	assert.Equal(t, model.KindExecutionFailure, model.KindOf(err))
}

func TestPlannerDiscover(t *testing.T) {
	p := NewPlanner(Options{})

	disc, err := p.Discover(json.RawMessage(salesDoc), "")
	require.NoError(t, err)
	assert.Equal(t, "/sales", disc.Best.Path)

	_, err = p.Discover(json.RawMessage(`nope`), "")
	assert.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestGenerateSharedOracleFailureReachesEveryCaller(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	transport := oracle.TransportFunc(func(ctx context.Context, _, _ string) (string, error) {
		calls.Add(1)
		<-release
		return `{"plan":{"steps":[{"op":"sort","by":"/qty[0]"}]}}`, nil
	})
	gen := oracle.NewGenerator(transport, oracle.Config{ContentRetries: 1, BackoffBase: time.Millisecond}, nil)
	p := NewPlanner(Options{Generator: gen})

	req := &model.Request{Goal: "list the quantities", Sample: json.RawMessage(salesDoc)}
	resps := make([]*model.Response, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	start := func(i int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resps[i], errs[i] = p.Generate(context.Background(), req)
		}()
	}

	start(0)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	start(1)
	// give the second request time to join the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for i := range resps {
		require.NoError(t, errs[i])
		assert.Equal(t, model.PathTemplate, resps[i].Metadata.Path)
		assert.True(t, strings.HasPrefix(resps[i].Metadata.FallbackReason, "invalid_syntax: "), resps[i].Metadata.FallbackReason)
		assert.Equal(t, 1, resps[i].Metadata.OracleAttempts, "caller %d", i)
	}
}
