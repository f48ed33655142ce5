package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-plan-pipeline/internal/cache"
	"go-plan-pipeline/internal/metrics"
	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/internal/oracle"
)

// Default request limits.
const (
	DefaultMaxGoalLength  = 2000
	DefaultMaxSampleBytes = 1 << 20
	DefaultMaxExampleRows = 5
)

// Recorder persists generations. *store.Store implements it.
type Recorder interface {
	SaveGeneration(ctx context.Context, rec *model.GenerationRecord) error
	SaveGenerationError(ctx context.Context, detail model.ErrorDetail) error
}

// Options configures a Planner. Every field is optional.
type Options struct {
	Generator      *oracle.Generator
	Cache          *cache.PlanCache
	Recorder       Recorder
	Logger         *zap.Logger
	MaxGoalLength  int
	MaxSampleBytes int
	MaxExampleRows int
}

// Planner is the generation router: it turns a goal and a sample into an
// executed, schema-checked plan, using caller IR, the oracle or the
// templates, and always falling back to the templates when the oracle fails.
type Planner struct {
	generator *oracle.Generator
	cache     *cache.PlanCache
	recorder  Recorder
	logger    *zap.Logger
	limits    Options
}

// NewPlanner creates a planner.
func NewPlanner(opts Options) *Planner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = cache.New()
	}
	if opts.MaxGoalLength <= 0 {
		opts.MaxGoalLength = DefaultMaxGoalLength
	}
	if opts.MaxSampleBytes <= 0 {
		opts.MaxSampleBytes = DefaultMaxSampleBytes
	}
	if opts.MaxExampleRows <= 0 {
		opts.MaxExampleRows = DefaultMaxExampleRows
	}
	return &Planner{
		generator: opts.Generator,
		cache:     opts.Cache,
		recorder:  opts.Recorder,
		logger:    opts.Logger,
		limits:    opts,
	}
}

// generation is the state of one request while it is routed.
type generation struct {
	id          string
	req         *model.Request
	root        interface{}
	constraints model.Constraints
	discovery   *Discovery
	sample      *model.Row
	tracker     *GenerationTracker
	warnings    []string
	meta        model.Metadata
}

// ------------------- Generation Router -------------------

// Generate routes req to exactly one generation path and returns the
// executed result. Errors are *model.Error values.
func (p *Planner) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	if err := p.validateRequest(req); err != nil {
		return nil, err
	}
	root, err := model.DecodeDocument(req.Sample)
	if err != nil {
		return nil, model.ErrValidation("sample is not valid JSON: %v", err)
	}

	g := &generation{
		id:          uuid.NewString(),
		req:         req,
		root:        root,
		constraints: req.EffectiveConstraints(),
	}
	g.tracker = NewGenerationTracker(g.id, p.logger)
	g.meta.Constraints = g.constraints

	resp, err := p.route(ctx, g)
	if err != nil {
		g.tracker.Fail(err)
		p.persist(ctx, g, nil)
		return nil, err
	}
	g.tracker.Complete(resp.Metadata.Path)
	p.persist(ctx, g, resp)
	return resp, nil
}

func (p *Planner) validateRequest(req *model.Request) error {
	if req == nil {
		return model.ErrValidation("request body is required")
	}
	switch req.Mode {
	case "", model.ModeAuto, model.ModeOracle, model.ModeTemplate, model.ModeExplicit:
	default:
		return model.ErrValidation("unknown mode %q", req.Mode)
	}
	if req.Mode == model.ModeExplicit && req.Plan == nil {
		return model.ErrValidation("mode explicit requires a plan")
	}
	if req.Plan == nil && req.Goal == "" {
		return model.ErrValidation("goal is required")
	}
	if n := utf8.RuneCountInString(req.Goal); n > p.limits.MaxGoalLength {
		return model.ErrValidation("goal is %d characters, limit is %d", n, p.limits.MaxGoalLength)
	}
	if len(req.Sample) == 0 {
		return model.ErrValidation("sample is required")
	}
	if len(req.Sample) > p.limits.MaxSampleBytes {
		return model.ErrValidation("sample is %d bytes, limit is %d", len(req.Sample), p.limits.MaxSampleBytes)
	}
	if c := req.Constraints; c != nil && c.MaxColumns < 0 {
		return model.ErrValidation("maxColumns must not be negative")
	}
	return nil
}

func (p *Planner) route(ctx context.Context, g *generation) (*model.Response, error) {
	if g.req.Plan != nil && (g.req.Mode == "" || g.req.Mode == model.ModeAuto || g.req.Mode == model.ModeExplicit) {
		return p.explicit(g)
	}

	g.tracker.StartStage(StageDiscovery)
	disc, err := Discover(g.root, g.req.Goal)
	if err != nil {
		g.tracker.EndStage(StageDiscovery, 0, err)
		return nil, err
	}
	rows, err := NormalizeRows(g.root, disc.Best.Path)
	if err != nil {
		g.tracker.EndStage(StageDiscovery, 0, err)
		return nil, model.ErrNotFound(err, "discovered recordset %q is unusable", disc.Best.Path)
	}
	g.tracker.EndStage(StageDiscovery, len(rows), nil)
	g.discovery = disc
	if len(rows) > 0 {
		g.sample = rows[0]
	}
	g.meta.RecordPath = disc.Best.Path
	g.meta.Candidates = disc.Paths()

	useOracle := false
	switch g.req.Mode {
	case model.ModeOracle:
		useOracle = true
	case model.ModeTemplate:
	default:
		useOracle = p.generator.Enabled() && !HasTemplateKeywords(g.req.Goal)
	}

	if useOracle {
		resp, err := p.viaOracle(ctx, g)
		if err == nil {
			return resp, nil
		}
		g.tracker.RecordError(err)
		g.meta.FallbackReason = fallbackReason(err)
		g.warnings = append(g.warnings, "oracle failed, using template: "+g.meta.FallbackReason)
		p.logger.Info("falling back to template",
			zap.String("generation_id", g.id),
			zap.String("reason", g.meta.FallbackReason))
	}
	return p.viaTemplate(g)
}

// explicit validates caller IR and runs it as-is.
func (p *Planner) explicit(g *generation) (*model.Response, error) {
	plan := g.req.Plan
	if err := ValidatePlan(plan, g.constraints); err != nil {
		return nil, err
	}
	if rp, ok := plan.RecordPath(); ok {
		g.meta.RecordPath = rp
	} else {
		g.tracker.StartStage(StageDiscovery)
		disc, err := Discover(g.root, g.req.Goal)
		g.tracker.EndStage(StageDiscovery, 0, err)
		if err != nil {
			return nil, err
		}
		g.discovery = disc
		g.meta.RecordPath = disc.Best.Path
		g.meta.Candidates = disc.Paths()
		plan = plan.WithRecordPath(disc.Best.Path)
	}
	g.meta.Path = model.PathExplicit

	exec, schema, err := p.run(g, plan)
	if err != nil {
		return nil, err
	}
	if max := g.constraints.MaxColumns; max > 0 && len(schema.Properties) > max {
		return nil, model.ErrContract("plan produces %d columns, limit is %d", len(schema.Properties), max)
	}
	return p.respond(g, g.req.Plan, exec, schema, "caller-supplied plan", nil), nil
}

// viaOracle asks the oracle for a plan. Identical requests share one call
// and reuse cached results.
func (p *Planner) viaOracle(ctx context.Context, g *generation) (*model.Response, error) {
	g.tracker.StartStage(StageGeneration)
	key := p.cacheKey(g)
	entry, hit, err := p.cache.Do(key, func() (cache.Entry, error) {
		var notes []string
		in := p.oracleInput(g)
		res, err := p.generator.GeneratePlan(ctx, in, func(prop *oracle.Proposal) (*model.Plan, error) {
			plan, n, err := p.accept(g, prop)
			notes = n
			return plan, err
		})
		if err != nil {
			var oerr *oracle.Error
			if errors.As(err, &oerr) {
				observeOracle(oerr.Failures, oerr.Latency)
			}
			return cache.Entry{}, err
		}
		observeOracle(res.Failures, res.Latency)
		return cache.Entry{
			Plan:           res.Plan,
			Rationale:      res.Proposal.Rationale,
			DeclaredSchema: res.Proposal.DeclaredSchema,
			Warnings:       notes,
			Attempts:       res.Attempts,
			Failures:       categoryNames(res.Failures),
			Latency:        res.Latency,
		}, nil
	})
	if err != nil {
		var oerr *oracle.Error
		if errors.As(err, &oerr) {
			g.tracker.RecordOracle(oerr.Attempts, oerr.Failures, oerr.Latency)
			g.meta.OracleAttempts = oerr.Attempts
			g.meta.OracleLatencyMs = oerr.Latency.Milliseconds()
		}
		g.tracker.EndStage(StageGeneration, 0, err)
		return nil, err
	}
	g.tracker.EndStage(StageGeneration, len(entry.Plan.Steps), nil)
	if hit {
		metrics.IncCacheHit()
	} else {
		g.tracker.RecordOracle(entry.Attempts, categories(entry.Failures), entry.Latency)
	}

	g.meta.Path = model.PathOracle
	g.meta.CacheHit = hit
	g.meta.OracleAttempts = entry.Attempts
	g.meta.OracleLatencyMs = entry.Latency.Milliseconds()
	g.warnings = append(g.warnings, entry.Warnings...)

	exec, schema, err := p.run(g, entry.Plan)
	if err != nil {
		return nil, err
	}
	rationale := entry.Rationale
	if rationale == "" {
		rationale = "plan proposed by the oracle"
	}
	return p.respond(g, entry.Plan, exec, schema, rationale, entry.DeclaredSchema), nil
}

func categoryNames(cats []oracle.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

func categories(names []string) []oracle.Category {
	out := make([]oracle.Category, len(names))
	for i, n := range names {
		out[i] = oracle.Category(n)
	}
	return out
}

// accept applies the acceptance rules to an oracle proposal: the declared
// record path must address an array in the sample (otherwise the
// discovered path is used), constraints must hold and the plan must run on
// the sample.
func (p *Planner) accept(g *generation, prop *oracle.Proposal) (*model.Plan, []string, error) {
	var notes []string
	plan := prop.Plan
	discovered := g.discovery.Best.Path
	if rp, ok := plan.RecordPath(); ok {
		node, found := model.Lookup(g.root, rp)
		if _, isArray := node.([]interface{}); !found || !isArray {
			notes = append(notes, fmt.Sprintf("oracle recordPath %q does not address an array; using %q", rp, discovered))
			plan = plan.WithRecordPath(discovered)
		}
	} else {
		plan = plan.WithRecordPath(discovered)
	}

	if err := ValidatePlan(plan, g.constraints); err != nil {
		return nil, notes, &oracle.Error{Category: oracle.CategoryContract, Message: "plan rejected", Err: err}
	}
	exec, err := Execute(plan, g.root)
	if err != nil {
		return nil, notes, &oracle.Error{Category: oracle.CategoryEvaluation, Message: "plan failed on the sample", Err: err}
	}
	if max := g.constraints.MaxColumns; max > 0 {
		if cols := len(InferSchema(exec.Rows).Properties); cols > max {
			return nil, notes, &oracle.Error{
				Category: oracle.CategoryContract,
				Message:  fmt.Sprintf("plan produces %d columns, limit is %d", cols, max),
			}
		}
	}
	return plan, notes, nil
}

// viaTemplate builds and runs the deterministic template plan.
func (p *Planner) viaTemplate(g *generation) (*model.Response, error) {
	g.tracker.StartStage(StageGeneration)
	res := GenerateTemplate(TemplateInput{
		Goal:        g.req.Goal,
		Sample:      g.sample,
		RecordPath:  g.discovery.Best.Path,
		FieldHints:  g.req.FieldHints,
		Constraints: &g.constraints,
	})
	g.tracker.EndStage(StageGeneration, len(res.Plan.Steps), nil)
	g.meta.Path = model.PathTemplate
	g.meta.Template = res.Name
	g.warnings = append(g.warnings, res.Warnings...)

	exec, schema, err := p.run(g, res.Plan)
	if err != nil {
		return nil, err
	}
	return p.respond(g, res.Plan, exec, schema, res.Rationale, nil), nil
}

// run executes plan on the request document and infers the output schema.
func (p *Planner) run(g *generation, plan *model.Plan) (*Execution, *model.Schema, error) {
	g.tracker.StartStage(StageExecution)
	exec, err := Execute(plan, g.root)
	if err != nil {
		metrics.IncExecution("failed")
		g.tracker.EndStage(StageExecution, 0, err)
		return nil, nil, err
	}
	metrics.IncExecution("succeeded")
	g.tracker.EndStage(StageExecution, len(exec.Rows), nil)

	g.tracker.StartStage(StageSchema)
	schema := InferSchema(exec.Rows)
	if err := checkOutput(schema, exec.Rows); err != nil {
		g.tracker.EndStage(StageSchema, 0, err)
		return nil, nil, err
	}
	g.tracker.EndStage(StageSchema, len(schema.Properties), nil)
	return exec, schema, nil
}

// checkOutput validates the produced rows against their schema.
func checkOutput(schema *model.Schema, rows []*model.Row) error {
	if err := ValidateRows(schema, rows); err != nil {
		return &model.Error{
			Kind:    model.KindExecutionFailure,
			Op:      StageSchema,
			Message: "output rows do not match the output schema",
			Err:     err,
		}
	}
	return nil
}

func (p *Planner) respond(g *generation, original *model.Plan, exec *Execution, schema *model.Schema, rationale string, declared json.RawMessage) *model.Response {
	resolved := exec.ResolvedPlan
	resp := &model.Response{
		GenerationID:   g.id,
		PlanText:       resolved.Text(),
		Plan:           resolved,
		Schema:         schema,
		DeclaredSchema: declared,
		ExampleRows:    exampleRows(exec.Rows, p.limits.MaxExampleRows),
		Rationale:      rationale,
		Warnings:       append(append([]string{}, g.warnings...), exec.Warnings...),
		Metadata:       g.meta,
	}
	if original != nil && original.Text() != resp.PlanText {
		resp.OriginalPlan = original
	}
	return resp
}

func exampleRows(rows []*model.Row, n int) []*model.Row {
	if len(rows) > n {
		rows = rows[:n]
	}
	return append([]*model.Row{}, rows...)
}

func (p *Planner) oracleInput(g *generation) oracle.Input {
	return oracle.Input{
		Goal:        g.req.Goal,
		SampleText:  string(g.req.Sample),
		RecordPath:  g.discovery.Best.Path,
		Candidates:  g.discovery.Paths(),
		FieldNames:  g.sample.Keys(),
		FieldHints:  g.req.FieldHints,
		Constraints: g.constraints,
	}
}

func (p *Planner) cacheKey(g *generation) string {
	constraints, _ := json.Marshal(g.constraints)
	hints, _ := json.Marshal(g.req.FieldHints)
	return cache.Key(
		[]byte(g.req.Goal),
		g.req.Sample,
		constraints,
		hints,
		[]byte(g.discovery.Best.Path),
	)
}

func fallbackReason(err error) string {
	var oerr *oracle.Error
	if errors.As(err, &oerr) {
		return fmt.Sprintf("%s: %s", oerr.Category, oerr.Message)
	}
	var merr *model.Error
	if errors.As(err, &merr) {
		return fmt.Sprintf("%s: %s", merr.Kind, merr.Message)
	}
	return err.Error()
}

// persist stores the generation when a recorder is configured. Storage
// problems are logged; they never fail a generation.
func (p *Planner) persist(ctx context.Context, g *generation, resp *model.Response) {
	if p.recorder == nil {
		return
	}
	now := time.Now().UTC()
	mode := g.req.Mode
	if mode == "" {
		mode = model.ModeAuto
	}
	rec := &model.GenerationRecord{
		ID:        g.id,
		Goal:      g.req.Goal,
		Mode:      mode,
		Status:    model.StatusFailed,
		Sample:    g.req.Sample,
		CreatedAt: now,
		UpdatedAt: now,
	}
	meta := g.meta
	if resp != nil {
		rec.Status = model.StatusCompleted
		rec.Path = resp.Metadata.Path
		rec.PlanText = resp.PlanText
		rec.Warnings = resp.Warnings
		meta = resp.Metadata
		if schema, err := json.Marshal(resp.Schema); err == nil {
			rec.Schema = schema
		}
	}
	if b, err := json.Marshal(meta); err == nil {
		rec.Metadata = b
	}
	if err := p.recorder.SaveGeneration(ctx, rec); err != nil {
		p.logger.Warn("failed to save generation", zap.String("generation_id", g.id), zap.Error(err))
		return
	}
	for _, detail := range g.tracker.GetMetrics().Errors {
		if err := p.recorder.SaveGenerationError(ctx, detail); err != nil {
			p.logger.Warn("failed to save generation error", zap.String("generation_id", g.id), zap.Error(err))
		}
	}
}

// ------------------- Direct execution -------------------

// Run executes a caller plan against a full document. A plan without a
// record path runs on the discovered recordset.
func (p *Planner) Run(ctx context.Context, req *model.ExecuteRequest) (*model.ExecuteResponse, error) {
	if req == nil || req.Plan == nil {
		return nil, model.ErrValidation("plan is required")
	}
	if len(req.Document) == 0 {
		return nil, model.ErrValidation("document is required")
	}
	root, err := model.DecodeDocument(req.Document)
	if err != nil {
		return nil, model.ErrValidation("document is not valid JSON: %v", err)
	}
	plan := req.Plan
	if err := ValidatePlan(plan, model.DefaultConstraints()); err != nil {
		return nil, err
	}
	if _, ok := plan.RecordPath(); !ok {
		disc, err := Discover(root, "")
		if err != nil {
			return nil, err
		}
		plan = plan.WithRecordPath(disc.Best.Path)
	}
	exec, err := Execute(plan, root)
	if err != nil {
		metrics.IncExecution("failed")
		return nil, err
	}
	metrics.IncExecution("succeeded")
	p.logger.Debug("plan executed", zap.Int("rows", len(exec.Rows)), zap.Int("warnings", len(exec.Warnings)))
	schema := InferSchema(exec.Rows)
	if err := checkOutput(schema, exec.Rows); err != nil {
		return nil, err
	}
	return &model.ExecuteResponse{
		Rows:     exec.Rows,
		Schema:   schema,
		Warnings: append([]string{}, exec.Warnings...),
	}, nil
}

// Discover ranks the candidate recordsets of a document.
func (p *Planner) Discover(document json.RawMessage, goal string) (*Discovery, error) {
	root, err := model.DecodeDocument(document)
	if err != nil {
		return nil, model.ErrValidation("document is not valid JSON: %v", err)
	}
	return Discover(root, goal)
}
