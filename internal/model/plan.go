package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PlanVersion is the IR version this build produces.
const PlanVersion = "1"

// OpKind names a plan step operator.
type OpKind string

const (
	OpSelect    OpKind = "select"
	OpFilter    OpKind = "filter"
	OpCompute   OpKind = "compute"
	OpMapValue  OpKind = "map_value"
	OpSort      OpKind = "sort"
	OpGroupBy   OpKind = "group_by"
	OpAggregate OpKind = "aggregate"
	OpLimit     OpKind = "limit"
)

// AllOps lists every operator in declaration order.
var AllOps = []OpKind{OpSelect, OpFilter, OpCompute, OpMapValue, OpSort, OpGroupBy, OpAggregate, OpLimit}

// ParseOpKind accepts the canonical snake_case names as well as camelCase and
// dashed spellings ("groupBy", "map-value").
func ParseOpKind(s string) (OpKind, bool) {
	norm := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	for _, op := range AllOps {
		if strings.ReplaceAll(string(op), "_", "") == norm {
			return op, true
		}
	}
	return "", false
}

// Plan is the ordered, typed operation pipeline. A Plan is never modified
// after it is built; resolution and execution produce new values.
type Plan struct {
	Version string `json:"version"`
	Source  Source `json:"source"`
	Steps   []Step `json:"steps"`
}

// Source addresses the recordset inside the root document.
type Source struct {
	// RecordPath is nil when the plan did not declare one and should inherit
	// the discovered path. "" means the root itself is the array.
	RecordPath *string `json:"recordPath,omitempty"`
}

// NewPlan builds a plan with the given record path and steps.
func NewPlan(recordPath string, steps ...Step) *Plan {
	rp := recordPath
	if steps == nil {
		steps = []Step{}
	}
	return &Plan{Version: PlanVersion, Source: Source{RecordPath: &rp}, Steps: steps}
}

// RecordPath returns the declared record path and whether one was declared.
func (p *Plan) RecordPath() (string, bool) {
	if p == nil || p.Source.RecordPath == nil {
		return "", false
	}
	return *p.Source.RecordPath, true
}

// WithRecordPath returns a copy of p that declares path. Steps are shared;
// they are immutable.
func (p *Plan) WithRecordPath(path string) *Plan {
	rp := path
	cp := *p
	cp.Source = Source{RecordPath: &rp}
	cp.Steps = append([]Step(nil), p.Steps...)
	return &cp
}

// WithSteps returns a copy of p with a different step list.
func (p *Plan) WithSteps(steps []Step) *Plan {
	cp := *p
	cp.Steps = steps
	return &cp
}

// Text renders the plan as indented JSON, the form stored and shown to users.
func (p *Plan) Text() string {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

// ParsePlan decodes a plan from its JSON text.
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UnmarshalJSON decodes the plan and its tagged steps. A top-level
// "recordPath" is accepted as a shorthand for source.recordPath.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var raw struct {
		Version    string            `json:"version"`
		Source     *Source           `json:"source"`
		RecordPath *string           `json:"recordPath"`
		Steps      []json.RawMessage `json:"steps"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ErrContract("plan is not a JSON object: %v", err)
	}
	if raw.Steps == nil {
		return ErrContract("plan is missing required field \"steps\"")
	}
	p.Version = raw.Version
	if p.Version == "" {
		p.Version = PlanVersion
	}
	p.Source = Source{}
	if raw.Source != nil {
		p.Source = *raw.Source
	}
	if p.Source.RecordPath == nil && raw.RecordPath != nil {
		p.Source.RecordPath = raw.RecordPath
	}
	p.Steps = make([]Step, 0, len(raw.Steps))
	for i, rs := range raw.Steps {
		step, err := DecodeStep(rs)
		if err != nil {
			return ErrContract("step %d: %v", i+1, err)
		}
		p.Steps = append(p.Steps, step)
	}
	return nil
}

// Step is one operator of a plan. The set of implementations is closed: the
// unexported method keeps other packages from adding variants, and Accept
// routes every variant through StepVisitor so a consumer that implements the
// visitor is checked complete by the compiler.
type Step interface {
	Op() OpKind
	Accept(v StepVisitor) error
	sealed()
}

// StepVisitor has one method per step kind.
type StepVisitor interface {
	VisitSelect(*SelectStep) error
	VisitFilter(*FilterStep) error
	VisitCompute(*ComputeStep) error
	VisitMapValue(*MapValueStep) error
	VisitSort(*SortStep) error
	VisitGroupBy(*GroupByStep) error
	VisitAggregate(*AggregateStep) error
	VisitLimit(*LimitStep) error
}

// SelectField maps a source pointer to an output key.
type SelectField struct {
	From string `json:"from"`
	As   string `json:"as,omitempty"`
}

// Name is the output key, defaulting to the last pointer segment.
func (f SelectField) Name() string {
	if f.As != "" {
		return f.As
	}
	return FieldName(f.From)
}

// UnmarshalJSON accepts either {"from":..,"as":..} or a bare pointer string.
func (f *SelectField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = SelectField{From: s}
		return nil
	}
	type alias SelectField
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = SelectField(a)
	return nil
}

// SelectStep emits exactly the listed output keys in order.
type SelectStep struct {
	Fields []SelectField `json:"fields"`
}

// FilterStep keeps rows for which Where is true.
type FilterStep struct {
	Where Condition `json:"where"`
}

// ComputeStep evaluates Expr and stores the result under As.
type ComputeStep struct {
	As   string `json:"as"`
	Expr string `json:"expr"`
}

// MapValueStep translates values of Field through a static table.
type MapValueStep struct {
	Field      string                 `json:"field"`
	As         string                 `json:"as,omitempty"`
	Mapping    map[string]interface{} `json:"mapping"`
	Default    interface{}            `json:"-"`
	HasDefault bool                   `json:"-"`
}

// Target is the output key, defaulting to the source field name.
func (s *MapValueStep) Target() string {
	if s.As != "" {
		return s.As
	}
	return FieldName(s.Field)
}

// SortStep orders rows by one field.
type SortStep struct {
	By    string `json:"by"`
	Order string `json:"order,omitempty"` // "asc" (default) or "desc"
}

// Descending reports whether the sort order is descending.
func (s *SortStep) Descending() bool {
	return strings.EqualFold(s.Order, "desc") || strings.EqualFold(s.Order, "descending")
}

// GroupByStep partitions rows by the ordered tuple of key values.
type GroupByStep struct {
	Keys []string `json:"keys"`
}

// AggregateStep computes metrics per bucket.
type AggregateStep struct {
	Metrics []MetricSpec `json:"metrics"`
}

// LimitStep truncates to at most N rows.
type LimitStep struct {
	N int `json:"n"`
}

// MetricFunc is an aggregation function.
type MetricFunc string

const (
	MetricSum   MetricFunc = "sum"
	MetricCount MetricFunc = "count"
	MetricAvg   MetricFunc = "avg"
	MetricMin   MetricFunc = "min"
	MetricMax   MetricFunc = "max"
)

// ParseMetricFunc normalizes a metric name; "average" and "mean" map to avg.
func ParseMetricFunc(s string) (MetricFunc, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum":
		return MetricSum, true
	case "count":
		return MetricCount, true
	case "avg", "average", "mean":
		return MetricAvg, true
	case "min":
		return MetricMin, true
	case "max":
		return MetricMax, true
	}
	return "", false
}

// MetricSpec describes one aggregate output column.
type MetricSpec struct {
	As    string     `json:"as"`
	Fn    MetricFunc `json:"fn"`
	Field string     `json:"field,omitempty"`
	Expr  string     `json:"expr,omitempty"`
}

// Name is the output key of the metric.
func (m MetricSpec) Name() string {
	if m.As != "" {
		return m.As
	}
	if m.Field != "" {
		return string(m.Fn) + "_" + FieldName(m.Field)
	}
	return string(m.Fn)
}

// UnmarshalJSON accepts "function"/"func" for fn and "alias"/"name" for as.
func (m *MetricSpec) UnmarshalJSON(data []byte) error {
	var raw struct {
		As       string `json:"as"`
		Alias    string `json:"alias"`
		Name     string `json:"name"`
		Fn       string `json:"fn"`
		Function string `json:"function"`
		Func     string `json:"func"`
		Field    string `json:"field"`
		Expr     string `json:"expr"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	fnName := firstNonEmpty(raw.Fn, raw.Function, raw.Func)
	fn, ok := ParseMetricFunc(fnName)
	if !ok {
		return fmt.Errorf("unknown aggregate function %q", fnName)
	}
	*m = MetricSpec{
		As:    firstNonEmpty(raw.As, raw.Alias, raw.Name),
		Fn:    fn,
		Field: raw.Field,
		Expr:  raw.Expr,
	}
	return nil
}

func (*SelectStep) Op() OpKind    { return OpSelect }
func (*FilterStep) Op() OpKind    { return OpFilter }
func (*ComputeStep) Op() OpKind   { return OpCompute }
func (*MapValueStep) Op() OpKind  { return OpMapValue }
func (*SortStep) Op() OpKind      { return OpSort }
func (*GroupByStep) Op() OpKind   { return OpGroupBy }
func (*AggregateStep) Op() OpKind { return OpAggregate }
func (*LimitStep) Op() OpKind     { return OpLimit }

func (s *SelectStep) Accept(v StepVisitor) error    { return v.VisitSelect(s) }
func (s *FilterStep) Accept(v StepVisitor) error    { return v.VisitFilter(s) }
func (s *ComputeStep) Accept(v StepVisitor) error   { return v.VisitCompute(s) }
func (s *MapValueStep) Accept(v StepVisitor) error  { return v.VisitMapValue(s) }
func (s *SortStep) Accept(v StepVisitor) error      { return v.VisitSort(s) }
func (s *GroupByStep) Accept(v StepVisitor) error   { return v.VisitGroupBy(s) }
func (s *AggregateStep) Accept(v StepVisitor) error { return v.VisitAggregate(s) }
func (s *LimitStep) Accept(v StepVisitor) error     { return v.VisitLimit(s) }

func (*SelectStep) sealed()    {}
func (*FilterStep) sealed()    {}
func (*ComputeStep) sealed()   {}
func (*MapValueStep) sealed()  {}
func (*SortStep) sealed()      {}
func (*GroupByStep) sealed()   {}
func (*AggregateStep) sealed() {}
func (*LimitStep) sealed()     {}

func (s *SelectStep) MarshalJSON() ([]byte, error) {
	type alias SelectStep
	return marshalTagged(OpSelect, (*alias)(s))
}

func (s *FilterStep) MarshalJSON() ([]byte, error) {
	cond, err := MarshalCondition(s.Where)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Op    OpKind          `json:"op"`
		Where json.RawMessage `json:"where"`
	}{OpFilter, cond})
}

func (s *ComputeStep) MarshalJSON() ([]byte, error) {
	type alias ComputeStep
	return marshalTagged(OpCompute, (*alias)(s))
}

func (s *MapValueStep) MarshalJSON() ([]byte, error) {
	out := struct {
		Op      OpKind                 `json:"op"`
		Field   string                 `json:"field"`
		As      string                 `json:"as,omitempty"`
		Mapping map[string]interface{} `json:"mapping"`
		Default *interface{}           `json:"default,omitempty"`
	}{Op: OpMapValue, Field: s.Field, As: s.As, Mapping: s.Mapping}
	if s.HasDefault {
		d := s.Default
		out.Default = &d
	}
	return json.Marshal(out)
}

func (s *SortStep) MarshalJSON() ([]byte, error) {
	type alias SortStep
	return marshalTagged(OpSort, (*alias)(s))
}

func (s *GroupByStep) MarshalJSON() ([]byte, error) {
	type alias GroupByStep
	return marshalTagged(OpGroupBy, (*alias)(s))
}

func (s *AggregateStep) MarshalJSON() ([]byte, error) {
	type alias AggregateStep
	return marshalTagged(OpAggregate, (*alias)(s))
}

func (s *LimitStep) MarshalJSON() ([]byte, error) {
	type alias LimitStep
	return marshalTagged(OpLimit, (*alias)(s))
}

func marshalTagged(op OpKind, body interface{}) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(op)
	if string(b) == "{}" {
		return []byte(`{"op":` + string(tag) + `}`), nil
	}
	return append([]byte(`{"op":`+string(tag)+`,`), b[1:]...), nil
}

// DecodeStep decodes one {"op": ...} step object.
func DecodeStep(data []byte) (Step, error) {
	var head struct {
		Op   string `json:"op"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("step is not an object: %w", err)
	}
	name := firstNonEmpty(head.Op, head.Type)
	if name == "" {
		return nil, fmt.Errorf("step is missing required field \"op\"")
	}
	op, ok := ParseOpKind(name)
	if !ok {
		return nil, fmt.Errorf("unknown operator %q", name)
	}
	switch op {
	case OpSelect:
		var s SelectStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return &s, nil
	case OpFilter:
		var raw struct {
			Where     json.RawMessage `json:"where"`
			Condition json.RawMessage `json:"condition"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		body := raw.Where
		if len(body) == 0 {
			body = raw.Condition
		}
		if len(body) == 0 {
			return nil, fmt.Errorf("filter is missing required field \"where\"")
		}
		cond, err := DecodeCondition(body)
		if err != nil {
			return nil, err
		}
		return &FilterStep{Where: cond}, nil
	case OpCompute:
		var s ComputeStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return &s, nil
	case OpMapValue:
		var raw struct {
			Field   string                 `json:"field"`
			As      string                 `json:"as"`
			Mapping map[string]interface{} `json:"mapping"`
			Default json.RawMessage        `json:"default"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		s := &MapValueStep{Field: raw.Field, As: raw.As, Mapping: make(map[string]interface{}, len(raw.Mapping))}
		for k, v := range raw.Mapping {
			s.Mapping[k] = FromPlain(v)
		}
		if len(raw.Default) > 0 {
			var d interface{}
			if err := json.Unmarshal(raw.Default, &d); err != nil {
				return nil, err
			}
			s.Default = FromPlain(d)
			s.HasDefault = true
		}
		return s, nil
	case OpSort:
		var raw struct {
			By        string `json:"by"`
			Field     string `json:"field"`
			Order     string `json:"order"`
			Direction string `json:"direction"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		return &SortStep{By: firstNonEmpty(raw.By, raw.Field), Order: firstNonEmpty(raw.Order, raw.Direction)}, nil
	case OpGroupBy:
		var s GroupByStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return &s, nil
	case OpAggregate:
		var s AggregateStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return &s, nil
	case OpLimit:
		var s LimitStep
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return &s, nil
	}
	return nil, fmt.Errorf("unknown operator %q", name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
