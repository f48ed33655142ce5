package pipeline

import (
	"strings"

	"go-plan-pipeline/internal/model"
)

// transformOps produce new values and are forbidden when a request disallows
// transforms.
var transformOps = map[model.OpKind]struct{}{
	model.OpCompute:   {},
	model.OpMapValue:  {},
	model.OpGroupBy:   {},
	model.OpAggregate: {},
}

// ValidatePlan checks a plan's structure and the request constraints before
// it is executed. Failures are contract-invalid errors naming the step.
func ValidatePlan(plan *model.Plan, constraints model.Constraints) error {
	if plan == nil {
		return model.ErrContract("plan is required")
	}
	if plan.Version != "" && plan.Version != model.PlanVersion {
		return model.ErrContract("unsupported plan version %q", plan.Version)
	}
	if rp, ok := plan.RecordPath(); ok && rp != "" && !strings.HasPrefix(rp, "/") {
		return model.ErrContract("recordPath %q must be empty or start with '/'", rp)
	}
	for i, step := range plan.Steps {
		if step == nil {
			return contractStep(i, "", "", "missing step")
		}
		if _, ok := transformOps[step.Op()]; ok && !constraints.AllowTransform {
			return contractStep(i, step.Op(), "", "operator not allowed: transforms are disabled")
		}
		v := &stepValidator{}
		if err := step.Accept(v); err != nil {
			return err
		}
		if v.problem != "" {
			return contractStep(i, step.Op(), v.field, v.problem)
		}
	}
	return nil
}

func contractStep(i int, op model.OpKind, field, msg string) error {
	e := model.ErrContract("%s", msg)
	e.Step = i + 1
	e.Op = string(op)
	e.Field = field
	return e
}

// stepValidator records the first structural problem of a step.
type stepValidator struct {
	problem string
	field   string
}

func (v *stepValidator) fail(field, msg string) error {
	if v.problem == "" {
		v.problem, v.field = msg, field
	}
	return nil
}

func (v *stepValidator) VisitSelect(s *model.SelectStep) error {
	if len(s.Fields) == 0 {
		return v.fail("", "select needs at least one field")
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.From == "" {
			return v.fail("", "select field is missing \"from\"")
		}
		if _, dup := seen[f.Name()]; dup {
			return v.fail(f.Name(), "duplicate output key")
		}
		seen[f.Name()] = struct{}{}
	}
	return nil
}

func (v *stepValidator) VisitFilter(s *model.FilterStep) error {
	if s.Where == nil {
		return v.fail("", "filter needs a condition")
	}
	return v.condition(s.Where)
}

func (v *stepValidator) condition(c model.Condition) error {
	switch cond := c.(type) {
	case *model.AndCondition:
		return v.children("and", cond.Conditions)
	case *model.OrCondition:
		return v.children("or", cond.Conditions)
	case *model.NotCondition:
		if cond.Condition == nil {
			return v.fail("", "not needs exactly one condition")
		}
		return v.condition(cond.Condition)
	case *model.Predicate:
		if cond.Left.Ref && cond.Left.Field == "" {
			return v.fail("", "predicate has an empty field reference")
		}
		return nil
	}
	return v.fail("", "missing condition")
}

func (v *stepValidator) children(name string, conds []model.Condition) error {
	if len(conds) == 0 {
		return v.fail("", name+" needs at least one condition")
	}
	for _, c := range conds {
		if err := v.condition(c); err != nil || v.problem != "" {
			return err
		}
	}
	return nil
}

func (v *stepValidator) VisitCompute(s *model.ComputeStep) error {
	if s.As == "" {
		return v.fail("", "compute needs an output name")
	}
	if _, err := ParseExpression(s.Expr); err != nil {
		return v.fail(s.As, "invalid expression: "+err.Error())
	}
	return nil
}

func (v *stepValidator) VisitMapValue(s *model.MapValueStep) error {
	if s.Field == "" {
		return v.fail("", "map_value needs a field")
	}
	if s.Mapping == nil {
		return v.fail(s.Field, "map_value needs a mapping")
	}
	return nil
}

func (v *stepValidator) VisitSort(s *model.SortStep) error {
	if s.By == "" {
		return v.fail("", "sort needs a field")
	}
	switch strings.ToLower(s.Order) {
	case "", "asc", "ascending", "desc", "descending":
		return nil
	}
	return v.fail(s.By, "sort order must be asc or desc")
}

func (v *stepValidator) VisitGroupBy(s *model.GroupByStep) error {
	if len(s.Keys) == 0 {
		return v.fail("", "group_by needs at least one key")
	}
	for _, k := range s.Keys {
		if k == "" {
			return v.fail("", "group_by key is empty")
		}
	}
	return nil
}

func (v *stepValidator) VisitAggregate(s *model.AggregateStep) error {
	if len(s.Metrics) == 0 {
		return v.fail("", "aggregate needs at least one metric")
	}
	for _, m := range s.Metrics {
		if _, err := compileMetric(m); err != nil {
			return v.fail(m.Name(), err.Error())
		}
	}
	return nil
}

func (v *stepValidator) VisitLimit(s *model.LimitStep) error {
	if s.N < 0 {
		return v.fail("", "limit must not be negative")
	}
	return nil
}
