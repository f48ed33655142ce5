package pipeline

import (
	"errors"
	"fmt"

	"go-plan-pipeline/internal/model"
)

// Execution is the result of running a plan over a document.
type Execution struct {
	Rows         []*model.Row
	Warnings     []string
	ResolvedPlan *model.Plan
}

// bucket pairs a row with the members it was grouped from. members is only
// set between a GroupBy and the Aggregate that consumes it.
type bucket struct {
	row     *model.Row
	members []*model.Row
}

// executor folds steps over the current rows. It implements
// model.StepVisitor, one method per operator.
type executor struct {
	buckets []bucket
	grouped bool
}

// fieldError attaches the offending field to an operator failure.
type fieldError struct {
	field string
	err   error
}

func (e *fieldError) Error() string { return e.err.Error() }
func (e *fieldError) Unwrap() error { return e.err }

func errField(field string, format string, args ...interface{}) error {
	return &fieldError{field: field, err: fmt.Errorf(format, args...)}
}

// Execute runs plan against root. The recordset at the plan's record path is
// normalized, then every step is resolved against the current sample row and
// applied in order. Any failing step aborts the run; no partial rows are
// returned. Execute never modifies plan or root.
func Execute(plan *model.Plan, root interface{}) (*Execution, error) {
	if plan == nil {
		return nil, model.ErrValidation("plan is required")
	}
	recordPath, _ := plan.RecordPath()
	rows, err := NormalizeRows(root, recordPath)
	if err != nil {
		return nil, &model.Error{
			Kind:    model.KindExecutionFailure,
			Op:      "source",
			Field:   recordPath,
			Message: "cannot read recordset",
			Err:     err,
		}
	}

	ex := &executor{buckets: make([]bucket, len(rows))}
	for i, row := range rows {
		ex.buckets[i] = bucket{row: row}
	}

	var warnings []string
	seen := make(map[string]struct{})
	resolvedSteps := make([]model.Step, 0, len(plan.Steps))
	for i, step := range plan.Steps {
		if step == nil {
			return nil, model.ErrExecution(i+1, "", "", errors.New("missing step"))
		}
		resolved, warns := ResolveStep(step, ex.sample(step))
		for _, w := range warns {
			msg := fmt.Sprintf("step %d (%s): %s", i+1, step.Op(), w)
			if _, dup := seen[msg]; !dup {
				seen[msg] = struct{}{}
				warnings = append(warnings, msg)
			}
		}
		resolvedSteps = append(resolvedSteps, resolved)

		if err := resolved.Accept(ex); err != nil {
			field := ""
			var fe *fieldError
			if errors.As(err, &fe) {
				field = fe.field
			}
			return nil, model.ErrExecution(i+1, step.Op(), field, err)
		}
	}

	return &Execution{
		Rows:         ex.rows(),
		Warnings:     warnings,
		ResolvedPlan: plan.WithRecordPath(recordPath).WithSteps(resolvedSteps),
	}, nil
}

// sample is the row the field references of step are resolved against.
// An Aggregate after a GroupBy reads the member rows, not the key rows.
func (ex *executor) sample(step model.Step) *model.Row {
	if len(ex.buckets) == 0 {
		return nil
	}
	first := ex.buckets[0]
	if _, ok := step.(*model.AggregateStep); ok && ex.grouped && len(first.members) > 0 {
		return first.members[0]
	}
	return first.row
}

func (ex *executor) rows() []*model.Row {
	out := make([]*model.Row, len(ex.buckets))
	for i, b := range ex.buckets {
		out[i] = b.row
	}
	return out
}

// mapRows replaces every row, keeping any group membership.
func (ex *executor) mapRows(fn func(*model.Row) (*model.Row, error)) error {
	next := make([]bucket, len(ex.buckets))
	for i, b := range ex.buckets {
		row, err := fn(b.row)
		if err != nil {
			return err
		}
		next[i] = bucket{row: row, members: b.members}
	}
	ex.buckets = next
	return nil
}
