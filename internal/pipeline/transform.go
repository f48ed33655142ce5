package pipeline

import (
	"sort"

	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/pkg/utils"
)

// ------------------- Row operators -------------------

func (ex *executor) VisitSelect(s *model.SelectStep) error {
	if len(s.Fields) == 0 {
		return errField("", "select needs at least one field")
	}
	return ex.mapRows(func(row *model.Row) (*model.Row, error) {
		out := model.NewRow(len(s.Fields))
		for _, f := range s.Fields {
			v, _ := model.Lookup(row, f.From)
			out.Set(f.Name(), v)
		}
		return out, nil
	})
}

func (ex *executor) VisitFilter(s *model.FilterStep) error {
	if s.Where == nil {
		return errField("", "filter needs a condition")
	}
	kept := make([]bucket, 0, len(ex.buckets))
	for _, b := range ex.buckets {
		ok, err := EvalCondition(s.Where, b.row)
		if err != nil {
			return err
		}
		if ok {
			kept = append(kept, b)
		}
	}
	ex.buckets = kept
	return nil
}

func (ex *executor) VisitCompute(s *model.ComputeStep) error {
	if s.As == "" {
		return errField("", "compute needs an output name")
	}
	expr, err := ParseExpression(s.Expr)
	if err != nil {
		return errField(s.As, "invalid expression: %v", err)
	}
	return ex.mapRows(func(row *model.Row) (*model.Row, error) {
		out := row.Clone()
		if v, ok := expr.Eval(row); ok {
			out.Set(s.As, v)
		} else {
			out.Set(s.As, nil)
		}
		return out, nil
	})
}

func (ex *executor) VisitMapValue(s *model.MapValueStep) error {
	if s.Field == "" {
		return errField("", "map_value needs a field")
	}
	target := s.Target()
	return ex.mapRows(func(row *model.Row) (*model.Row, error) {
		v, present := model.Lookup(row, s.Field)
		if present {
			if mapped, ok := s.Mapping[utils.StringOf(v)]; ok {
				v = mapped
			} else if s.HasDefault {
				v = s.Default
			}
		} else if s.HasDefault {
			v, present = s.Default, true
		}
		if !present {
			return row, nil
		}
		out := row.Clone()
		out.Set(target, v)
		return out, nil
	})
}

func (ex *executor) VisitSort(s *model.SortStep) error {
	if s.By == "" {
		return errField("", "sort needs a field")
	}
	desc := s.Descending()
	sorted := append([]bucket(nil), ex.buckets...)
	keys := make([]interface{}, len(sorted))
	for i, b := range sorted {
		keys[i], _ = model.Lookup(b.row, s.By)
	}
	idx := make([]int, len(sorted))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		c := compareValues(keys[idx[i]], keys[idx[j]])
		if desc {
			return c > 0
		}
		return c < 0
	})
	out := make([]bucket, len(sorted))
	for i, k := range idx {
		out[i] = sorted[k]
	}
	ex.buckets = out
	return nil
}

func (ex *executor) VisitLimit(s *model.LimitStep) error {
	if s.N < 0 {
		return errField("", "limit must not be negative, got %d", s.N)
	}
	if s.N < len(ex.buckets) {
		ex.buckets = append([]bucket(nil), ex.buckets[:s.N]...)
	}
	return nil
}
