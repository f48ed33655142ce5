package pipeline

import (
	"encoding/json"
	"fmt"

	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/pkg/utils"
)

// ------------------- Grouping -------------------

// VisitGroupBy partitions the current rows by the ordered tuple of key
// values. Buckets keep first-seen order; each carries its member rows for
// the Aggregate that follows.
func (ex *executor) VisitGroupBy(s *model.GroupByStep) error {
	if len(s.Keys) == 0 {
		return errField("", "group_by needs at least one key")
	}
	index := make(map[string]int)
	var groups []bucket
	for _, b := range ex.buckets {
		values := make([]interface{}, len(s.Keys))
		for i, key := range s.Keys {
			values[i], _ = model.Lookup(b.row, key)
		}
		id := groupKey(values)
		pos, ok := index[id]
		if !ok {
			keyRow := model.NewRow(len(s.Keys))
			for i, key := range s.Keys {
				keyRow.Set(model.FieldName(key), values[i])
			}
			pos = len(groups)
			index[id] = pos
			groups = append(groups, bucket{row: keyRow})
		}
		groups[pos].members = append(groups[pos].members, b.row)
	}
	ex.buckets = groups
	ex.grouped = true
	return nil
}

func groupKey(values []interface{}) string {
	b, err := json.Marshal(model.Plain(values))
	if err != nil {
		return fmt.Sprint(values...)
	}
	return string(b)
}

// ------------------- Aggregation -------------------

// VisitAggregate computes metrics for every bucket. Without a preceding
// GroupBy the whole input is one implicit bucket, which yields exactly one
// row even when the input is empty.
func (ex *executor) VisitAggregate(s *model.AggregateStep) error {
	if len(s.Metrics) == 0 {
		return errField("", "aggregate needs at least one metric")
	}
	metrics := make([]compiledMetric, len(s.Metrics))
	for i, m := range s.Metrics {
		cm, err := compileMetric(m)
		if err != nil {
			return err
		}
		metrics[i] = cm
	}

	var out []bucket
	if ex.grouped {
		out = make([]bucket, len(ex.buckets))
		for i, b := range ex.buckets {
			row := b.row.Clone()
			for _, m := range metrics {
				row.Set(m.name, m.compute(b.members))
			}
			out[i] = bucket{row: row}
		}
	} else {
		all := ex.rows()
		row := model.NewRow(len(metrics))
		for _, m := range metrics {
			row.Set(m.name, m.compute(all))
		}
		out = []bucket{{row: row}}
	}
	ex.buckets = out
	ex.grouped = false
	return nil
}

type compiledMetric struct {
	name  string
	fn    model.MetricFunc
	field string
	expr  *Expression
}

func compileMetric(m model.MetricSpec) (compiledMetric, error) {
	cm := compiledMetric{name: m.Name(), fn: m.Fn, field: m.Field}
	switch m.Fn {
	case model.MetricCount, model.MetricSum, model.MetricAvg, model.MetricMin, model.MetricMax:
	default:
		return cm, errField(m.Field, "unknown aggregate function %q", m.Fn)
	}
	if m.Expr != "" {
		expr, err := ParseExpression(m.Expr)
		if err != nil {
			return cm, errField(m.Name(), "invalid metric expression: %v", err)
		}
		cm.expr = &expr
	}
	if m.Fn != model.MetricCount && m.Field == "" && cm.expr == nil {
		return cm, errField(m.Name(), "%s needs a field or expression", m.Fn)
	}
	return cm, nil
}

// compute evaluates the metric over members. Non-numeric and missing values
// are ignored; an empty set yields 0.
func (m compiledMetric) compute(members []*model.Row) float64 {
	if m.fn == model.MetricCount {
		return float64(len(members))
	}
	var sum, min, max float64
	n := 0
	for _, row := range members {
		v, ok := m.value(row)
		if !ok {
			continue
		}
		if n == 0 || v < min {
			min = v
		}
		if n == 0 || v > max {
			max = v
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	switch m.fn {
	case model.MetricSum:
		return sum
	case model.MetricAvg:
		return sum / float64(n)
	case model.MetricMin:
		return min
	case model.MetricMax:
		return max
	}
	return 0
}

func (m compiledMetric) value(row *model.Row) (float64, bool) {
	if m.expr != nil {
		return m.expr.Eval(row)
	}
	v, ok := model.Lookup(row, m.field)
	if !ok {
		return 0, false
	}
	return utils.ToFloat(v)
}
