package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"go-plan-pipeline/internal/model"
)

// aliasGroups are cross-language synonyms for common field names, stored in
// folded form (lower case, no accents).
var aliasGroups = [][]string{
	{"name", "nome", "nombre", "nom"},
	{"price", "preco", "precio", "valor", "prix"},
	{"date", "data", "fecha"},
	{"quantity", "qty", "quantidade", "cantidad", "qtd", "qtde"},
	{"category", "categoria", "categorie", "cat"},
	{"description", "descricao", "descripcion", "desc"},
	{"city", "cidade", "ciudad"},
	{"country", "pais"},
	{"total", "amount", "montante", "monto", "importe"},
	{"customer", "cliente", "client"},
	{"product", "produto", "producto"},
	{"status", "estado", "situacao"},
	{"email", "e-mail", "correo", "mail"},
	{"id", "codigo", "code", "identifier"},
	{"age", "idade", "edad"},
	{"temperature", "temperatura", "temp"},
}

// aliasIndex maps every folded alias to its group.
var aliasIndex = func() map[string]int {
	idx := make(map[string]int)
	for i, group := range aliasGroups {
		for _, name := range group {
			idx[name] = i
		}
	}
	return idx
}()

// Resolution is the outcome of resolving one field reference.
type Resolution struct {
	Path     string
	Changed  bool
	Warnings []string
}

// Resolve maps path onto a key that actually exists in sample. It never
// fails: an unresolvable field is returned unchanged with a warning.
func Resolve(path string, sample *model.Row) Resolution {
	segments := model.SplitPointer(path)
	if len(segments) == 0 || sample == nil {
		return Resolution{Path: path}
	}
	first := segments[0]
	if sample.Has(first) {
		return Resolution{Path: path}
	}

	if key, ok := matchKey(first, sample); ok {
		segments[0] = key
		return Resolution{Path: model.JoinPointer(segments...), Changed: true}
	}

	return Resolution{
		Path: path,
		Warnings: []string{fmt.Sprintf("field %q not found; available keys: %s",
			first, strings.Join(sample.Keys(), ", "))},
	}
}

// matchKey tries the alias table, then a case-insensitive match, then an
// accent-insensitive match.
func matchKey(name string, sample *model.Row) (string, bool) {
	keys := sample.Keys()
	folded := foldName(name)

	if group, ok := aliasIndex[folded]; ok {
		for _, key := range keys {
			if g, ok := aliasIndex[foldName(key)]; ok && g == group {
				return key, true
			}
		}
	}

	caseFolded := cases.Fold().String(name)
	for _, key := range keys {
		if cases.Fold().String(key) == caseFolded {
			return key, true
		}
	}

	for _, key := range keys {
		if foldName(key) == folded {
			return key, true
		}
	}
	return "", false
}

// foldName removes case and diacritics: "Preço" -> "preco".
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(strings.TrimSpace(out))
}

// ResolveStep rewrites every field reference of step against sample and
// returns the new step. The input step is not modified.
func ResolveStep(step model.Step, sample *model.Row) (model.Step, []string) {
	r := &stepResolver{sample: sample}
	if err := step.Accept(r); err != nil {
		return step, nil
	}
	return r.out, r.warnings
}

// stepResolver builds a resolved copy of the step it visits.
type stepResolver struct {
	sample   *model.Row
	out      model.Step
	warnings []string
}

func (r *stepResolver) path(p string) string {
	res := Resolve(p, r.sample)
	r.warnings = append(r.warnings, res.Warnings...)
	return res.Path
}

func (r *stepResolver) expr(expr string) string {
	parsed, err := ParseExpression(expr)
	if err != nil {
		return expr
	}
	changed := false
	if parsed.Left.Ref {
		if p := r.path(parsed.Left.Field); p != parsed.Left.Field {
			parsed.Left.Field, changed = p, true
		}
	}
	if parsed.Op != 0 && parsed.Right.Ref {
		if p := r.path(parsed.Right.Field); p != parsed.Right.Field {
			parsed.Right.Field, changed = p, true
		}
	}
	if !changed {
		return expr
	}
	return parsed.String()
}

func (r *stepResolver) condition(cond model.Condition) model.Condition {
	switch c := cond.(type) {
	case *model.AndCondition:
		return &model.AndCondition{Conditions: r.conditions(c.Conditions)}
	case *model.OrCondition:
		return &model.OrCondition{Conditions: r.conditions(c.Conditions)}
	case *model.NotCondition:
		return &model.NotCondition{Condition: r.condition(c.Condition)}
	case *model.Predicate:
		return &model.Predicate{Op: c.Op, Left: r.operand(c.Left), Right: r.operand(c.Right)}
	}
	return cond
}

func (r *stepResolver) conditions(conds []model.Condition) []model.Condition {
	out := make([]model.Condition, len(conds))
	for i, c := range conds {
		out[i] = r.condition(c)
	}
	return out
}

func (r *stepResolver) operand(o model.Operand) model.Operand {
	if !o.Ref {
		return o
	}
	return model.FieldRef(r.path(o.Field))
}

func (r *stepResolver) VisitSelect(s *model.SelectStep) error {
	fields := make([]model.SelectField, len(s.Fields))
	for i, f := range s.Fields {
		from := r.path(f.From)
		as := f.As
		if as == "" && from != f.From {
			// keep the requested output name when the source is rewritten
			as = f.Name()
		}
		fields[i] = model.SelectField{From: from, As: as}
	}
	r.out = &model.SelectStep{Fields: fields}
	return nil
}

func (r *stepResolver) VisitFilter(s *model.FilterStep) error {
	r.out = &model.FilterStep{Where: r.condition(s.Where)}
	return nil
}

func (r *stepResolver) VisitCompute(s *model.ComputeStep) error {
	r.out = &model.ComputeStep{As: s.As, Expr: r.expr(s.Expr)}
	return nil
}

func (r *stepResolver) VisitMapValue(s *model.MapValueStep) error {
	cp := *s
	cp.Field = r.path(s.Field)
	if s.As == "" && cp.Field != s.Field {
		cp.As = s.Target()
	}
	r.out = &cp
	return nil
}

func (r *stepResolver) VisitSort(s *model.SortStep) error {
	r.out = &model.SortStep{By: r.path(s.By), Order: s.Order}
	return nil
}

func (r *stepResolver) VisitGroupBy(s *model.GroupByStep) error {
	keys := make([]string, len(s.Keys))
	for i, k := range s.Keys {
		keys[i] = r.path(k)
	}
	r.out = &model.GroupByStep{Keys: keys}
	return nil
}

func (r *stepResolver) VisitAggregate(s *model.AggregateStep) error {
	metrics := make([]model.MetricSpec, len(s.Metrics))
	for i, m := range s.Metrics {
		metrics[i] = model.MetricSpec{As: m.As, Fn: m.Fn, Field: m.Field, Expr: m.Expr}
		if m.Field != "" {
			metrics[i].Field = r.path(m.Field)
			if m.As == "" && metrics[i].Field != m.Field {
				metrics[i].As = m.Name()
			}
		}
		if m.Expr != "" {
			metrics[i].Expr = r.expr(m.Expr)
		}
	}
	r.out = &model.AggregateStep{Metrics: metrics}
	return nil
}

func (r *stepResolver) VisitLimit(s *model.LimitStep) error {
	r.out = &model.LimitStep{N: s.N}
	return nil
}
