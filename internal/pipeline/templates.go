package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/pkg/utils"
)

// Template names reported in response metadata.
const (
	TemplateGroupAggregate = "group_aggregate"
	TemplateNamedSelect    = "named_select"
	TemplateSelectAll      = "select_all"
)

// Keyword tables, folded (lower case, no accents). English, Portuguese and
// Spanish spellings.
var (
	aggregateKeywords = wordSet("sum", "total", "totals", "group", "grouped", "grouping", "count", "average", "avg", "mean",
		"soma", "somar", "somatorio", "agrupar", "agrupe", "agrupado", "agrupada", "contar", "contagem", "media",
		"suma", "sumar", "agrupa", "agrupados", "promedio", "cuenta", "totalizar")
	sumKeywords     = wordSet("sum", "total", "totals", "soma", "somar", "somatorio", "suma", "sumar", "totalizar")
	averageKeywords = wordSet("average", "avg", "mean", "media", "promedio")
	descKeywords    = wordSet("desc", "descending", "decrescente", "descendente", "highest", "largest", "biggest",
		"maior", "maiores", "mayor", "mayores", "top")

	categoryHints = []string{"category", "categoria", "categorie", "type", "tipo", "group", "grupo", "class", "classe",
		"segment", "segmento", "region", "regiao", "department", "departamento", "brand", "marca", "kind", "status",
		"city", "cidade", "ciudad", "country", "pais", "store", "loja", "tienda"}
	quantityHints = []string{"qty", "quantity", "quantidade", "cantidad", "amount", "total", "price", "preco", "precio",
		"valor", "value", "sales", "vendas", "ventas", "revenue", "receita", "ingresos", "cost", "custo", "costo",
		"score", "units", "unidades", "weight", "peso", "temperature", "temperatura"}

	sortPattern  = regexp.MustCompile(`(?:sort|sorted|order|ordered|ordenar|ordene|ordenado|ordenada|ordena|classificar|classifique)\s+(?:by|por|pelo|pela|pelos|pelas)\s+([\p{L}\p{N}_\-]+)`)
	limitPattern = regexp.MustCompile(`(?:top|first|limit|primeiros|primeiras|primeros|primeras|limite|limitar|limita)\s+(\d+)`)
)

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// TemplateInput is what the oracle-free generators see.
type TemplateInput struct {
	Goal       string
	Sample     *model.Row
	RecordPath string
	FieldHints []string
	// Constraints limit the generated plan; nil means the defaults.
	Constraints *model.Constraints
}

// TemplateResult is a deterministic plan plus the template that built it.
type TemplateResult struct {
	Name      string
	Plan      *model.Plan
	Rationale string
	Warnings  []string
}

// HasTemplateKeywords reports whether goal asks for something the templates
// handle beyond a plain projection.
func HasTemplateKeywords(goal string) bool {
	folded := foldName(goal)
	if anyWord(goalTokens(folded), aggregateKeywords) {
		return true
	}
	return sortPattern.MatchString(folded) || limitPattern.MatchString(folded)
}

// GenerateTemplate builds a plan without the oracle. Templates are tried in
// specificity order and the first structural match wins; select-all always
// matches.
func GenerateTemplate(in TemplateInput) *TemplateResult {
	folded := foldName(in.Goal)
	tokens := goalTokens(folded)
	constraints := model.DefaultConstraints()
	if in.Constraints != nil {
		constraints = *in.Constraints
	}

	var res *TemplateResult
	var outputs []string
	if constraints.AllowTransform {
		res, outputs = groupAggregateTemplate(tokens, in.Sample)
		if res != nil && constraints.MaxColumns > 0 && len(outputs) > constraints.MaxColumns {
			res, outputs = nil, nil
		}
	}
	if res == nil {
		res, outputs = namedSelectTemplate(folded, in.Sample, in.FieldHints)
	}
	if res == nil {
		res, outputs = selectAllTemplate(in.Sample)
	}
	if max := constraints.MaxColumns; max > 0 && len(outputs) > max {
		res.Warnings = append(res.Warnings, fmt.Sprintf("selected %d of %d fields to honor maxColumns", max, len(outputs)))
		outputs = outputs[:max]
		res.Plan = model.NewPlan("", selectStep(outputs))
	}

	steps := append([]model.Step(nil), res.Plan.Steps...)
	var notes []string
	if step := sortModifier(folded, tokens, outputs); step != nil {
		steps = append(steps, step)
		notes = append(notes, fmt.Sprintf("sorted by %s %s", model.FieldName(step.By), orderName(step)))
	}
	if step := limitModifier(folded); step != nil {
		steps = append(steps, step)
		notes = append(notes, fmt.Sprintf("limited to %d rows", step.N))
	}
	if len(notes) > 0 {
		res.Rationale += "; " + strings.Join(notes, "; ")
	}
	res.Plan = model.NewPlan(in.RecordPath, steps...)
	return res
}

// groupAggregateTemplate fires on aggregation keywords when the sample has a
// string field to group by.
func groupAggregateTemplate(tokens []string, sample *model.Row) (*TemplateResult, []string) {
	if sample == nil || !anyWord(tokens, aggregateKeywords) {
		return nil, nil
	}
	keys := sample.Keys()

	groupKey := ""
	for _, k := range keys {
		if v, _ := sample.Get(k); isString(v) && containsWord(tokens, foldName(k)) {
			groupKey = k
			break
		}
	}
	if groupKey == "" {
		groupKey = firstHinted(sample, categoryHints, isString, "")
	}
	if groupKey == "" {
		for _, k := range keys {
			if v, _ := sample.Get(k); isString(v) {
				groupKey = k
				break
			}
		}
	}
	if groupKey == "" {
		return nil, nil
	}

	numeric := firstHinted(sample, quantityHints, utils.IsNumeric, groupKey)
	if numeric == "" {
		for _, k := range keys {
			if v, _ := sample.Get(k); k != groupKey && utils.IsNumeric(v) {
				numeric = k
				break
			}
		}
	}

	metrics := []model.MetricSpec{{As: "count", Fn: model.MetricCount}}
	if numeric != "" {
		field := model.JoinPointer(numeric)
		if anyWord(tokens, sumKeywords) {
			metrics = append(metrics, model.MetricSpec{As: "sum_" + numeric, Fn: model.MetricSum, Field: field})
		}
		if anyWord(tokens, averageKeywords) {
			metrics = append(metrics, model.MetricSpec{As: "avg_" + numeric, Fn: model.MetricAvg, Field: field})
		}
	}

	outputs := []string{groupKey}
	names := make([]string, len(metrics))
	for i, m := range metrics {
		outputs = append(outputs, m.Name())
		names[i] = m.Name()
	}
	return &TemplateResult{
		Name: TemplateGroupAggregate,
		Plan: model.NewPlan("",
			&model.GroupByStep{Keys: []string{model.JoinPointer(groupKey)}},
			&model.AggregateStep{Metrics: metrics},
		),
		Rationale: fmt.Sprintf("template %s: grouped by %s with %s", TemplateGroupAggregate, groupKey, strings.Join(names, ", ")),
	}, outputs
}

// namedSelectTemplate selects the fields named by hints, or the sample
// fields mentioned in the goal when at least two are.
func namedSelectTemplate(foldedGoal string, sample *model.Row, hints []string) (*TemplateResult, []string) {
	if sample == nil {
		return nil, nil
	}
	var picked []string
	if len(hints) > 0 {
		seen := make(map[string]struct{})
		for _, h := range hints {
			res := Resolve(h, sample)
			name := model.FieldName(res.Path)
			if !sample.Has(name) {
				continue
			}
			if _, dup := seen[name]; !dup {
				seen[name] = struct{}{}
				picked = append(picked, name)
			}
		}
		if len(picked) == 0 {
			return nil, nil
		}
	} else {
		for _, k := range sample.Keys() {
			f := foldName(k)
			if len([]rune(f)) >= 2 && strings.Contains(foldedGoal, f) {
				picked = append(picked, k)
			}
		}
		if len(picked) < 2 {
			return nil, nil
		}
	}
	return &TemplateResult{
		Name:      TemplateNamedSelect,
		Plan:      model.NewPlan("", selectStep(picked)),
		Rationale: fmt.Sprintf("template %s: selected %s", TemplateNamedSelect, strings.Join(picked, ", ")),
	}, picked
}

// selectAllTemplate keeps every scalar field under its original name.
func selectAllTemplate(sample *model.Row) (*TemplateResult, []string) {
	if sample == nil || sample.Len() == 0 {
		return &TemplateResult{
			Name:      TemplateSelectAll,
			Plan:      model.NewPlan(""),
			Rationale: fmt.Sprintf("template %s: empty sample, rows passed through", TemplateSelectAll),
		}, nil
	}
	var picked []string
	for _, k := range sample.Keys() {
		v, _ := sample.Get(k)
		switch v.(type) {
		case []interface{}, *model.Row:
			continue
		}
		picked = append(picked, k)
	}
	if len(picked) == 0 {
		picked = sample.Keys()
	}
	return &TemplateResult{
		Name:      TemplateSelectAll,
		Plan:      model.NewPlan("", selectStep(picked)),
		Rationale: fmt.Sprintf("template %s: selected every scalar field (%d)", TemplateSelectAll, len(picked)),
	}, picked
}

func selectStep(keys []string) *model.SelectStep {
	fields := make([]model.SelectField, len(keys))
	for i, k := range keys {
		fields[i] = model.SelectField{From: model.JoinPointer(k)}
	}
	return &model.SelectStep{Fields: fields}
}

// sortModifier appends a Sort when the goal says "sort/order by <field>"
// and the field is one of the template's output keys.
func sortModifier(foldedGoal string, tokens []string, outputs []string) *model.SortStep {
	m := sortPattern.FindStringSubmatch(foldedGoal)
	if m == nil || len(outputs) == 0 {
		return nil
	}
	shape := model.NewRow(len(outputs))
	for _, k := range outputs {
		shape.Set(k, nil)
	}
	want := m[1]
	key := ""
	if shape.Has(want) {
		key = want
	} else if k, ok := matchKey(want, shape); ok {
		key = k
	} else {
		for _, k := range outputs {
			if strings.HasSuffix(foldName(k), "_"+want) {
				key = k
				break
			}
		}
	}
	if key == "" {
		return nil
	}
	step := &model.SortStep{By: model.JoinPointer(key)}
	if anyWord(tokens, descKeywords) {
		step.Order = "desc"
	}
	return step
}

func limitModifier(foldedGoal string) *model.LimitStep {
	m := limitPattern.FindStringSubmatch(foldedGoal)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return nil
	}
	return &model.LimitStep{N: n}
}

func orderName(s *model.SortStep) string {
	if s.Descending() {
		return "desc"
	}
	return "asc"
}

// firstHinted returns the first sample key whose folded name contains one of
// hints and whose value satisfies accept.
func firstHinted(sample *model.Row, hints []string, accept func(interface{}) bool, skip string) string {
	for _, k := range sample.Keys() {
		if k == skip {
			continue
		}
		v, _ := sample.Get(k)
		if !accept(v) {
			continue
		}
		f := foldName(k)
		for _, h := range hints {
			if strings.Contains(f, h) {
				return k
			}
		}
	}
	return ""
}

func isString(v interface{}) bool {
	_, ok := v.(string)
	return ok
}

func anyWord(tokens []string, set map[string]struct{}) bool {
	for _, t := range tokens {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

func containsWord(tokens []string, word string) bool {
	for _, t := range tokens {
		if t == word {
			return true
		}
	}
	return false
}
