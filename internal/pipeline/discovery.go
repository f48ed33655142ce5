package pipeline

import (
	"errors"
	"sort"
	"strings"
	"unicode"

	"go-plan-pipeline/internal/model"
)

// Discovery failures. Both are wrapped in a not-found *model.Error.
var (
	ErrNoArrayFound   = errors.New("no array found in document")
	ErrNoObjectArrays = errors.New("arrays found but none contain objects")
)

const maxDiscoveryDepth = 3

// wellKnownRecordsets are property names that usually hold the rows.
var wellKnownRecordsets = map[string]struct{}{
	"items": {}, "results": {}, "data": {}, "records": {}, "rows": {},
	"entries": {}, "products": {}, "sales": {}, "orders": {}, "customers": {},
	"users": {}, "forecast": {}, "values": {}, "list": {}, "elements": {},
	"nodes": {},
}

// Candidate is one array found in the document.
type Candidate struct {
	Path        string `json:"path"`
	Length      int    `json:"length"`
	Depth       int    `json:"depth"`
	ObjectItems bool   `json:"objectItems"`
	Score       int    `json:"score"`

	order int
}

// Discovery ranks every candidate recordset; Best is the chosen one.
type Discovery struct {
	Best       Candidate   `json:"best"`
	Candidates []Candidate `json:"candidates"`
}

// Paths lists candidate paths in rank order.
func (d *Discovery) Paths() []string {
	out := make([]string, len(d.Candidates))
	for i, c := range d.Candidates {
		out[i] = c.Path
	}
	return out
}

// Discover scores every array reachable through object properties (up to
// three levels deep) and picks the most plausible recordset for goal.
func Discover(root interface{}, goal string) (*Discovery, error) {
	var candidates []Candidate
	switch node := root.(type) {
	case []interface{}:
		candidates = append(candidates, newCandidate("", node, 0, 0))
	case *model.Row:
		walkArrays(node, nil, 1, &candidates)
	}
	if len(candidates) == 0 {
		return nil, model.ErrNotFound(ErrNoArrayFound, "no recordset could be discovered")
	}

	tokens := goalTokens(goal)
	for i := range candidates {
		candidates[i].Score = scoreCandidate(candidates[i], tokens)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		return a.order < b.order
	})

	for _, c := range candidates {
		if c.ObjectItems {
			return &Discovery{Best: c, Candidates: candidates}, nil
		}
	}
	return nil, model.ErrNotFound(ErrNoObjectArrays, "no recordset could be discovered")
}

func walkArrays(obj *model.Row, prefix []string, level int, out *[]Candidate) {
	for _, key := range obj.Keys() {
		value, _ := obj.Get(key)
		segments := append(append([]string(nil), prefix...), key)
		switch node := value.(type) {
		case []interface{}:
			*out = append(*out, newCandidate(model.JoinPointer(segments...), node, level-1, len(*out)))
		case *model.Row:
			if level < maxDiscoveryDepth {
				walkArrays(node, segments, level+1, out)
			}
		}
	}
}

func newCandidate(path string, items []interface{}, depth, order int) Candidate {
	return Candidate{
		Path:        path,
		Length:      len(items),
		Depth:       depth,
		ObjectItems: leadingObjects(items),
		order:       order,
	}
}

// leadingObjects reports whether the first (up to three) elements are objects.
func leadingObjects(items []interface{}) bool {
	if len(items) == 0 {
		return false
	}
	n := len(items)
	if n > 3 {
		n = 3
	}
	for _, item := range items[:n] {
		if _, ok := item.(*model.Row); !ok {
			return false
		}
	}
	return true
}

func scoreCandidate(c Candidate, goalTokens []string) int {
	score := 10
	if c.Length > 20 {
		score += 20
	} else {
		score += c.Length
	}
	if c.Length >= 3 {
		score += 10
	}
	if c.ObjectItems {
		score += 50
	}
	name := strings.ToLower(model.FieldName(c.Path))
	if _, ok := wellKnownRecordsets[name]; ok {
		score += 30
	}
	score += goalMatch(name, goalTokens)
	score -= 5 * c.Depth
	return score
}

// goalMatch awards 25 when the property name is a goal word and 10 when the
// two merely overlap.
func goalMatch(name string, goalTokens []string) int {
	if name == "" {
		return 0
	}
	partial := false
	for _, tok := range goalTokens {
		if tok == name {
			return 25
		}
		if len(tok) >= 3 && len(name) >= 3 && (strings.Contains(name, tok) || strings.Contains(tok, name)) {
			partial = true
		}
	}
	if partial {
		return 10
	}
	return 0
}

func goalTokens(goal string) []string {
	return strings.FieldsFunc(strings.ToLower(goal), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
