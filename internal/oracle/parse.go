package oracle

import (
	"encoding/json"
	"strings"

	"go-plan-pipeline/internal/model"
)

// DSLProfile is the profile name of plan IR carried in a "dsl" envelope.
const DSLProfile = "plan-ir"

// Envelope is the decoded oracle response. The plan arrives as "plan", as a
// bare plan object, or as text inside {"dsl":{"profile","text"}}.
type Envelope struct {
	Plan      json.RawMessage `json:"plan,omitempty"`
	DSL       *DSL            `json:"dsl,omitempty"`
	Rationale string          `json:"rationale,omitempty"`
	Schema    json.RawMessage `json:"schema,omitempty"`

	bare json.RawMessage
}

// DSL is an expression-language payload.
type DSL struct {
	Profile string          `json:"profile"`
	Text    json.RawMessage `json:"text"`
}

// TextString returns the DSL text, unquoting it when it is a JSON string.
func (d *DSL) TextString() string {
	var s string
	if err := json.Unmarshal(d.Text, &s); err == nil {
		return s
	}
	return string(d.Text)
}

// ParseEnvelope runs the parsing cascade over a raw response: the text as
// is, then with code fences stripped, then the slice from the first '{' to
// the last '}'. Each candidate is repaired before decoding.
func ParseEnvelope(text string) (*Envelope, error) {
	var lastErr error
	for _, candidate := range parseCandidates(text) {
		repaired := Repair(candidate)
		if !json.Valid([]byte(repaired)) {
			continue
		}
		env, err := decodeEnvelope([]byte(repaired))
		if err != nil {
			lastErr = err
			continue
		}
		return env, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, newError(CategoryMalformed, nil, "response not parseable")
}

func parseCandidates(text string) []string {
	text = strings.TrimSpace(text)
	out := []string{text}
	if stripped := stripFences(text); stripped != text {
		out = append(out, stripped)
	}
	if start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}'); start >= 0 && end > start {
		if slice := text[start : end+1]; slice != text {
			out = append(out, slice)
		}
	}
	return out
}

// stripFences removes markdown code fence lines such as ```json and ```.
func stripFences(text string) string {
	if !strings.Contains(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func decodeEnvelope(data []byte) (*Envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newError(CategoryContract, err, "response is not a JSON object")
	}
	env := &Envelope{Plan: raw["plan"], Schema: raw["schema"]}
	if r, ok := raw["rationale"]; ok {
		if err := json.Unmarshal(r, &env.Rationale); err != nil {
			env.Rationale = string(r)
		}
	}
	if d, ok := raw["dsl"]; ok {
		var dsl DSL
		if err := json.Unmarshal(d, &dsl); err != nil {
			return nil, newError(CategoryContract, err, "dsl must be an object with profile and text")
		}
		env.DSL = &dsl
	}
	if _, ok := raw["steps"]; ok {
		env.bare = json.RawMessage(data)
	}
	return env, nil
}

// PlanJSON returns the plan payload of the envelope.
func (e *Envelope) PlanJSON() (json.RawMessage, error) {
	switch {
	case len(e.Plan) > 0 && string(e.Plan) != "null":
		return e.Plan, nil
	case e.DSL != nil:
		if e.DSL.Profile != "" && e.DSL.Profile != DSLProfile {
			return nil, newError(CategoryContract, nil, "unsupported dsl profile %q (want %q)", e.DSL.Profile, DSLProfile)
		}
		text := Repair(e.DSL.TextString())
		if !json.Valid([]byte(text)) {
			return nil, newError(CategoryMalformed, nil, "dsl text is not valid plan JSON")
		}
		return json.RawMessage(text), nil
	case len(e.bare) > 0:
		return e.bare, nil
	}
	return nil, newError(CategoryContract, nil, "response is missing required field \"plan\"")
}

// DecodePlan extracts and decodes the plan carried by the envelope.
func (e *Envelope) DecodePlan() (*model.Plan, error) {
	data, err := e.PlanJSON()
	if err != nil {
		return nil, err
	}
	plan, err := model.ParsePlan(data)
	if err != nil {
		return nil, newError(CategoryContract, err, "plan violates the IR contract")
	}
	return plan, nil
}
