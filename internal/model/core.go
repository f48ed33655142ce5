package model

import "encoding/json"

// Mode selects how a plan is generated.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeOracle   Mode = "oracle"
	ModeTemplate Mode = "template"
	ModeExplicit Mode = "explicit"
)

// GenerationPath records which generator produced the returned plan.
type GenerationPath string

const (
	PathOracle   GenerationPath = "oracle"
	PathTemplate GenerationPath = "template"
	PathExplicit GenerationPath = "explicit"
)

// Constraints limit what a generated plan may do.
type Constraints struct {
	MaxColumns         int  `json:"maxColumns,omitempty"` // 0 = unlimited
	AllowTransform     bool `json:"allowTransform"`
	AllowNetwork       bool `json:"allowNetwork"`
	AllowCodeExecution bool `json:"allowCodeExecution"`
}

// DefaultConstraints allows value-producing steps and no network or code.
func DefaultConstraints() Constraints {
	return Constraints{AllowTransform: true}
}

// Request is the POST /api/v1/plans body and the planner's input.
type Request struct {
	Goal        string          `json:"goal"`
	Sample      json.RawMessage `json:"sample" swaggertype:"object"`
	Constraints *Constraints    `json:"constraints,omitempty"`
	Plan        *Plan           `json:"plan,omitempty" swaggertype:"object"`
	FieldHints  []string        `json:"fieldHints,omitempty"`
	Mode        Mode            `json:"mode,omitempty"`
}

// EffectiveConstraints returns the request constraints or the defaults.
func (r *Request) EffectiveConstraints() Constraints {
	if r.Constraints == nil {
		return DefaultConstraints()
	}
	return *r.Constraints
}

// Metadata describes how a response was produced.
type Metadata struct {
	Path            GenerationPath `json:"path"`
	Template        string         `json:"template,omitempty"`
	OracleLatencyMs int64          `json:"oracleLatencyMs,omitempty"`
	OracleAttempts  int            `json:"oracleAttempts,omitempty"`
	FallbackReason  string         `json:"fallbackReason,omitempty"`
	RecordPath      string         `json:"recordPath"`
	Candidates      []string       `json:"candidates,omitempty"`
	CacheHit        bool           `json:"cacheHit,omitempty"`
	Constraints     Constraints    `json:"constraints"`
}

// Response is returned for every successful generation.
type Response struct {
	GenerationID   string          `json:"generationId,omitempty"`
	PlanText       string          `json:"planText"`
	Plan           *Plan           `json:"plan" swaggertype:"object"`
	OriginalPlan   *Plan           `json:"originalPlan,omitempty" swaggertype:"object"`
	Schema         *Schema         `json:"schema" swaggertype:"object"`
	DeclaredSchema json.RawMessage `json:"declaredSchema,omitempty" swaggertype:"object"`
	ExampleRows    []*Row          `json:"exampleRows" swaggertype:"array,object"`
	Rationale      string          `json:"rationale"`
	Warnings       []string        `json:"warnings"`
	Metadata       Metadata        `json:"metadata"`
}

// ExecuteRequest is the POST /api/v1/plans/execute body.
type ExecuteRequest struct {
	Plan     *Plan           `json:"plan" swaggertype:"object"`
	Document json.RawMessage `json:"document" swaggertype:"object"`
}

// ExecuteResponse carries the full result of running a plan on a document.
type ExecuteResponse struct {
	Rows     []*Row   `json:"rows" swaggertype:"array,object"`
	Schema   *Schema  `json:"schema" swaggertype:"object"`
	Warnings []string `json:"warnings"`
}
