package model

import (
	"encoding/json"
	"time"
)

// Generation status values.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// GenerationRecord is the persisted form of one generation request.
type GenerationRecord struct {
	ID        string          `json:"id"`
	Goal      string          `json:"goal"`
	Mode      Mode            `json:"mode"`
	Path      GenerationPath  `json:"path,omitempty"`
	Status    string          `json:"status"`
	PlanText  string          `json:"planText,omitempty"`
	Schema    json.RawMessage `json:"schema,omitempty" swaggertype:"object"`
	Metadata  json.RawMessage `json:"metadata,omitempty" swaggertype:"object"`
	Sample    json.RawMessage `json:"sample,omitempty" swaggertype:"object"`
	Warnings  []string        `json:"warnings,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ErrorDetail represents a recorded failure with context.
type ErrorDetail struct {
	ID           int64     `json:"id"`
	GenerationID string    `json:"generationId"`
	Kind         ErrorKind `json:"kind"`
	Category     string    `json:"category,omitempty"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}
