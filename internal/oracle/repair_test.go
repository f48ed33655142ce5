package oracle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepair(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid json untouched", `{"a": [1, 2]}`, `{"a": [1, 2]}`},
		{"excess closing brace", `{"dsl":{"profile":"x","text":"abc"}}}`, `{"dsl":{"profile":"x","text":"abc"}}`},
		{"missing closers", `{"plan":{"steps":[{"op":"limit","n":1}`, `{"plan":{"steps":[{"op":"limit","n":1}]}}`},
		{"single quotes", `{'op': 'limit', 'n': 1}`, `{"op": "limit", "n": 1}`},
		{"equals separators", `{"op"="limit","n"=>1}`, `{"op":"limit","n":1}`},
		{"trailing commas", `{"a":[1,2,],}`, `{"a":[1,2]}`},
		{"runaway quotes", `{"a":"""b"""}`, `{"a":"b"}`},
		{"unterminated string", `{"a":"b`, `{"a":"b"}`},
		{"mismatched closer", `{"a":[1,2}`, `{"a":[1,2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Repair(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, json.Valid([]byte(got)), "repaired text is not valid JSON: %s", got)
		})
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	inputs := []string{
		`{"dsl":{"profile":"x","text":"abc"}}}`,
		`{'a': 'b',}`,
		`[1, 2`,
		`{"a"=1`,
	}
	for _, in := range inputs {
		once := Repair(in)
		assert.Equal(t, once, Repair(once), "input %s", in)
	}
}
