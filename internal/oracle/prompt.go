package oracle

import (
	"fmt"
	"strings"

	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/pkg/utils"
)

// maxPromptSample caps the sample text embedded in a prompt.
const maxPromptSample = 4000

// Input is everything the oracle is told about a request.
type Input struct {
	Goal        string
	SampleText  string
	RecordPath  string
	Candidates  []string
	FieldNames  []string
	FieldHints  []string
	Constraints model.Constraints
}

const systemPrompt = `You translate a data transformation goal into a plan for a JSON recordset.
Answer with one JSON object and nothing else:
{"plan": {"version":"1","source":{"recordPath":"<json pointer>"},"steps":[...]}, "rationale":"<one sentence>"}

Steps are applied in order. Field references are JSON pointers such as "/price".
Operators:
  {"op":"select","fields":[{"from":"/a","as":"optional_new_name"}]}
  {"op":"filter","where":<condition>}
  {"op":"compute","as":"name","expr":"/a * /b"}        one of + - * / between two fields or numbers
  {"op":"map_value","field":"/a","mapping":{"x":"y"},"default":"z"}
  {"op":"sort","by":"/a","order":"asc|desc"}
  {"op":"group_by","keys":["/a"]}
  {"op":"aggregate","metrics":[{"as":"total","fn":"sum|count|avg|min|max","field":"/b"}]}
  {"op":"limit","n":10}
Conditions: {"and":[...]}, {"or":[...]}, {"not":<condition>},
  {"op":"eq|neq|gt|gte|lt|lte|contains|in","left":"/a","right":<literal or "/field">}
Only these operators and functions exist. Keep field names unless the goal asks to rename them.`

// BuildPrompt renders the system and user prompts. feedback, when set,
// describes why the previous answer was rejected.
func BuildPrompt(in Input, feedback string) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", in.Goal)
	fmt.Fprintf(&b, "Discovered recordPath: %q\n", in.RecordPath)
	if len(in.Candidates) > 1 {
		fmt.Fprintf(&b, "Other candidate recordPaths: %s\n", strings.Join(in.Candidates, ", "))
	}
	if len(in.FieldNames) > 0 {
		fmt.Fprintf(&b, "Fields of the first record: %s\n", strings.Join(in.FieldNames, ", "))
	}
	if len(in.FieldHints) > 0 {
		fmt.Fprintf(&b, "Fields the user cares about: %s\n", strings.Join(in.FieldHints, ", "))
	}

	c := in.Constraints
	fmt.Fprintf(&b, "Constraints: transforms allowed=%t, network allowed=%t, code execution allowed=%t",
		c.AllowTransform, c.AllowNetwork, c.AllowCodeExecution)
	if c.MaxColumns > 0 {
		fmt.Fprintf(&b, ", at most %d output columns", c.MaxColumns)
	}
	b.WriteString("\n")
	if !c.AllowTransform {
		b.WriteString("Do not use compute, map_value, group_by or aggregate.\n")
	}

	fmt.Fprintf(&b, "Sample document:\n%s\n", utils.Truncate(in.SampleText, maxPromptSample))

	if feedback != "" {
		fmt.Fprintf(&b, "\nYour previous answer was rejected: %s\nReturn a corrected plan using only the listed operators.\n", feedback)
	}
	return systemPrompt, b.String()
}
