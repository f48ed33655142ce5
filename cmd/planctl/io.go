package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/internal/pipeline"
)

// readStructured reads a JSON or YAML file ("-" is stdin) and returns it as
// JSON.
func readStructured(path string) ([]byte, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if json.Valid(data) {
		return data, nil
	}
	var v interface{}
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%s is neither JSON nor YAML: %w", path, err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s cannot be represented as JSON: %w", path, err)
	}
	return out, nil
}

// readPlan reads plan IR from a JSON or YAML file.
func readPlan(path string) (*model.Plan, error) {
	data, err := readStructured(path)
	if err != nil {
		return nil, err
	}
	return model.ParsePlan(data)
}

// loadDocument reads a JSON or CSV document from a file or URL and returns
// its JSON encoding.
func loadDocument(ctx context.Context, pathOrURL string) (json.RawMessage, error) {
	ext := strings.ToLower(filepath.Ext(pathOrURL))
	if ext == ".yaml" || ext == ".yml" {
		return readStructured(pathOrURL)
	}
	root, err := pipeline.LoadDocument(ctx, pathOrURL)
	if err != nil {
		return nil, err
	}
	return model.EncodeDocument(root)
}

// printValue writes v to stdout as indented JSON or block YAML, keeping the
// key order of its JSON form.
func printValue(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	switch outputFormat {
	case "json":
		_, err = fmt.Fprintln(os.Stdout, string(data))
		return err
	case "yaml":
		out, err := jsonToYAML(data)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}
	return fmt.Errorf("unknown output format %q", outputFormat)
}

func jsonToYAML(data []byte) ([]byte, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	blockStyle(&node)
	return yaml.Marshal(&node)
}

// blockStyle clears the flow style yaml.v3 keeps for JSON input.
func blockStyle(n *yaml.Node) {
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}
