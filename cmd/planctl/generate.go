package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-plan-pipeline/internal/app"
	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/internal/pipeline"
)

var genFlags struct {
	goal        string
	sample      string
	request     string
	planFile    string
	mode        string
	hints       []string
	maxColumns  int
	noTransform bool
	export      string
	planOnly    bool
}

var generateCmd = &cobra.Command{
	Use:   "generate [goal]",
	Short: "Generate a plan for a goal and a sample document",
	Example: `  planctl generate "total amount by region" --sample orders.json
  planctl generate --request request.yaml -o yaml
  planctl generate "list name and price" --sample products.csv --export out.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genFlags.goal, "goal", "g", "", "natural-language goal")
	f.StringVarP(&genFlags.sample, "sample", "s", "", "sample document (JSON, YAML or CSV file, or URL)")
	f.StringVarP(&genFlags.request, "request", "r", "", "full request as a JSON or YAML file")
	f.StringVarP(&genFlags.planFile, "plan", "p", "", "explicit plan IR to validate and run")
	f.StringVarP(&genFlags.mode, "mode", "m", "", "auto, oracle, template or explicit")
	f.StringSliceVar(&genFlags.hints, "hint", nil, "field name hints")
	f.IntVar(&genFlags.maxColumns, "max-columns", 0, "maximum number of output columns (0 = unlimited)")
	f.BoolVar(&genFlags.noTransform, "no-transform", false, "forbid compute, map_value, group_by and aggregate")
	f.StringVar(&genFlags.export, "export", "", "write the example rows to a .csv or .json file")
	f.BoolVar(&genFlags.planOnly, "plan-only", false, "print only the plan")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	req, err := buildRequest(cmd, args)
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Planner.Generate(cmd.Context(), req)
	if err != nil {
		return err
	}
	logger.Debug("generation finished",
		zap.String("generation_id", resp.GenerationID),
		zap.String("path", string(resp.Metadata.Path)),
		zap.String("record_path", resp.Metadata.RecordPath))

	if genFlags.export != "" {
		res, err := pipeline.ExportRows(resp.ExampleRows, resp.Schema, genFlags.export)
		if err != nil {
			return err
		}
		logger.Info("rows exported", zap.String("path", res.Path), zap.Int("records", res.RecordCount))
	}
	if genFlags.planOnly {
		return printValue(resp.Plan)
	}
	return printValue(resp)
}

func buildRequest(cmd *cobra.Command, args []string) (*model.Request, error) {
	req := &model.Request{}
	if genFlags.request != "" {
		data, err := readStructured(genFlags.request)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, req); err != nil {
			return nil, fmt.Errorf("invalid request %s: %w", genFlags.request, err)
		}
	}

	switch {
	case len(args) == 1:
		req.Goal = args[0]
	case genFlags.goal != "":
		req.Goal = genFlags.goal
	}
	if genFlags.sample != "" {
		sample, err := loadDocument(cmd.Context(), genFlags.sample)
		if err != nil {
			return nil, err
		}
		req.Sample = sample
	}
	if genFlags.planFile != "" {
		plan, err := readPlan(genFlags.planFile)
		if err != nil {
			return nil, err
		}
		req.Plan = plan
	}
	if genFlags.mode != "" {
		req.Mode = model.Mode(strings.ToLower(genFlags.mode))
	}
	if len(genFlags.hints) > 0 {
		req.FieldHints = genFlags.hints
	}
	if cmd.Flags().Changed("max-columns") || genFlags.noTransform {
		c := req.EffectiveConstraints()
		if cmd.Flags().Changed("max-columns") {
			c.MaxColumns = genFlags.maxColumns
		}
		if genFlags.noTransform {
			c.AllowTransform = false
		}
		req.Constraints = &c
	}
	if len(req.Sample) == 0 {
		return nil, fmt.Errorf("a sample is required (--sample or --request)")
	}
	return req, nil
}
