package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-plan-pipeline/internal/app"
	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/internal/pipeline"
)

var runFlags struct {
	planFile string
	document string
	export   string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a plan against a full document",
	Example: `  planctl run --plan plan.yaml --document orders.json
  planctl run --plan plan.json --document https://example.com/data.json --export rows.csv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := readPlan(runFlags.planFile)
		if err != nil {
			return err
		}
		doc, err := loadDocument(cmd.Context(), runFlags.document)
		if err != nil {
			return err
		}

		a, err := app.New(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Planner.Run(cmd.Context(), &model.ExecuteRequest{Plan: plan, Document: doc})
		if err != nil {
			return err
		}
		for _, w := range res.Warnings {
			logger.Warn(w)
		}
		if runFlags.export != "" {
			out, err := pipeline.ExportRows(res.Rows, res.Schema, runFlags.export)
			if err != nil {
				return err
			}
			logger.Info("rows exported", zap.String("path", out.Path), zap.Int("records", out.RecordCount))
			return nil
		}
		return printValue(res)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.planFile, "plan", "p", "", "plan IR as a JSON or YAML file")
	runCmd.Flags().StringVarP(&runFlags.document, "document", "d", "", "document (JSON, YAML or CSV file, or URL)")
	runCmd.Flags().StringVar(&runFlags.export, "export", "", "write the rows to a .csv or .json file instead of stdout")
	_ = runCmd.MarkFlagRequired("plan")
	_ = runCmd.MarkFlagRequired("document")
}
