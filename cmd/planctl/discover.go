package main

import (
	"github.com/spf13/cobra"

	"go-plan-pipeline/internal/model"
	"go-plan-pipeline/internal/pipeline"
)

var discoverGoal string

var discoverCmd = &cobra.Command{
	Use:   "discover <document>",
	Short: "Rank the candidate recordsets of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := loadDocument(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		root, err := model.DecodeDocument(data)
		if err != nil {
			return err
		}
		disc, err := pipeline.Discover(root, discoverGoal)
		if err != nil {
			return err
		}
		return printValue(disc)
	},
}

func init() {
	discoverCmd.Flags().StringVarP(&discoverGoal, "goal", "g", "", "goal used to rank candidates")
}
