package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-plan-pipeline/internal/config"
	"go-plan-pipeline/internal/logging"
)

var (
	configPath   string
	verbose      bool
	outputFormat string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "planctl",
	Short: "Generate and run data plans from natural-language goals",
	Long: `planctl turns a goal such as "total sales by region" and a sample JSON or CSV
document into a small, declarative data plan, runs it and prints the rows
and their schema.

Plans come from the configured oracle when one is enabled and from
deterministic templates otherwise.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		format := "console"
		if cmd.Name() == "serve" {
			format = cfg.Logging.Format
		}
		logger, err = logging.New(level, format)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "output format: json or yaml")

	rootCmd.AddCommand(generateCmd, runCmd, discoverCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
