package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-plan-pipeline/internal/app"
	"go-plan-pipeline/internal/config"
	"go-plan-pipeline/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "planner-api",
	Short:        "Serve the plan generation API",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Serve(ctx); err != nil {
			logger.Error("server stopped", zap.Error(err))
			return err
		}
		return nil
	},
}

func main() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
