package app

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"go-plan-pipeline/internal/api"
	"go-plan-pipeline/internal/api/handler"
	"go-plan-pipeline/internal/cache"
	"go-plan-pipeline/internal/config"
	"go-plan-pipeline/internal/metrics"
	"go-plan-pipeline/internal/oracle"
	"go-plan-pipeline/internal/pipeline"
	"go-plan-pipeline/internal/store"
	"go-plan-pipeline/pkg/router"
	"go-plan-pipeline/pkg/utils"
)

// App holds the wired components of a planner process.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Planner *pipeline.Planner
	Store   *store.Store
	Outputs *utils.OutputManager
}

// New wires the oracle, the plan cache and the planner from cfg. withStore
// also opens the generation store.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, withStore bool) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Outputs: utils.NewOutputManager(cfg.Output.Dir),
	}

	generator, err := NewGenerator(ctx, cfg.Oracle, logger)
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{
		Generator:      generator,
		Cache:          cache.New(),
		Logger:         logger,
		MaxGoalLength:  cfg.Limits.MaxGoalLength,
		MaxSampleBytes: cfg.Limits.MaxSampleBytes,
		MaxExampleRows: cfg.Limits.MaxExampleRows,
	}
	if withStore {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		a.Store = st
		opts.Recorder = st
	}
	a.Planner = pipeline.NewPlanner(opts)
	return a, nil
}

// NewGenerator builds the oracle generator. A disabled oracle yields a
// generator without transport, which routes every request to the templates.
func NewGenerator(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (*oracle.Generator, error) {
	genCfg := oracle.Config{
		Timeout:           cfg.Timeout,
		ContentRetries:    cfg.ContentRetries,
		TransportRetries:  cfg.TransportRetries,
		BackoffBase:       cfg.BackoffBase,
		BackoffMax:        cfg.BackoffMax,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
	if !cfg.Enabled {
		logger.Info("oracle disabled, template generation only")
		return oracle.NewGenerator(nil, genCfg, logger), nil
	}
	transport, err := oracle.NewGenAITransport(ctx, oracle.GenAIConfig{
		Endpoint:  cfg.Endpoint,
		Model:     cfg.Model,
		APIKeyEnv: cfg.APIKeyEnv,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("oracle enabled", zap.String("transport", transport.Name()))
	return oracle.NewGenerator(transport, genCfg, logger), nil
}

// Router builds the HTTP router with every API route registered.
func (a *App) Router() *router.Router {
	r := router.New(
		router.WithLogger(a.Logger),
		router.WithRateLimit(a.Config.Server.RequestsPerSecond, a.Config.Server.Burst),
		router.WithObserver(func(method string, status int, _ time.Duration) {
			metrics.IncHTTPRequest(method, strconv.Itoa(status))
		}),
	)
	var gens handler.GenerationStore
	if a.Store != nil {
		gens = a.Store
	}
	api.RegisterRoutes(r, handler.New(a.Planner, gens, a.Outputs, a.Logger))
	return r
}

// Serve runs the API server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Outputs.EnsureOutputDirExists(); err != nil {
		return err
	}
	return a.Router().Start(ctx, a.Config.Server.Addr)
}

// Close releases the store.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
