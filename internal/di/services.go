package di

import (
	"context"
	"fmt"

	"github.com/aristath/allocator/internal/clients/pricefiles"
	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/events"
	"github.com/aristath/allocator/internal/metrics"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/runs"
	"github.com/aristath/allocator/internal/reporting"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// InitializeServices creates the metrics registry, the event bus and every
// service a run needs, on top of the initialized databases.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Registry = prometheus.NewRegistry()
	container.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(container.Registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	container.Metrics = m
	container.EventBus = events.NewBus(log)

	container.Loader = pricefiles.NewLoader(log)

	container.ModelCache = runs.NewModelCacheStore(container.CacheDB.Conn(), cfg.ModelCacheTTL, m, log)
	container.Builder = optimization.NewReturnModelBuilder(log)
	container.Builder.SetCache(container.ModelCache)

	solver, err := optimization.NewSolver(cfg.SolverMethod, log)
	if err != nil {
		return err
	}
	container.Solver = solver

	container.RunRepo = runs.NewRepository(container.DB.Conn())
	container.Reports = reporting.NewWriter(cfg.ChartsEnabled, cfg.YearOfInterest, log)

	if cfg.S3.Enabled() {
		publisher, err := reporting.NewS3Publisher(ctx, cfg.S3.Bucket, cfg.S3.Region, log)
		if err != nil {
			return fmt.Errorf("failed to create S3 publisher: %w", err)
		}
		container.Publisher = publisher
	}

	service := runs.NewService(RunOptions(cfg), container.Loader, container.Builder, container.Solver, log)
	service.SetStore(container.RunRepo)
	service.SetReportWriter(container.Reports)
	if container.Publisher != nil {
		service.SetPublisher(container.Publisher)
	}
	service.SetEventBus(container.EventBus)
	service.SetMetrics(m)
	container.RunService = service

	log.Info().
		Str("solver", cfg.SolverMethod).
		Bool("s3", container.Publisher != nil).
		Msg("Services initialized")
	return nil
}

// RunOptions maps configuration onto run service options
func RunOptions(cfg *config.Config) runs.Options {
	opts := runs.Options{
		PricesDir:     cfg.PricesDir,
		ScenariosFile: cfg.ScenariosFile,
		ReportsDir:    cfg.ReportsDir,
		Model:         cfg.ModelOptions(),
		Runner:        cfg.RunnerConfig(),
	}
	if cfg.S3 != nil {
		opts.PublishPrefix = cfg.S3.Prefix
	}
	return opts
}
