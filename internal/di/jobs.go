package di

import (
	"fmt"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/modules/runs"
	"github.com/aristath/allocator/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the scheduler and registers the background jobs.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	container.Scheduler = scheduler.New(log)
	instances := &JobInstances{}

	if cfg.CacheCleanupSchedule != "" {
		instances.CacheCleanup = runs.NewCacheCleanupJob(container.ModelCache, log)
		if err := container.Scheduler.AddJob(cfg.CacheCleanupSchedule, instances.CacheCleanup); err != nil {
			return nil, fmt.Errorf("failed to register cache cleanup job: %w", err)
		}
	}

	if cfg.MaintenanceSchedule != "" {
		instances.Maintenance = scheduler.NewDatabaseMaintenanceJob(container.Databases(), scheduler.DefaultWALFrameLimit, log)
		if err := container.Scheduler.AddJob(cfg.MaintenanceSchedule, instances.Maintenance); err != nil {
			return nil, fmt.Errorf("failed to register database maintenance job: %w", err)
		}
	}

	if cfg.RunSchedule != "" {
		instances.RunScenarios = scheduler.NewRunScenariosJob(container.RunService, cfg.RunTimeout, log)
		if err := container.Scheduler.AddJob(cfg.RunSchedule, instances.RunScenarios); err != nil {
			return nil, fmt.Errorf("failed to register scheduled run job: %w", err)
		}
	}

	return instances, nil
}
