// Package di provides dependency injection wiring and initialization.
package di

import (
	"errors"
	"fmt"

	"github.com/aristath/allocator/internal/clients/pricefiles"
	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/events"
	"github.com/aristath/allocator/internal/metrics"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/runs"
	"github.com/aristath/allocator/internal/reporting"
	"github.com/aristath/allocator/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
)

// Container holds all dependencies for the application.
//
// It is created by Wire and handed to the CLI commands and the HTTP server.
type Container struct {
	Config *config.Config

	// Databases
	DB      *database.DB // run history
	CacheDB *database.DB // model cache, ProfileCache

	// Observability
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	EventBus *events.Bus

	// Core
	Loader  *pricefiles.Loader
	Builder *optimization.ReturnModelBuilder
	Solver  optimization.Solver

	// Runs
	RunRepo    *runs.Repository
	ModelCache *runs.ModelCacheStore
	Reports    *reporting.Writer
	Publisher  *reporting.S3Publisher // nil unless a bucket is configured
	RunService *runs.Service

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered background jobs
type JobInstances struct {
	RunScenarios *scheduler.RunScenariosJob // nil unless RUN_SCHEDULE is set
	CacheCleanup *runs.CacheCleanupJob
	Maintenance  *scheduler.DatabaseMaintenanceJob
}

// Databases returns the open databases
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.DB, c.CacheDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close releases the container's resources
func (c *Container) Close() error {
	var errs []error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s database: %w", db.Name(), err))
		}
	}
	return errors.Join(errs...)
}
