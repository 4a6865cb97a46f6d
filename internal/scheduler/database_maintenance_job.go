package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/allocator/internal/database"
	"github.com/rs/zerolog"
)

// DefaultWALFrameLimit is the WAL size, in frames, above which the
// maintenance job truncates the log.
const DefaultWALFrameLimit = 1000

// DatabaseMaintenanceJob checks database integrity and keeps each WAL small
type DatabaseMaintenanceJob struct {
	dbs           []*database.DB
	walFrameLimit int
	log           zerolog.Logger
}

// NewDatabaseMaintenanceJob creates a new maintenance job
func NewDatabaseMaintenanceJob(dbs []*database.DB, walFrameLimit int, log zerolog.Logger) *DatabaseMaintenanceJob {
	if walFrameLimit <= 0 {
		walFrameLimit = DefaultWALFrameLimit
	}
	return &DatabaseMaintenanceJob{
		dbs:           dbs,
		walFrameLimit: walFrameLimit,
		log:           log.With().Str("job", "database_maintenance").Logger(),
	}
}

// Name returns the job name
func (j *DatabaseMaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run checks every database. A failing database does not stop the others.
func (j *DatabaseMaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var errs []error
	for _, db := range j.dbs {
		if err := j.maintain(ctx, db); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Database maintenance failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (j *DatabaseMaintenanceJob) maintain(ctx context.Context, db *database.DB) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s database failed integrity check: %w", db.Name(), err)
	}

	// PRAGMA wal_checkpoint returns: busy, log, checkpointed
	var busy, frames, checkpointed int
	err := db.Conn().QueryRowContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
	if err != nil {
		return fmt.Errorf("failed to check %s WAL checkpoint: %w", db.Name(), err)
	}

	log := j.log.With().Str("database", db.Name()).Logger()
	if frames > j.walFrameLimit {
		log.Warn().
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, truncating")
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			return fmt.Errorf("failed to truncate WAL: %w", err)
		}
		return nil
	}

	log.Debug().
		Int("wal_frames", frames).
		Msg("WAL checkpoint status OK")
	return nil
}
