package runs

import "github.com/rs/zerolog"

// CacheCleanupJob removes expired return models from the cache.
type CacheCleanupJob struct {
	store *ModelCacheStore
	log   zerolog.Logger
}

// NewCacheCleanupJob creates a new model cache cleanup job.
func NewCacheCleanupJob(store *ModelCacheStore, log zerolog.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		store: store,
		log:   log.With().Str("job", "model_cache_cleanup").Logger(),
	}
}

// Run executes the cleanup job.
func (j *CacheCleanupJob) Run() error {
	deleted, err := j.store.DeleteExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired models")
		return err
	}
	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Msg("Cleaned up expired model cache entries")
	}
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CacheCleanupJob) Name() string {
	return "model_cache_cleanup"
}
