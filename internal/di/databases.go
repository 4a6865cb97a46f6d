package di

import (
	"fmt"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens and migrates allocator.db (run history) and
// cache.db (model cache). The cache database trades durability for speed.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (db *database.DB, cache *database.DB, err error) {
	db, err = openDatabase(cfg.DatabasePath(), database.ProfileStandard, "allocator", log)
	if err != nil {
		return nil, nil, err
	}

	cache, err = openDatabase(cfg.CacheDatabasePath(), database.ProfileCache, "cache", log)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, cache, nil
}

func openDatabase(path string, profile database.DatabaseProfile, name string, log zerolog.Logger) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    path,
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s database: %w", name, err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s database: %w", name, err)
	}

	log.Info().Str("database", name).Str("profile", string(profile)).Str("path", db.Path()).Msg("Database initialized")
	return db, nil
}
