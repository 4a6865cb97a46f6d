// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/scenarios"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for the database and default paths (always absolute)
	PricesDir     string // Directory of <ASSET>.csv price files
	ScenariosFile string // Optional YAML/JSON scenario file
	ReportsDir    string // Where per-run report directories are written; empty disables reports
	LogLevel      string
	LogPretty     bool
	Port          int
	DevMode       bool

	PeriodsPerYear    int
	RiskFreeEnabled   bool
	RiskFreeRate      float64
	InitialInvestment float64
	YearOfInterest    int
	Workers           int
	SolverTimeout     time.Duration
	SolverMethod      string
	ChartsEnabled     bool

	RunSchedule          string        // cron spec; empty disables scheduled runs
	RunTimeout           time.Duration // bounds scheduled runs; 0 disables it
	ModelCacheTTL        time.Duration
	CacheCleanupSchedule string
	MaintenanceSchedule  string

	S3 *S3Config
}

// S3Config configures report publishing. Publishing is off without a bucket.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
}

// Enabled reports whether a bucket is configured.
func (c *S3Config) Enabled() bool {
	return c != nil && c.Bucket != ""
}

// Load reads configuration from the environment, after loading a .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("ALLOCATOR_DATA_DIR", "data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:       absDataDir,
		PricesDir:     resolve(absDataDir, getEnv("PRICES_DIR", "prices")),
		ScenariosFile: resolve(absDataDir, getEnv("SCENARIOS_FILE", "scenarios.yaml")),
		ReportsDir:    resolve(absDataDir, getEnv("REPORTS_DIR", "reports")),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPretty:     getEnvAsBool("LOG_PRETTY", false),
		Port:          getEnvAsInt("GO_PORT", 8001),
		DevMode:       getEnvAsBool("DEV_MODE", false),

		PeriodsPerYear:    getEnvAsInt("PERIODS_PER_YEAR", 12),
		RiskFreeEnabled:   getEnvAsBool("RISK_FREE_ENABLED", true),
		RiskFreeRate:      getEnvAsFloat("RISK_FREE_RATE", 0.04),
		InitialInvestment: getEnvAsFloat("INITIAL_INVESTMENT", 100000),
		YearOfInterest:    getEnvAsInt("YEAR_OF_INTEREST", 2008),
		Workers:           getEnvAsInt("WORKERS", 1),
		SolverTimeout:     getEnvAsDuration("SOLVER_TIMEOUT", 30*time.Second),
		SolverMethod:      getEnv("SOLVER_METHOD", optimization.MethodActiveSet),
		ChartsEnabled:     getEnvAsBool("CHARTS_ENABLED", true),

		RunSchedule:          getEnv("RUN_SCHEDULE", ""),
		RunTimeout:           getEnvAsDuration("RUN_TIMEOUT", 10*time.Minute),
		ModelCacheTTL:        getEnvAsDuration("MODEL_CACHE_TTL", 24*time.Hour),
		CacheCleanupSchedule: getEnv("CACHE_CLEANUP_SCHEDULE", "0 3 * * *"),
		MaintenanceSchedule:  getEnv("DB_MAINTENANCE_SCHEDULE", "@hourly"),

		S3: &S3Config{
			Bucket: getEnv("REPORT_S3_BUCKET", ""),
			Prefix: getEnv("REPORT_S3_PREFIX", "allocator"),
			Region: getEnv("AWS_REGION", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges and schedule syntax
func (c *Config) Validate() error {
	if c.PeriodsPerYear <= 0 {
		return fmt.Errorf("PERIODS_PER_YEAR must be positive, got %d", c.PeriodsPerYear)
	}
	if c.InitialInvestment <= 0 {
		return fmt.Errorf("INITIAL_INVESTMENT must be positive, got %v", c.InitialInvestment)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.SolverTimeout < 0 {
		return fmt.Errorf("SOLVER_TIMEOUT must not be negative")
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("RUN_TIMEOUT must not be negative")
	}
	if c.SolverMethod != optimization.MethodActiveSet && c.SolverMethod != optimization.MethodPenalty {
		return fmt.Errorf("SOLVER_METHOD must be %q or %q, got %q",
			optimization.MethodActiveSet, optimization.MethodPenalty, c.SolverMethod)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT out of range: %d", c.Port)
	}
	for name, spec := range map[string]string{
		"RUN_SCHEDULE":            c.RunSchedule,
		"CACHE_CLEANUP_SCHEDULE":  c.CacheCleanupSchedule,
		"DB_MAINTENANCE_SCHEDULE": c.MaintenanceSchedule,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, spec, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file path inside DataDir
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "allocator.db")
}

// CacheDatabasePath returns the model cache SQLite file path inside DataDir
func (c *Config) CacheDatabasePath() string {
	return filepath.Join(c.DataDir, "cache.db")
}

// ModelOptions converts the configuration into return model options
func (c *Config) ModelOptions() optimization.ModelOptions {
	return optimization.ModelOptions{
		PeriodsPerYear: c.PeriodsPerYear,
		RiskFree:       c.RiskFreeEnabled,
		RiskFreeRate:   c.RiskFreeRate,
	}
}

// RunnerConfig converts the configuration into scenario runner settings
func (c *Config) RunnerConfig() scenarios.Config {
	return scenarios.Config{
		Workers:           c.Workers,
		SolverTimeout:     c.SolverTimeout,
		InitialInvestment: c.InitialInvestment,
	}
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
