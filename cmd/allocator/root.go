package main

import (
	"fmt"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions holds global CLI flags.
type rootOptions struct {
	LogLevel string
	Pretty   bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "allocator",
		Short:         "Minimum-variance portfolio allocator",
		Long:          "allocator finds the lowest-volatility long-only portfolio that reaches a target\nannual return, for every scenario in a scenario file, over a directory of price CSVs.",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	pf.BoolVar(&opts.Pretty, "pretty", false, "human-readable log output")

	cmd.AddCommand(
		newRunCommand(opts),
		newServeCommand(opts),
		newCheckCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// setup loads configuration and builds the logger. Logs go to stderr so
// stdout stays free for tables.
func setup(cmd *cobra.Command, opts *rootOptions) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: opts.Pretty || cfg.LogPretty,
		Output: cmd.ErrOrStderr(),
	})
	logger.SetGlobalLogger(log)
	return cfg, log, nil
}

func exitError(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	return err
}
