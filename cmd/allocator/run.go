package main

import (
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/di"
	"github.com/aristath/allocator/internal/modules/runs"
	"github.com/aristath/allocator/internal/modules/scenarios"
	"github.com/aristath/allocator/internal/reporting"
	"github.com/spf13/cobra"
)

// runOptions override configuration for a single run.
type runOptions struct {
	PricesDir     string
	ScenariosFile string
	ReportsDir    string
	NoReports     bool
	NoCharts      bool
	Workers       int
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Solve every scenario once and print the comparison table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd, root)
			if err != nil {
				return exitError(cmd, err)
			}
			if err := opts.apply(cfg); err != nil {
				return exitError(cmd, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			container, _, err := di.Wire(ctx, cfg, log)
			if err != nil {
				return exitError(cmd, err)
			}
			defer container.Close()

			run, outcomes, err := container.RunService.Execute(ctx, runs.Request{Trigger: runs.TriggerCLI})
			if err != nil {
				return exitError(cmd, err)
			}

			return printRun(cmd.OutOrStdout(), run, outcomes, cfg.YearOfInterest)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.PricesDir, "prices", "", "directory of <ASSET>.csv price files (overrides PRICES_DIR)")
	f.StringVar(&opts.ScenariosFile, "scenarios", "", "scenario file (overrides SCENARIOS_FILE)")
	f.StringVar(&opts.ReportsDir, "reports", "", "report output directory (overrides REPORTS_DIR)")
	f.BoolVar(&opts.NoReports, "no-reports", false, "skip writing report files")
	f.BoolVar(&opts.NoCharts, "no-charts", false, "skip growth charts")
	f.IntVar(&opts.Workers, "workers", 0, "parallel scenarios (overrides WORKERS)")
	return cmd
}

func (o *runOptions) apply(cfg *config.Config) error {
	if o.PricesDir != "" {
		cfg.PricesDir = o.PricesDir
	}
	if o.ScenariosFile != "" {
		cfg.ScenariosFile = o.ScenariosFile
	}
	if o.ReportsDir != "" {
		cfg.ReportsDir = o.ReportsDir
	}
	if o.NoReports {
		cfg.ReportsDir = ""
	}
	if o.NoCharts {
		cfg.ChartsEnabled = false
	}
	if o.Workers > 0 {
		cfg.Workers = o.Workers
	}
	// Schedules only matter to serve.
	cfg.RunSchedule = ""
	return cfg.Validate()
}

// printRun writes the comparison table followed by any failed scenarios.
func printRun(w io.Writer, run *runs.Run, outcomes []scenarios.Outcome, yearOfInterest int) error {
	fmt.Fprintf(w, "Run %s: %d succeeded, %d failed\n\n", run.ID, run.Succeeded, run.Failed)

	rows := scenarios.SummaryRows(outcomes, yearOfInterest)
	if len(rows) > 0 {
		header, _ := reporting.SummaryHeader(rows, yearOfInterest)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(header, "\t"))
		for _, record := range reporting.SummaryRecords(rows, yearOfInterest) {
			fmt.Fprintln(tw, strings.Join(record, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(w, "\nScenario %q failed: %v\n", o.Scenario.Name, o.Err)
		}
		for _, d := range o.Constraints.Diagnostics {
			fmt.Fprintf(w, "Warning: %s\n", d)
		}
	}

	if run.ReportDir != "" {
		fmt.Fprintf(w, "\nReports written to %s\n", run.ReportDir)
	}
	return nil
}

