package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aristath/allocator/internal/clients/pricefiles"
	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/spf13/cobra"
)

func newCheckCommand(root *rootOptions) *cobra.Command {
	var pricesDir string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report price file coverage and the periods left after alignment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd, root)
			if err != nil {
				return exitError(cmd, err)
			}
			if pricesDir != "" {
				cfg.PricesDir = pricesDir
			}

			table, err := pricefiles.NewLoader(log).Load(cfg.PricesDir)
			if err != nil {
				return exitError(cmd, err)
			}
			if err := printCoverage(cmd.OutOrStdout(), table); err != nil {
				return exitError(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pricesDir, "prices", "", "directory of <ASSET>.csv price files (overrides PRICES_DIR)")
	return cmd
}

// printCoverage writes one line per asset and fails when too few aligned
// periods remain to estimate a covariance matrix.
func printCoverage(w io.Writer, table domain.PriceTable) error {
	coverage := pricefiles.Inspect(table)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Asset\tFrom\tTo\tPoints\tMissing")
	for _, c := range coverage {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n",
			c.Asset, c.Start.Format("2006-01-02"), c.End.Format("2006-01-02"), c.Points, c.Missing)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	aligned, err := optimization.AlignPrices(table)
	if err != nil {
		return err
	}
	periods := len(aligned.Dates) - 1
	if periods < 0 {
		periods = 0
	}
	fmt.Fprintf(w, "\n%d aligned dates, %d return periods\n", len(aligned.Dates), periods)
	if !pricefiles.Complete(coverage) {
		fmt.Fprintln(w, "Dates missing for some assets are dropped for all assets.")
	}
	if periods < 2 {
		return &domain.InsufficientDataError{Periods: periods}
	}
	return nil
}
