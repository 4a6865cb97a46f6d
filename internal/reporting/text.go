// Package reporting renders scenario outcomes as text reports, CSV
// summaries and growth charts, and publishes report directories.
package reporting

import (
	"fmt"
	"math"
	"strings"

	"github.com/aristath/allocator/internal/modules/scenarios"
)

const rule = "--------------------------------------------------"
const banner = "=================================================="

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// TextReport renders the summary report for a successful outcome.
func TextReport(o scenarios.Outcome) string {
	if !o.Succeeded() {
		return fmt.Sprintf("SCENARIO %s FAILED: %v\n", o.Scenario.Name, o.Err)
	}
	s := o.Summary

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\nSUMMARY REPORT FOR SCENARIO: %s\n%s\n\n", banner, o.Scenario.Name, banner)
	fmt.Fprintf(&b, "Optimal Portfolio for a Target Return of %s\n%s\n", percent(o.Scenario.TargetReturn), rule)
	for i, asset := range o.Result.Assets {
		fmt.Fprintf(&b, "  Allocation for %s: %s\n", asset, percent(math.Max(0, o.Result.Weights[i])))
	}
	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "Expected Annual Return: %s\n", percent(s.ExpectedReturn))
	fmt.Fprintf(&b, "Lowest Possible Annual Volatility: %s\n", percent(s.ExpectedVolatility))
	fmt.Fprintf(&b, "%s\n\n", rule)

	fmt.Fprintf(&b, "Statistical Projections (Forward-Looking)\n%s\n", rule)
	fmt.Fprintf(&b, "68%% Confidence Interval (1 Std. Dev.):\n")
	fmt.Fprintf(&b, "  The annual return is expected to be between %s and %s.\n\n",
		percent(s.Interval68.Lower), percent(s.Interval68.Upper))
	fmt.Fprintf(&b, "95%% Confidence Interval (2 Std. Dev.):\n")
	fmt.Fprintf(&b, "  The annual return is expected to be between %s and %s.\n\n",
		percent(s.Interval95.Lower), percent(s.Interval95.Upper))

	fmt.Fprintf(&b, "--- Historical Performance Analysis (Backward-Looking) ---\n\n")
	fmt.Fprintf(&b, "Portfolio Annual Returns:\n")
	fmt.Fprintf(&b, "      Annual Return\n")
	for _, ar := range s.AnnualReturns {
		fmt.Fprintf(&b, "%d %14s\n", ar.Year, percent(ar.Return))
	}
	fmt.Fprintf(&b, "\nMaximum Drawdown (since %d): %s\n", s.FirstYear, percent(s.MaxDrawdown))
	fmt.Fprintf(&b, "%s\n", rule)

	if len(o.Constraints.Diagnostics) > 0 {
		fmt.Fprintf(&b, "\nWarnings:\n")
		for _, d := range o.Constraints.Diagnostics {
			fmt.Fprintf(&b, "  - %s\n", d)
		}
	}

	return b.String()
}
