package reporting

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/aristath/allocator/internal/modules/scenarios"
)

// SummaryHeader returns the comparison table columns for the given rows.
// Allocation columns follow the order assets first appear in.
func SummaryHeader(rows []scenarios.SummaryRow, yearOfInterest int) ([]string, []string) {
	assets := make([]string, 0)
	seen := make(map[string]bool)
	for _, row := range rows {
		for _, a := range row.Allocations {
			if !seen[a.Asset] {
				seen[a.Asset] = true
				assets = append(assets, a.Asset)
			}
		}
	}

	header := []string{"Scenario", "Target Return", "Volatility (Std Dev)"}
	for _, asset := range assets {
		header = append(header, "Allocation: "+asset)
	}
	header = append(header, "Max Drawdown", fmt.Sprintf("%d Return", yearOfInterest), "95% Lower Bound", "95% Upper Bound")
	return header, assets
}

// SummaryRecords formats rows as percentage strings under SummaryHeader.
func SummaryRecords(rows []scenarios.SummaryRow, yearOfInterest int) [][]string {
	header, assets := SummaryHeader(rows, yearOfInterest)
	records := [][]string{header}
	for _, row := range rows {
		weights := make(map[string]float64, len(row.Allocations))
		for _, a := range row.Allocations {
			weights[a.Asset] = a.Weight
		}

		record := []string{row.Scenario, percent(row.TargetReturn), percent(row.Volatility)}
		for _, asset := range assets {
			if w, ok := weights[asset]; ok {
				record = append(record, percent(w))
			} else {
				record = append(record, "")
			}
		}
		yearReturn := "N/A"
		if row.YearReturn != nil {
			yearReturn = percent(*row.YearReturn)
		}
		record = append(record, percent(row.MaxDrawdown), yearReturn, percent(row.Lower95), percent(row.Upper95))
		records = append(records, record)
	}
	return records
}

// WriteSummaryCSV writes the scenario comparison table.
func WriteSummaryCSV(w io.Writer, rows []scenarios.SummaryRow, yearOfInterest int) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(SummaryRecords(rows, yearOfInterest)); err != nil {
		return fmt.Errorf("failed to write summary csv: %w", err)
	}
	return nil
}
