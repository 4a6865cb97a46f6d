package scenarios

// Allocation is one asset's weight in a summary row.
type Allocation struct {
	Asset  string  `json:"asset"`
	Weight float64 `json:"weight"`
}

// SummaryRow is the tabular record of one successful scenario.
type SummaryRow struct {
	Scenario       string       `json:"scenario"`
	TargetReturn   float64      `json:"target_return"`
	Volatility     float64      `json:"volatility"`
	Allocations    []Allocation `json:"allocations"`
	MaxDrawdown    float64      `json:"max_drawdown"`
	YearOfInterest int          `json:"year_of_interest"`
	YearReturn     *float64     `json:"year_return,omitempty"` // nil when the year is outside the history
	Lower95        float64      `json:"lower_95"`
	Upper95        float64      `json:"upper_95"`
}

// SummaryRows converts outcomes into rows, skipping failed scenarios.
func SummaryRows(outcomes []Outcome, yearOfInterest int) []SummaryRow {
	rows := make([]SummaryRow, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Succeeded() {
			continue
		}

		row := SummaryRow{
			Scenario:       o.Scenario.Name,
			TargetReturn:   o.Scenario.TargetReturn,
			Volatility:     o.Result.Objective,
			Allocations:    make([]Allocation, len(o.Result.Assets)),
			MaxDrawdown:    o.Summary.MaxDrawdown,
			YearOfInterest: yearOfInterest,
			Lower95:        o.Summary.Interval95.Lower,
			Upper95:        o.Summary.Interval95.Upper,
		}
		for i, asset := range o.Result.Assets {
			row.Allocations[i] = Allocation{Asset: asset, Weight: o.Result.Weights[i]}
		}
		if r, ok := o.Summary.AnnualReturn(yearOfInterest); ok {
			row.YearReturn = &r
		}
		rows = append(rows, row)
	}
	return rows
}
