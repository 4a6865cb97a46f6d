package reporting

import (
	"errors"
	"fmt"

	"github.com/aristath/allocator/internal/modules/scenarios"
	"github.com/vicanso/go-charts/v2"
)

// GrowthChart renders the portfolio value series as a PNG line chart.
func GrowthChart(o scenarios.Outcome) ([]byte, error) {
	if !o.Succeeded() {
		return nil, errors.New("no growth series for a failed scenario")
	}
	growth := o.Summary.Growth
	if len(growth) < 2 {
		return nil, errors.New("not enough data points")
	}

	values := make([]float64, len(growth))
	labels := make([]string, len(growth))
	yMin, yMax := growth[0].Value, growth[0].Value
	for i, g := range growth {
		values[i] = g.Value
		labels[i] = g.Date.Format("2006-01")
		if g.Value < yMin {
			yMin = g.Value
		}
		if g.Value > yMax {
			yMax = g.Value
		}
	}
	pad := (yMax - yMin) * 0.05
	yMin -= pad
	if yMin < 0 {
		yMin = 0
	}
	yMax += pad

	painter, err := charts.LineRender([][]float64{values},
		charts.TitleTextOptionFunc(fmt.Sprintf("Growth of $%.0f - Scenario: %s", o.Summary.InitialInvestment, o.Scenario.Name)),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: labels, BoundaryGap: charts.FalseFlag(), SplitNumber: 12}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(1200),
		charts.HeightOptionFunc(800),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render growth chart: %w", err)
	}
	return painter.Bytes()
}
