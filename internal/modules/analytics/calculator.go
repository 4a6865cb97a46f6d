// Package analytics derives forward-looking and historical performance
// statistics for an optimized portfolio.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/pkg/formulas"
	"github.com/rs/zerolog"
)

// Interval is a closed range of annual returns.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// PeriodReturn is the portfolio's simple return over the period ending at Date.
type PeriodReturn struct {
	Date   time.Time `json:"date"`
	Return float64   `json:"return"`
}

// GrowthPoint is the portfolio value at the end of a period.
type GrowthPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// AnnualReturn is the compounded return within one calendar year.
type AnnualReturn struct {
	Year   int     `json:"year"`
	Return float64 `json:"return"`
}

// Summary is the performance record for one optimized portfolio.
//
// The confidence intervals assume annual returns are normally distributed
// around ExpectedReturn with standard deviation ExpectedVolatility. They are
// a modeling assumption, not a guarantee.
type Summary struct {
	ExpectedReturn     float64        `json:"expected_return"`
	ExpectedVolatility float64        `json:"expected_volatility"`
	Interval68         Interval       `json:"interval_68"`
	Interval95         Interval       `json:"interval_95"`
	PeriodReturns      []PeriodReturn `json:"period_returns"`
	Growth             []GrowthPoint  `json:"growth"`
	AnnualReturns      []AnnualReturn `json:"annual_returns"`
	MaxDrawdown        float64        `json:"max_drawdown"`
	InitialInvestment  float64        `json:"initial_investment"`
	FirstYear          int            `json:"first_year"`
}

// AnnualReturn looks up the realized return for a calendar year.
func (s *Summary) AnnualReturn(year int) (float64, bool) {
	for _, ar := range s.AnnualReturns {
		if ar.Year == year {
			return ar.Return, true
		}
	}
	return 0, false
}

// FinalValue returns the last value of the growth series.
func (s *Summary) FinalValue() float64 {
	if len(s.Growth) == 0 {
		return s.InitialInvestment
	}
	return s.Growth[len(s.Growth)-1].Value
}

// Input bundles what Summarize needs.
type Input struct {
	Result            optimization.Result
	Model             *optimization.ReturnModel
	InitialInvestment float64
}

// Calculator computes performance summaries.
type Calculator struct {
	log zerolog.Logger
}

// NewCalculator creates a new performance calculator.
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("component", "analytics").Logger(),
	}
}

// Summarize computes the forward and historical statistics for a solved portfolio.
func (c *Calculator) Summarize(in Input) (*Summary, error) {
	model := in.Model
	if model == nil {
		return nil, fmt.Errorf("return model is required")
	}
	weights := in.Result.Weights
	if len(weights) != model.Size() {
		return nil, fmt.Errorf("got %d weights for %d assets", len(weights), model.Size())
	}

	expectedReturn := model.PortfolioReturn(weights)
	volatility := model.PortfolioVolatility(weights)
	lower68, upper68 := formulas.ConfidenceInterval(expectedReturn, volatility, 1)
	lower95, upper95 := formulas.ConfidenceInterval(expectedReturn, volatility, 2)

	returns := c.portfolioReturns(model, weights)
	values := formulas.CumulativeGrowth(returns, in.InitialInvestment)

	summary := &Summary{
		ExpectedReturn:     expectedReturn,
		ExpectedVolatility: volatility,
		Interval68:         Interval{Lower: lower68, Upper: upper68},
		Interval95:         Interval{Lower: lower95, Upper: upper95},
		PeriodReturns:      make([]PeriodReturn, len(returns)),
		Growth:             make([]GrowthPoint, len(values)),
		MaxDrawdown:        formulas.MaxDrawdown(values),
		InitialInvestment:  in.InitialInvestment,
	}
	dates := model.Series.Dates
	for i, r := range returns {
		summary.PeriodReturns[i] = PeriodReturn{Date: dates[i], Return: r}
		summary.Growth[i] = GrowthPoint{Date: dates[i], Value: values[i]}
	}
	summary.AnnualReturns = annualReturns(summary.PeriodReturns)
	if !model.Series.Start.IsZero() {
		summary.FirstYear = model.Series.Start.UTC().Year()
	}

	c.log.Debug().
		Float64("expected_return", expectedReturn).
		Float64("volatility", volatility).
		Float64("max_drawdown", summary.MaxDrawdown).
		Msg("Computed performance summary")

	return summary, nil
}

// portfolioReturns computes per-period simple returns. The risky part is
// aggregated in log space and converted back; the risk-free part is already
// a simple per-period rate.
func (c *Calculator) portfolioReturns(model *optimization.ReturnModel, weights []float64) []float64 {
	periods := model.Series.Periods()
	var rfWeight, rfPeriodic float64
	if model.RiskFree {
		rfWeight = weights[model.RiskyCount]
		rfPeriodic = formulas.PeriodicRate(model.RiskFreeRate, model.PeriodsPerYear)
	}

	returns := make([]float64, periods)
	for t := 0; t < periods; t++ {
		var logReturn float64
		for i := 0; i < model.RiskyCount; i++ {
			logReturn += weights[i] * model.Series.Returns[i][t]
		}
		returns[t] = math.Exp(logReturn) - 1 + rfWeight*rfPeriodic
	}
	return returns
}

// annualReturns compounds period returns within each UTC calendar year.
func annualReturns(returns []PeriodReturn) []AnnualReturn {
	byYear := make(map[int][]float64)
	for _, pr := range returns {
		year := pr.Date.UTC().Year()
		byYear[year] = append(byYear[year], pr.Return)
	}

	out := make([]AnnualReturn, 0, len(byYear))
	for year, rs := range byYear {
		out = append(out, AnnualReturn{Year: year, Return: formulas.CompoundReturn(rs)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}
