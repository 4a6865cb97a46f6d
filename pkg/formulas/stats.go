package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// LogReturns converts prices to log returns.
// Returns[i] = ln(Price[i+1] / Price[i])
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns[i-1] = math.Log(prices[i] / prices[i-1])
	}
	return returns
}

// Annualize scales a per-period statistic by the number of periods per year.
// Arithmetic scaling, not compounding.
func Annualize(perPeriod float64, periodsPerYear int) float64 {
	return perPeriod * float64(periodsPerYear)
}

// PeriodicRate converts an annual rate into the equivalent compounded
// per-period rate: (1+annual)^(1/periods) - 1
func PeriodicRate(annualRate float64, periodsPerYear int) float64 {
	if periodsPerYear <= 0 {
		return 0
	}
	return math.Pow(1+annualRate, 1/float64(periodsPerYear)) - 1
}

// CompoundReturn compounds simple returns: (1+r1)*(1+r2)*...*(1+rN) - 1
func CompoundReturn(returns []float64) float64 {
	cumulative := 1.0
	for _, r := range returns {
		cumulative *= 1 + r
	}
	return cumulative - 1
}

// CumulativeGrowth returns the running value of an initial amount invested
// at the given simple returns. Element i is the value after period i.
func CumulativeGrowth(returns []float64, initial float64) []float64 {
	values := make([]float64, len(returns))
	value := initial
	for i, r := range returns {
		value *= 1 + r
		values[i] = value
	}
	return values
}

// Drawdowns returns (value - running max) / running max for every point.
// Values are <= 0; a series that never falls below its peak is all zeros.
func Drawdowns(values []float64) []float64 {
	drawdowns := make([]float64, len(values))
	runningMax := math.Inf(-1)
	for i, v := range values {
		if v > runningMax {
			runningMax = v
		}
		if runningMax > 0 {
			drawdowns[i] = (v - runningMax) / runningMax
		}
	}
	return drawdowns
}

// MaxDrawdown returns the deepest drawdown of a value series as a negative
// fraction of the prior peak (0 when the series never declines).
func MaxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return math.Min(0, floats.Min(Drawdowns(values)))
}

// ConfidenceInterval returns [mean - k*stdDev, mean + k*stdDev]
func ConfidenceInterval(mean, stdDev, k float64) (float64, float64) {
	return mean - k*stdDev, mean + k*stdDev
}
