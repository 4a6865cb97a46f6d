// Package optimization builds return models and solves minimum-variance allocations.
package optimization

import (
	"math"

	"github.com/aristath/allocator/internal/domain"
	"github.com/rs/zerolog"
)

// Weight bounds applied to every asset: no shorting, no leverage.
const (
	MinWeight = 0.0
	MaxWeight = 1.0
)

// LinearEquality is Σ Coefficients[i]·w[i] = Target.
type LinearEquality struct {
	Name         string
	Coefficients []float64
	Target       float64
}

// Residual returns Σ Coefficients[i]·w[i] − Target.
func (e LinearEquality) Residual(weights []float64) float64 {
	var s float64
	for i, c := range e.Coefficients {
		s += c * weights[i]
	}
	return s - e.Target
}

// MinimumAllocation requires w[Index] ≥ Minimum.
type MinimumAllocation struct {
	Index   int
	Asset   string
	Minimum float64
}

// Shortfall returns how far the weight is below its minimum (0 when satisfied).
func (m MinimumAllocation) Shortfall(weights []float64) float64 {
	return math.Max(0, m.Minimum-weights[m.Index])
}

// Bound is a per-weight box constraint.
type Bound struct {
	Lower float64
	Upper float64
}

// ConstraintSet is everything the solver must honor for one scenario.
type ConstraintSet struct {
	Assets      []string
	Equalities  []LinearEquality
	Minimums    []MinimumAllocation
	Bounds      []Bound
	Diagnostics []string
}

// Size returns the number of weights.
func (c ConstraintSet) Size() int {
	return len(c.Assets)
}

// EffectiveBounds folds the minimum allocations into the box bounds.
func (c ConstraintSet) EffectiveBounds() (lower, upper []float64) {
	lower = make([]float64, len(c.Bounds))
	upper = make([]float64, len(c.Bounds))
	for i, b := range c.Bounds {
		lower[i] = b.Lower
		upper[i] = b.Upper
	}
	for _, m := range c.Minimums {
		lower[m.Index] = math.Max(lower[m.Index], m.Minimum)
	}
	return lower, upper
}

// Violation returns the largest constraint violation of a weight vector.
func (c ConstraintSet) Violation(weights []float64) float64 {
	var worst float64
	for _, eq := range c.Equalities {
		worst = math.Max(worst, math.Abs(eq.Residual(weights)))
	}
	for _, m := range c.Minimums {
		worst = math.Max(worst, m.Shortfall(weights))
	}
	for i, b := range c.Bounds {
		worst = math.Max(worst, b.Lower-weights[i])
		worst = math.Max(worst, weights[i]-b.Upper)
	}
	return worst
}

// Satisfied reports whether every constraint holds within tol.
func (c ConstraintSet) Satisfied(weights []float64, tol float64) bool {
	return len(weights) == c.Size() && c.Violation(weights) <= tol
}

// TotalMinimum returns the sum of all minimum allocations.
func (c ConstraintSet) TotalMinimum() float64 {
	var total float64
	for _, m := range c.Minimums {
		total += m.Minimum
	}
	return total
}

// ConstraintBuilder translates a scenario's target and minimums into a ConstraintSet.
type ConstraintBuilder struct {
	log zerolog.Logger
}

// NewConstraintBuilder creates a new constraint builder.
func NewConstraintBuilder(log zerolog.Logger) *ConstraintBuilder {
	return &ConstraintBuilder{
		log: log.With().Str("component", "constraints").Logger(),
	}
}

// Build emits the full-investment and target-return equalities, one minimum
// per known asset and [0,1] bounds on every weight. Minimums naming assets
// outside the model are skipped with a diagnostic. Feasibility is not checked.
func (cb *ConstraintBuilder) Build(
	model *ReturnModel,
	scenario string,
	targetReturn float64,
	minimums map[string]float64,
) ConstraintSet {
	n := model.Size()

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}

	set := ConstraintSet{
		Assets: append([]string(nil), model.Assets...),
		Equalities: []LinearEquality{
			{Name: "sum", Coefficients: ones, Target: 1},
			{Name: "return", Coefficients: append([]float64(nil), model.ExpectedReturns...), Target: targetReturn},
		},
		Minimums: make([]MinimumAllocation, 0, len(minimums)),
		Bounds:   make([]Bound, n),
	}
	for i := range set.Bounds {
		set.Bounds[i] = Bound{Lower: MinWeight, Upper: MaxWeight}
	}

	spec := domain.Scenario{Name: scenario, Constraints: minimums}
	for _, asset := range spec.ConstrainedAssets() {
		idx := model.Index(asset)
		if idx < 0 {
			warning := &domain.UnknownAssetWarning{Scenario: scenario, Asset: asset}
			set.Diagnostics = append(set.Diagnostics, warning.Error())
			cb.log.Warn().
				Str("scenario", scenario).
				Str("asset", asset).
				Msg("Constrained asset not in universe, skipping constraint")
			continue
		}
		set.Minimums = append(set.Minimums, MinimumAllocation{
			Index:   idx,
			Asset:   asset,
			Minimum: minimums[asset],
		})
	}

	if total := set.TotalMinimum(); total > 1 {
		cb.log.Warn().
			Str("scenario", scenario).
			Float64("total_minimum", total).
			Msg("Minimum allocations exceed 100%, scenario is infeasible")
	}

	return set
}
