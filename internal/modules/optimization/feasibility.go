package optimization

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	feasibilityTol = 1e-9
	rankTol        = 1e-12
)

// errInfeasible is returned when no weight vector satisfies the constraints.
var errInfeasible = errors.New("constraints are infeasible")

// independentEqualities returns the subset of equalities whose coefficient
// rows are linearly independent over the given columns. Dropped rows are
// implied by the kept ones only if consistent, which callers verify on the
// final point.
func independentEqualities(eqs []LinearEquality, cols []int) []LinearEquality {
	kept := make([]LinearEquality, 0, len(eqs))
	for _, eq := range eqs {
		candidate := append(append([]LinearEquality(nil), kept...), eq)
		if equalityRank(candidate, cols) == len(candidate) {
			kept = candidate
		}
	}
	return kept
}

// equalityRank returns the numerical rank of the equality rows restricted to cols.
func equalityRank(eqs []LinearEquality, cols []int) int {
	if len(eqs) == 0 || len(cols) == 0 {
		return 0
	}
	a := mat.NewDense(len(eqs), len(cols), nil)
	for r, eq := range eqs {
		for c, j := range cols {
			a.Set(r, c, eq.Coefficients[j])
		}
	}
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDNone) {
		return 0
	}
	return svd.Rank(rankTol)
}

// FeasiblePoint finds weights satisfying every constraint in the set using
// the simplex method. The returned point is a vertex of the feasible region.
func FeasiblePoint(set ConstraintSet) ([]float64, error) {
	n := set.Size()
	if n == 0 {
		return nil, fmt.Errorf("no assets to allocate")
	}

	lower, upper := set.EffectiveBounds()
	for i := range lower {
		if lower[i] > upper[i]+feasibilityTol {
			return nil, fmt.Errorf("%w: minimum %.4f for %s exceeds upper bound %.4f",
				errInfeasible, lower[i], set.Assets[i], upper[i])
		}
	}

	for _, eq := range set.Equalities {
		lo, hi := boxRange(eq.Coefficients, lower, upper)
		if eq.Target < lo-feasibilityTol || eq.Target > hi+feasibilityTol {
			return nil, fmt.Errorf("%w: %s target %.4f outside achievable range [%.4f, %.4f]",
				errInfeasible, eq.Name, eq.Target, lo, hi)
		}
	}

	if n == 1 {
		w := []float64{1}
		if set.Violation(w) > feasibilityTol {
			return nil, fmt.Errorf("%w: single asset cannot meet the equality constraints", errInfeasible)
		}
		return w, nil
	}

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	eqs := independentEqualities(set.Equalities, all)

	// Standard form over x = [v; s] with v = w - lower and v + s = upper - lower.
	k := len(eqs)
	rows, cols := k+n, 2*n
	a := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)
	for r, eq := range eqs {
		rhs := eq.Target
		for j := 0; j < n; j++ {
			a.Set(r, j, eq.Coefficients[j])
			rhs -= eq.Coefficients[j] * lower[j]
		}
		b[r] = rhs
	}
	for i := 0; i < n; i++ {
		a.Set(k+i, i, 1)
		a.Set(k+i, n+i, 1)
		b[k+i] = math.Max(0, upper[i]-lower[i])
	}
	for r := range b {
		if b[r] < 0 {
			b[r] = -b[r]
			for j := 0; j < cols; j++ {
				a.Set(r, j, -a.At(r, j))
			}
		}
	}

	x, err := simplex(make([]float64, cols), a, b)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return nil, fmt.Errorf("%w: %v", errInfeasible, err)
		}
		return nil, fmt.Errorf("feasibility search failed: %w", err)
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = math.Min(upper[i], math.Max(lower[i], lower[i]+x[i]))
	}
	if v := set.Violation(w); v > 1e-7 {
		return nil, fmt.Errorf("%w: best point violates constraints by %.3g", errInfeasible, v)
	}
	return w, nil
}

// boxRange returns the smallest and largest value of Σ c_i·w_i over the box.
func boxRange(c, lower, upper []float64) (lo, hi float64) {
	for i, ci := range c {
		if ci >= 0 {
			lo += ci * lower[i]
			hi += ci * upper[i]
		} else {
			lo += ci * upper[i]
			hi += ci * lower[i]
		}
	}
	return lo, hi
}

// simplex wraps lp.Simplex, which panics on malformed inputs.
func simplex(c []float64, a mat.Matrix, b []float64) (x []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simplex: %v", r)
		}
	}()
	_, x, err = lp.Simplex(c, a, b, 1e-10, nil)
	return x, err
}
