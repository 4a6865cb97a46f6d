package optimization

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// PenaltySolver minimizes ½wᵀΣw with an augmented Lagrangian over the
// equalities and bounds, using gonum's unconstrained minimizers for the
// inner problems.
type PenaltySolver struct {
	OuterIterations int
	InnerIterations int
	Tolerance       float64
	log             zerolog.Logger
}

// NewPenaltySolver creates a new augmented-Lagrangian solver.
func NewPenaltySolver(log zerolog.Logger) *PenaltySolver {
	return &PenaltySolver{
		OuterIterations: 30,
		InnerIterations: 500,
		Tolerance:       1e-8,
		log:             log.With().Str("component", "penalty_solver").Logger(),
	}
}

// Solve implements Solver.
func (s *PenaltySolver) Solve(ctx context.Context, set ConstraintSet, cov *mat.SymDense, initial []float64) Result {
	n := set.Size()
	result := Result{
		Assets: append([]string(nil), set.Assets...),
		Method: MethodPenalty,
	}
	if n == 0 {
		result.Message = "no assets to allocate"
		return result
	}
	if r, _ := cov.Dims(); r != n {
		result.Message = fmt.Sprintf("covariance size %d does not match %d assets", r, n)
		return result
	}

	lower, upper := set.EffectiveBounds()
	eqs := set.Equalities

	x := EqualWeights(n)
	if len(initial) == n {
		copy(x, initial)
	}

	lambda := make([]float64, len(eqs))
	muLower := make([]float64, n)
	muUpper := make([]float64, n)
	rho := 10.0
	violation := math.Inf(1)

	var runErr error
	for outer := 0; outer < s.OuterIterations; outer++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		problem := s.problem(cov, eqs, lower, upper, lambda, muLower, muUpper, rho)
		settings := &optimize.Settings{MajorIterations: s.InnerIterations, GradientThreshold: 1e-12}
		res, err := optimize.Minimize(problem, x, settings, &optimize.BFGS{})
		if res == nil || hasNaN(res.X) {
			res, err = optimize.Minimize(problem, x, settings, &optimize.NelderMead{})
		}
		if res == nil {
			runErr = fmt.Errorf("inner minimization failed: %w", err)
			break
		}
		if err != nil {
			s.log.Debug().Err(err).Int("outer", outer).Msg("Inner minimization stopped early")
		}
		x = append(x[:0], res.X...)
		result.Iterations += res.Stats.MajorIterations

		for j, eq := range eqs {
			lambda[j] += rho * eq.Residual(x)
		}
		for i := range x {
			muLower[i] = math.Max(0, muLower[i]+rho*(lower[i]-x[i]))
			muUpper[i] = math.Max(0, muUpper[i]+rho*(x[i]-upper[i]))
		}

		current := set.Violation(x)
		if current < s.Tolerance {
			violation = current
			break
		}
		if current > 0.25*violation && rho < 1e8 {
			rho *= 10
		}
		violation = current
	}

	if runErr == nil && violation >= s.Tolerance {
		runErr = fmt.Errorf("constraint violation %.3g exceeds tolerance after %d rounds", violation, s.OuterIterations)
	}

	finish(&result, set, cov, x, runErr)

	s.log.Debug().
		Bool("converged", result.Converged).
		Int("iterations", result.Iterations).
		Float64("volatility", result.Objective).
		Msg("Penalty solve finished")

	return result
}

// problem builds the augmented Lagrangian for fixed multipliers and penalty.
func (s *PenaltySolver) problem(
	cov *mat.SymDense,
	eqs []LinearEquality,
	lower, upper, lambda, muLower, muUpper []float64,
	rho float64,
) optimize.Problem {
	n := len(lower)
	return optimize.Problem{
		Func: func(x []float64) float64 {
			xv := mat.NewVecDense(n, x)
			obj := 0.5 * mat.Inner(xv, cov, xv)
			for j, eq := range eqs {
				h := eq.Residual(x)
				obj += lambda[j]*h + 0.5*rho*h*h
			}
			for i := range x {
				obj += boundTerm(muLower[i], lower[i]-x[i], rho)
				obj += boundTerm(muUpper[i], x[i]-upper[i], rho)
			}
			return obj
		},
		Grad: func(grad, x []float64) {
			gradient(cov, x, grad)
			for j, eq := range eqs {
				scale := lambda[j] + rho*eq.Residual(x)
				for i, c := range eq.Coefficients {
					grad[i] += scale * c
				}
			}
			for i := range x {
				grad[i] -= math.Max(0, muLower[i]+rho*(lower[i]-x[i]))
				grad[i] += math.Max(0, muUpper[i]+rho*(x[i]-upper[i]))
			}
		},
	}
}

// boundTerm is the augmented Lagrangian contribution of c(x) ≤ 0.
func boundTerm(mu, c, rho float64) float64 {
	shifted := math.Max(0, mu+rho*c)
	return (shifted*shifted - mu*mu) / (2 * rho)
}

func hasNaN(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
