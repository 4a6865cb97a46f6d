package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Solver methods accepted by NewSolver.
const (
	MethodActiveSet = "active_set"
	MethodPenalty   = "penalty"
)

const (
	// SuccessMessage is reported by every converged solve.
	SuccessMessage = "Optimization terminated successfully"

	// ClampTolerance is the numerical slack folded back onto the [0,1] bounds.
	ClampTolerance = 1e-8

	stepTol       = 1e-12
	multiplierTol = 1e-10
	ridge         = 1e-12
)

// Result is the outcome of one solve.
type Result struct {
	Assets     []string  `json:"assets"`
	Weights    []float64 `json:"weights"`
	Converged  bool      `json:"converged"`
	Objective  float64   `json:"objective"`
	Message    string    `json:"message"`
	Iterations int       `json:"iterations"`
	Method     string    `json:"method"`
}

// WeightsByAsset returns the weights keyed by asset identifier.
func (r Result) WeightsByAsset() map[string]float64 {
	out := make(map[string]float64, len(r.Assets))
	for i, asset := range r.Assets {
		if i < len(r.Weights) {
			out[asset] = r.Weights[i]
		}
	}
	return out
}

// Solver minimizes portfolio volatility sqrt(wᵀΣw) under a ConstraintSet.
type Solver interface {
	Solve(ctx context.Context, set ConstraintSet, cov *mat.SymDense, initial []float64) Result
}

// NewSolver returns the solver registered under method.
func NewSolver(method string, log zerolog.Logger) (Solver, error) {
	switch method {
	case MethodActiveSet, "":
		return NewActiveSetSolver(log), nil
	case MethodPenalty:
		return NewPenaltySolver(log), nil
	default:
		return nil, fmt.Errorf("unknown solver method: %s", method)
	}
}

// EqualWeights returns the 1/n starting point.
func EqualWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// ActiveSetSolver solves the problem as the convex QP min ½wᵀΣw, which has
// the same minimizer. A simplex phase finds a feasible start and a primal
// active-set phase walks to the optimum.
type ActiveSetSolver struct {
	MaxIterations int // 0 means 50n+100
	log           zerolog.Logger
}

// NewActiveSetSolver creates a new active-set solver.
func NewActiveSetSolver(log zerolog.Logger) *ActiveSetSolver {
	return &ActiveSetSolver{
		log: log.With().Str("component", "active_set_solver").Logger(),
	}
}

// Solve implements Solver.
func (s *ActiveSetSolver) Solve(ctx context.Context, set ConstraintSet, cov *mat.SymDense, initial []float64) Result {
	n := set.Size()
	result := Result{
		Assets: append([]string(nil), set.Assets...),
		Method: MethodActiveSet,
	}
	if n == 0 {
		result.Message = "no assets to allocate"
		return result
	}
	if r, _ := cov.Dims(); r != n {
		result.Message = fmt.Sprintf("covariance size %d does not match %d assets", r, n)
		return result
	}
	if err := ctx.Err(); err != nil {
		result.Message = err.Error()
		return result
	}

	var w []float64
	if len(initial) == n && set.Satisfied(initial, feasibilityTol) {
		w = append([]float64(nil), initial...)
	} else {
		start, err := FeasiblePoint(set)
		if err != nil {
			s.log.Debug().Err(err).Msg("No feasible starting point")
			result.Weights = make([]float64, n)
			result.Message = err.Error()
			return result
		}
		w = start
	}

	w, iterations, err := s.activeSet(ctx, set, cov, w)
	result.Iterations = iterations
	finish(&result, set, cov, w, err)

	s.log.Debug().
		Bool("converged", result.Converged).
		Int("iterations", iterations).
		Float64("volatility", result.Objective).
		Msg("Active-set solve finished")

	return result
}

// activeSet runs the primal active-set method from a feasible w.
func (s *ActiveSetSolver) activeSet(ctx context.Context, set ConstraintSet, cov *mat.SymDense, w []float64) ([]float64, int, error) {
	n := len(w)
	lower, upper := set.EffectiveBounds()

	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	eqs := independentEqualities(set.Equalities, all)

	// fixed[i] is -1 at the lower bound, +1 at the upper bound, 0 when free.
	fixed := make([]int, n)
	for i := range w {
		state := 0
		switch {
		case lower[i] == upper[i]:
			state = -1
		case math.Abs(w[i]-lower[i]) <= feasibilityTol:
			state = -1
		case math.Abs(w[i]-upper[i]) <= feasibilityTol:
			state = 1
		}
		if state == 0 {
			continue
		}
		fixed[i] = state
		if equalityRank(eqs, freeIndices(fixed)) < len(eqs) {
			fixed[i] = 0
			continue
		}
		if state < 0 {
			w[i] = lower[i]
		} else {
			w[i] = upper[i]
		}
	}

	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = 50*n + 100
	}

	g := make([]float64, n)
	for iter := 1; iter <= maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return w, iter - 1, err
		}

		gradient(cov, w, g)
		free := freeIndices(fixed)
		p, nu, err := solveKKT(cov, eqs, free, g)
		if err != nil {
			return w, iter, err
		}

		step := make([]float64, n)
		var norm float64
		for r, i := range free {
			step[i] = p[r]
			norm = math.Max(norm, math.Abs(p[r]))
		}

		if norm <= stepTol {
			release, worst := -1, -multiplierTol*math.Max(1, maxAbs(g))
			for i := range fixed {
				if fixed[i] == 0 || lower[i] == upper[i] {
					continue
				}
				residual := g[i]
				for j, eq := range eqs {
					residual += nu[j] * eq.Coefficients[i]
				}
				multiplier := residual
				if fixed[i] > 0 {
					multiplier = -residual
				}
				if multiplier < worst {
					worst = multiplier
					release = i
				}
			}
			if release < 0 {
				return w, iter, nil
			}
			fixed[release] = 0
			continue
		}

		alpha, blocking := 1.0, -1
		for _, i := range free {
			var limit float64
			switch {
			case step[i] < -stepTol:
				limit = (lower[i] - w[i]) / step[i]
			case step[i] > stepTol:
				limit = (upper[i] - w[i]) / step[i]
			default:
				continue
			}
			if limit < alpha {
				alpha = math.Max(0, limit)
				blocking = i
			}
		}

		for _, i := range free {
			w[i] += alpha * step[i]
		}
		if blocking >= 0 {
			if step[blocking] < 0 {
				fixed[blocking] = -1
				w[blocking] = lower[blocking]
			} else {
				fixed[blocking] = 1
				w[blocking] = upper[blocking]
			}
		}
	}

	return w, maxIter, errIterationLimit
}

var errIterationLimit = errors.New("iteration limit reached")

// solveKKT solves [[Σ_RR, A_Rᵀ], [A_R, 0]] [p; ν] = [-g_R; 0] over the free set R.
func solveKKT(cov *mat.SymDense, eqs []LinearEquality, free []int, g []float64) ([]float64, []float64, error) {
	r, k := len(free), len(eqs)
	size := r + k
	if r == 0 {
		return nil, make([]float64, k), nil
	}

	kkt := mat.NewDense(size, size, nil)
	rhs := mat.NewVecDense(size, nil)
	for a, i := range free {
		for b, j := range free {
			kkt.Set(a, b, cov.At(i, j))
		}
		kkt.Set(a, a, kkt.At(a, a)+ridge)
		for e, eq := range eqs {
			kkt.Set(a, r+e, eq.Coefficients[i])
			kkt.Set(r+e, a, eq.Coefficients[i])
		}
		rhs.SetVec(a, -g[i])
	}

	var sol mat.VecDense
	if err := sol.SolveVec(kkt, rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, nil, fmt.Errorf("KKT system: %w", err)
		}
	}
	for i := 0; i < size; i++ {
		if v := sol.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("KKT system is singular")
		}
	}

	p := make([]float64, r)
	nu := make([]float64, k)
	for a := range p {
		p[a] = sol.AtVec(a)
	}
	for e := range nu {
		nu[e] = sol.AtVec(r + e)
	}
	return p, nu, nil
}

func gradient(cov *mat.SymDense, w, g []float64) {
	gv := mat.NewVecDense(len(g), g)
	gv.MulVec(cov, mat.NewVecDense(len(w), w))
}

func freeIndices(fixed []int) []int {
	free := make([]int, 0, len(fixed))
	for i, f := range fixed {
		if f == 0 {
			free = append(free, i)
		}
	}
	return free
}

func maxAbs(x []float64) float64 {
	var m float64
	for _, v := range x {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// finish clamps the weights, computes the objective and sets the
// convergence status shared by all solvers.
func finish(result *Result, set ConstraintSet, cov *mat.SymDense, w []float64, err error) {
	weights := clampWeights(w)
	result.Weights = weights
	vec := mat.NewVecDense(len(weights), weights)
	result.Objective = math.Sqrt(math.Max(0, mat.Inner(vec, cov, vec)))

	switch {
	case err != nil:
		result.Message = err.Error()
	case set.Violation(weights) > 1e-6:
		result.Message = fmt.Sprintf("constraint violation %.3g after solve", set.Violation(weights))
	default:
		result.Converged = true
		result.Message = SuccessMessage
	}
}

func clampWeights(w []float64) []float64 {
	out := make([]float64, len(w))
	for i, v := range w {
		switch {
		case v < MinWeight && v >= MinWeight-ClampTolerance:
			v = MinWeight
		case v > MaxWeight && v <= MaxWeight+ClampTolerance:
			v = MaxWeight
		}
		out[i] = v
	}
	return out
}
