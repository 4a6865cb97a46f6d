// Package scenarios runs one optimization per scenario over a shared return model.
package scenarios

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/analytics"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config holds runner configuration
type Config struct {
	Workers           int           // Scenarios solved concurrently; <= 1 runs sequentially
	SolverTimeout     time.Duration // Per-scenario deadline; 0 disables it
	InitialInvestment float64
}

// Outcome is the result of one scenario. Err is nil only when the solve
// converged and the summary was computed.
type Outcome struct {
	Scenario    domain.Scenario
	Constraints optimization.ConstraintSet
	Result      optimization.Result
	Summary     *analytics.Summary
	Duration    time.Duration
	Err         error
}

// Succeeded reports whether the scenario produced a summary.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Summary != nil
}

// Observer is called once per finished scenario, from the goroutine that ran it.
type Observer func(Outcome)

// Runner runs scenarios against a ReturnModel.
type Runner struct {
	cfg         Config
	solver      optimization.Solver
	constraints *optimization.ConstraintBuilder
	calculator  *analytics.Calculator
	observer    Observer
	log         zerolog.Logger
}

// NewRunner creates a new scenario runner.
func NewRunner(cfg Config, solver optimization.Solver, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:         cfg,
		solver:      solver,
		constraints: optimization.NewConstraintBuilder(log),
		calculator:  analytics.NewCalculator(log),
		log:         log.With().Str("component", "scenario_runner").Logger(),
	}
}

// SetObserver registers a callback for finished scenarios.
func (r *Runner) SetObserver(observer Observer) {
	r.observer = observer
}

// Run solves every scenario and returns the outcomes in input order. A failed
// scenario never stops the others.
func (r *Runner) Run(ctx context.Context, model *optimization.ReturnModel, scenarios []domain.Scenario) []Outcome {
	outcomes := make([]Outcome, len(scenarios))
	seen := make(map[string]bool, len(scenarios))
	duplicate := make([]bool, len(scenarios))
	for i, s := range scenarios {
		duplicate[i] = seen[s.Name]
		seen[s.Name] = true
	}

	workers := r.cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range scenarios {
		i := i
		g.Go(func() error {
			if duplicate[i] {
				outcomes[i] = Outcome{
					Scenario: scenarios[i],
					Err:      &domain.MalformedScenarioError{Scenario: scenarios[i].Name, Reason: "duplicate scenario name"},
				}
			} else {
				outcomes[i] = r.RunOne(ctx, model, scenarios[i])
			}
			if r.observer != nil {
				r.observer(outcomes[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			failed++
		}
	}
	r.log.Info().
		Int("scenarios", len(scenarios)).
		Int("failed", failed).
		Msg("Scenario batch finished")

	return outcomes
}

// RunOne validates, solves and summarizes a single scenario.
func (r *Runner) RunOne(ctx context.Context, model *optimization.ReturnModel, scenario domain.Scenario) (outcome Outcome) {
	start := time.Now()
	outcome.Scenario = scenario
	log := r.log.With().Str("scenario", scenario.Name).Logger()

	defer func() {
		outcome.Duration = time.Since(start)
	}()

	if err := Validate(scenario); err != nil {
		log.Warn().Err(err).Msg("Skipping malformed scenario")
		outcome.Err = err
		return outcome
	}
	if err := ctx.Err(); err != nil {
		outcome.Err = fmt.Errorf("scenario %q not started: %w", scenario.Name, err)
		return outcome
	}

	outcome.Constraints = r.constraints.Build(model, scenario.Name, scenario.TargetReturn, scenario.Constraints)

	solveCtx := ctx
	if r.cfg.SolverTimeout > 0 {
		var cancel context.CancelFunc
		solveCtx, cancel = context.WithTimeout(ctx, r.cfg.SolverTimeout)
		defer cancel()
	}

	outcome.Result = r.solver.Solve(solveCtx, outcome.Constraints, model.Covariance, optimization.EqualWeights(model.Size()))
	if !outcome.Result.Converged {
		log.Warn().Str("message", outcome.Result.Message).Msg("Optimization failed")
		outcome.Err = &domain.InfeasibleOrNonConvergentError{Scenario: scenario.Name, Message: outcome.Result.Message}
		return outcome
	}

	summary, err := r.calculator.Summarize(analytics.Input{
		Result:            outcome.Result,
		Model:             model,
		InitialInvestment: r.cfg.InitialInvestment,
	})
	if err != nil {
		outcome.Err = fmt.Errorf("scenario %q: failed to summarize: %w", scenario.Name, err)
		return outcome
	}
	outcome.Summary = summary

	log.Info().
		Float64("target_return", scenario.TargetReturn).
		Float64("volatility", outcome.Result.Objective).
		Int("iterations", outcome.Result.Iterations).
		Msg("Optimization succeeded")

	return outcome
}

// Validate checks a scenario before optimization.
func Validate(s domain.Scenario) error {
	if s.Malformed != "" {
		return &domain.MalformedScenarioError{Scenario: s.Name, Reason: s.Malformed}
	}
	if s.Name == "" {
		return &domain.MalformedScenarioError{Scenario: s.Name, Reason: "name is empty"}
	}
	if math.IsNaN(s.TargetReturn) || math.IsInf(s.TargetReturn, 0) {
		return &domain.MalformedScenarioError{Scenario: s.Name, Reason: "target return must be a finite number"}
	}
	for _, asset := range s.ConstrainedAssets() {
		if asset == "" {
			return &domain.MalformedScenarioError{Scenario: s.Name, Reason: "constraint has an empty asset identifier"}
		}
		minimum := s.Constraints[asset]
		if math.IsNaN(minimum) || minimum < 0 || minimum > 1 {
			return &domain.MalformedScenarioError{
				Scenario: s.Name,
				Reason:   fmt.Sprintf("minimum allocation %v for %s is outside [0, 1]", minimum, asset),
			}
		}
	}
	return nil
}
