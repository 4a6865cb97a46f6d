package scenarios

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// testModel builds a model from five years of reproducible monthly prices
// starting in January 2006.
func testModel(t *testing.T) *optimization.ReturnModel {
	t.Helper()
	rng := rand.New(rand.NewSource(2008))
	drifts := map[string]float64{"BA": 0.009, "GLD": 0.004, "SPY": 0.006, "TLT": 0.002}
	start := time.Date(2006, time.January, 1, 0, 0, 0, 0, time.UTC)

	table := domain.PriceTable{}
	for _, asset := range []string{"BA", "GLD", "SPY", "TLT"} {
		price := 100.0
		points := []domain.PricePoint{{Date: start, Close: price}}
		for i := 1; i <= 60; i++ {
			price *= math.Exp(drifts[asset] + 0.04*rng.NormFloat64())
			points = append(points, domain.PricePoint{Date: start.AddDate(0, i, 0), Close: price})
		}
		table[asset] = points
	}

	model, err := optimization.NewReturnModelBuilder(zerolog.Nop()).Build(table, optimization.ModelOptions{
		PeriodsPerYear: 12,
		RiskFree:       true,
		RiskFreeRate:   0.04,
	})
	require.NoError(t, err)
	return model
}

func newRunner(cfg Config) *Runner {
	if cfg.InitialInvestment == 0 {
		cfg.InitialInvestment = 100000
	}
	return NewRunner(cfg, optimization.NewActiveSetSolver(zerolog.Nop()), zerolog.Nop())
}

func batch(model *optimization.ReturnModel) []domain.Scenario {
	mid := model.PortfolioReturn(optimization.EqualWeights(model.Size()))
	return []domain.Scenario{
		{Name: "feasible", TargetReturn: mid, Constraints: map[string]float64{"SPY": 0.13, "BA": 0.02}},
		{Name: "unreachable", TargetReturn: 5.0},
		{Name: "malformed", TargetReturn: math.NaN()},
		{Name: "unknown asset", TargetReturn: mid, Constraints: map[string]float64{"BOEING_Stable_2_84": 0.13}},
	}
}

func TestRunner_ContinuesAfterFailures(t *testing.T) {
	model := testModel(t)
	outcomes := newRunner(Config{}).Run(context.Background(), model, batch(model))

	require.Len(t, outcomes, 4)
	assert.Equal(t, "feasible", outcomes[0].Scenario.Name)
	assert.True(t, outcomes[0].Succeeded())
	assert.NotNil(t, outcomes[0].Summary)

	var nonConvergent *domain.InfeasibleOrNonConvergentError
	require.True(t, errors.As(outcomes[1].Err, &nonConvergent))
	assert.Equal(t, "unreachable", nonConvergent.Scenario)
	assert.False(t, outcomes[1].Result.Converged)

	var malformed *domain.MalformedScenarioError
	require.True(t, errors.As(outcomes[2].Err, &malformed))

	assert.True(t, outcomes[3].Succeeded(), "unknown assets are skipped, not fatal")
	require.Len(t, outcomes[3].Constraints.Diagnostics, 1)
	assert.Contains(t, outcomes[3].Constraints.Diagnostics[0], "BOEING_Stable_2_84")
}

func TestRunner_UndecodableScenariosFailAlone(t *testing.T) {
	model := testModel(t)
	mid := model.PortfolioReturn(optimization.EqualWeights(model.Size()))
	data := fmt.Sprintf(`
- name: good
  target_return: %v
- name: missing_target
  constraints: {SPY: 0.1}
- name: wordy_target
  target_return: five
- name: wordy_constraint
  target_return: %v
  constraints: {SPY: lots}
`, mid, mid)
	scenarios, err := Parse([]byte(data))
	require.NoError(t, err)

	outcomes := newRunner(Config{Workers: 2}).Run(context.Background(), model, scenarios)

	require.Len(t, outcomes, 4)
	assert.True(t, outcomes[0].Succeeded())
	for _, o := range outcomes[1:] {
		var malformed *domain.MalformedScenarioError
		require.True(t, errors.As(o.Err, &malformed), o.Scenario.Name)
		assert.Equal(t, o.Scenario.Name, malformed.Scenario)
		assert.False(t, o.Result.Converged, "malformed scenarios are never solved")
	}
	assert.Contains(t, outcomes[1].Err.Error(), "target_return is missing")
}

func TestRunner_ConcurrentMatchesSequential(t *testing.T) {
	model := testModel(t)
	scenarios := batch(model)

	sequential := newRunner(Config{Workers: 1}).Run(context.Background(), model, scenarios)
	concurrent := newRunner(Config{Workers: 4}).Run(context.Background(), model, scenarios)

	require.Len(t, concurrent, len(sequential))
	for i := range sequential {
		assert.Equal(t, sequential[i].Scenario.Name, concurrent[i].Scenario.Name)
		assert.Equal(t, sequential[i].Succeeded(), concurrent[i].Succeeded())
		assert.Equal(t, sequential[i].Result.Weights, concurrent[i].Result.Weights)
	}
}

func TestRunner_ObserverSeesEveryScenario(t *testing.T) {
	model := testModel(t)
	runner := newRunner(Config{Workers: 2})

	var mu sync.Mutex
	seen := map[string]bool{}
	runner.SetObserver(func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		seen[o.Scenario.Name] = o.Succeeded()
	})

	runner.Run(context.Background(), model, batch(model))

	assert.Equal(t, map[string]bool{
		"feasible":      true,
		"unreachable":   false,
		"malformed":     false,
		"unknown asset": true,
	}, seen)
}

func TestRunner_DuplicateNames(t *testing.T) {
	model := testModel(t)
	s := batch(model)[0]

	outcomes := newRunner(Config{}).Run(context.Background(), model, []domain.Scenario{s, s})

	assert.True(t, outcomes[0].Succeeded())
	var malformed *domain.MalformedScenarioError
	assert.True(t, errors.As(outcomes[1].Err, &malformed))
}

func TestRunner_CancelledContext(t *testing.T) {
	model := testModel(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := newRunner(Config{}).Run(ctx, model, batch(model)[:1])

	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, context.Canceled)
}

// blockingSolver waits for its context to end.
type blockingSolver struct{}

func (blockingSolver) Solve(ctx context.Context, set optimization.ConstraintSet, _ *mat.SymDense, _ []float64) optimization.Result {
	<-ctx.Done()
	return optimization.Result{Assets: set.Assets, Message: ctx.Err().Error()}
}

func TestRunner_SolverTimeout(t *testing.T) {
	model := testModel(t)
	runner := NewRunner(Config{SolverTimeout: 20 * time.Millisecond}, blockingSolver{}, zerolog.Nop())

	outcomes := runner.Run(context.Background(), model, batch(model)[:1])

	var nonConvergent *domain.InfeasibleOrNonConvergentError
	require.True(t, errors.As(outcomes[0].Err, &nonConvergent))
	assert.Equal(t, context.DeadlineExceeded.Error(), nonConvergent.Message)
	assert.GreaterOrEqual(t, outcomes[0].Duration, 20*time.Millisecond)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		scenario domain.Scenario
		wantErr  bool
	}{
		{"valid", domain.Scenario{Name: "ok", TargetReturn: 0.05, Constraints: map[string]float64{"SPY": 0.13}}, false},
		{"no constraints", domain.Scenario{Name: "ok", TargetReturn: -0.01}, false},
		{"empty name", domain.Scenario{TargetReturn: 0.05}, true},
		{"nan target", domain.Scenario{Name: "x", TargetReturn: math.NaN()}, true},
		{"infinite target", domain.Scenario{Name: "x", TargetReturn: math.Inf(1)}, true},
		{"minimum above one", domain.Scenario{Name: "x", Constraints: map[string]float64{"SPY": 1.5}}, true},
		{"negative minimum", domain.Scenario{Name: "x", Constraints: map[string]float64{"SPY": -0.1}}, true},
		{"nan minimum", domain.Scenario{Name: "x", Constraints: map[string]float64{"SPY": math.NaN()}}, true},
		{"empty asset", domain.Scenario{Name: "x", Constraints: map[string]float64{"": 0.1}}, true},
		{"undecodable", domain.Scenario{Name: "x", TargetReturn: 0.05, Malformed: "target_return is missing"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.scenario)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var malformed *domain.MalformedScenarioError
			assert.True(t, errors.As(err, &malformed))
		})
	}
}

func TestSummaryRows(t *testing.T) {
	model := testModel(t)
	outcomes := newRunner(Config{}).Run(context.Background(), model, batch(model))

	rows := SummaryRows(outcomes, 2008)
	require.Len(t, rows, 2)
	assert.Equal(t, "feasible", rows[0].Scenario)
	assert.Equal(t, "unknown asset", rows[1].Scenario)

	row := rows[0]
	assert.Equal(t, outcomes[0].Result.Objective, row.Volatility)
	assert.Equal(t, outcomes[0].Summary.Interval95.Lower, row.Lower95)
	require.Len(t, row.Allocations, model.Size())
	assert.Equal(t, domain.RiskFreeAsset, row.Allocations[len(row.Allocations)-1].Asset)
	require.NotNil(t, row.YearReturn)
	want, _ := outcomes[0].Summary.AnnualReturn(2008)
	assert.Equal(t, want, *row.YearReturn)

	rows = SummaryRows(outcomes, 1990)
	assert.Nil(t, rows[0].YearReturn)
}
