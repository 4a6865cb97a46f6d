package runs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun(id string, started time.Time) *Run {
	dd, lo, hi := -0.12, -0.05, 0.15
	return &Run{
		ID:           id,
		StartedAt:    started,
		FinishedAt:   started.Add(2 * time.Second),
		Trigger:      TriggerAPI,
		Assets:       []string{"BA", "SPY", "Risk-Free"},
		Periods:      60,
		RiskFree:     true,
		RiskFreeRate: 0.04,
		Succeeded:    1,
		Failed:       1,
		ReportDir:    "/reports/" + id,
		Scenarios: []ScenarioRecord{
			{
				Name: "Conservative_5_Percent", TargetReturn: 0.05, Converged: true,
				Message: "Optimization terminated successfully", Volatility: 0.06,
				Weights:     map[string]float64{"BA": 0.1, "SPY": 0.3, "Risk-Free": 0.6},
				MaxDrawdown: &dd, Lower95: &lo, Upper95: &hi,
				Diagnostics: []string{"constrained asset missing"}, DurationMs: 12,
			},
			{
				Name: "Impossible", TargetReturn: 5, Message: "constraints are infeasible",
				Weights: map[string]float64{}, Error: "optimization failed", DurationMs: 3,
			},
		},
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := NewRepository(newTestDB(t).Conn())
	ctx := context.Background()
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, sampleRun("r1", started)))

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got)

	want := sampleRun("r1", started)
	assert.Equal(t, want.Assets, got.Assets)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, TriggerAPI, got.Trigger)
	assert.Equal(t, 60, got.Periods)
	assert.True(t, got.RiskFree)
	require.Len(t, got.Scenarios, 2)

	first := got.Scenarios[0]
	assert.Equal(t, "Conservative_5_Percent", first.Name)
	assert.True(t, first.Converged)
	assert.Equal(t, 0.6, first.Weights["Risk-Free"])
	require.NotNil(t, first.MaxDrawdown)
	assert.Equal(t, -0.12, *first.MaxDrawdown)
	assert.Equal(t, []string{"constrained asset missing"}, first.Diagnostics)

	second := got.Scenarios[1]
	assert.Nil(t, second.MaxDrawdown)
	assert.Equal(t, "optimization failed", second.Error)
}

func TestRepository_GetMissing(t *testing.T) {
	repo := NewRepository(newTestDB(t).Conn())
	got, err := repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_DuplicateIDRollsBack(t *testing.T) {
	repo := NewRepository(newTestDB(t).Conn())
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, sampleRun("r1", now)))
	assert.Error(t, repo.Create(ctx, sampleRun("r1", now)))

	got, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Len(t, got.Scenarios, 2)
}

func TestRepository_ListNewestFirst(t *testing.T) {
	repo := NewRepository(newTestDB(t).Conn())
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Create(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour))))
	}

	list, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Empty(t, list[0].Scenarios)

	all, err := repo.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
