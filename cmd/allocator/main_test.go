package main

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePrices writes monthly closes from January 2006 for a few assets.
func writePrices(t *testing.T, dir string, months int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	drifts := map[string]float64{"SPY": 0.008, "BA": 0.010, "TLT": 0.003}
	phase := map[string]float64{"SPY": 0, "BA": 1.3, "TLT": 2.1}
	start := time.Date(2006, time.January, 1, 0, 0, 0, 0, time.UTC)

	for asset, drift := range drifts {
		var b strings.Builder
		b.WriteString("Date,Open,Close\n")
		price := 100.0
		for i := 0; i <= months; i++ {
			if i > 0 {
				price *= math.Exp(drift + 0.03*math.Sin(float64(i)*0.9+phase[asset]))
			}
			fmt.Fprintf(&b, "%s,0,%.4f\n", start.AddDate(0, i, 0).Format("2006-01-02"), price)
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, asset+".csv"), []byte(b.String()), 0644))
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ALLOCATOR_DATA_DIR", dir)
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "allocator dev")
	assert.Contains(t, out, "go: go")
}

func TestCheckCommand(t *testing.T) {
	dir := testEnv(t)
	writePrices(t, filepath.Join(dir, "prices"), 24)

	out, _, err := execute(t, "check")

	require.NoError(t, err)
	assert.Contains(t, out, "Asset")
	assert.Contains(t, out, "SPY")
	assert.Contains(t, out, "2006-01-01")
	assert.Contains(t, out, "25 aligned dates, 24 return periods")
}

func TestCheckCommand_InsufficientData(t *testing.T) {
	dir := testEnv(t)
	writePrices(t, filepath.Join(dir, "prices"), 1)

	_, stderr, err := execute(t, "check")

	var insufficient *domain.InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 1, insufficient.Periods)
	assert.Contains(t, stderr, "insufficient price history")
}

func TestCheckCommand_MissingDirectory(t *testing.T) {
	testEnv(t)

	_, _, err := execute(t, "check", "--prices", filepath.Join(t.TempDir(), "nope"))

	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	dir := testEnv(t)
	writePrices(t, filepath.Join(dir, "prices"), 36)

	out, _, err := execute(t, "run", "--no-charts")

	require.NoError(t, err)
	assert.Contains(t, out, "succeeded")
	assert.Contains(t, out, "Scenario")
	assert.Contains(t, out, "Reports written to")
	assert.FileExists(t, filepath.Join(dir, "allocator.db"))

	entries, err := os.ReadDir(filepath.Join(dir, "reports"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "one directory per run")
	assert.FileExists(t, filepath.Join(dir, "reports", entries[0].Name(), "scenarios_comparison_summary.csv"))
}

func TestRunCommand_NoReports(t *testing.T) {
	dir := testEnv(t)
	writePrices(t, filepath.Join(dir, "prices"), 36)

	out, _, err := execute(t, "run", "--no-reports")

	require.NoError(t, err)
	assert.NotContains(t, out, "Reports written to")
	assert.NoDirExists(t, filepath.Join(dir, "reports"))
}

func TestRunCommand_MissingPrices(t *testing.T) {
	testEnv(t)

	_, stderr, err := execute(t, "run")

	assert.Error(t, err)
	assert.Contains(t, stderr, "Error:")
}

func TestRunOptions_Apply(t *testing.T) {
	dir := testEnv(t)
	writePrices(t, filepath.Join(dir, "prices"), 2)

	tests := []struct {
		name  string
		opts  runOptions
		check func(t *testing.T, reports string, charts bool, workers int)
	}{
		{"defaults", runOptions{}, func(t *testing.T, reports string, charts bool, workers int) {
			assert.Equal(t, filepath.Join(dir, "reports"), reports)
			assert.True(t, charts)
			assert.Equal(t, 1, workers)
		}},
		{"overrides", runOptions{ReportsDir: "/tmp/out", NoCharts: true, Workers: 3}, func(t *testing.T, reports string, charts bool, workers int) {
			assert.Equal(t, "/tmp/out", reports)
			assert.False(t, charts)
			assert.Equal(t, 3, workers)
		}},
		{"no reports wins", runOptions{ReportsDir: "/tmp/out", NoReports: true}, func(t *testing.T, reports string, _ bool, _ int) {
			assert.Empty(t, reports)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RUN_SCHEDULE", "@daily")
			cfg, err := config.Load()
			require.NoError(t, err)

			require.NoError(t, tt.opts.apply(cfg))
			assert.Empty(t, cfg.RunSchedule)
			tt.check(t, cfg.ReportsDir, cfg.ChartsEnabled, cfg.Workers)
		})
	}
}
