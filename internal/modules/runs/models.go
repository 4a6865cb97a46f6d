// Package runs executes scenario batches end to end and keeps their history.
package runs

import (
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/scenarios"
)

// Trigger records what started a run
type Trigger string

const (
	TriggerCLI      Trigger = "cli"
	TriggerAPI      Trigger = "api"
	TriggerSchedule Trigger = "schedule"
)

// Request asks for one run. Without scenarios the configured scenario file
// (or the built-in defaults) is used.
type Request struct {
	Scenarios []domain.Scenario `json:"scenarios,omitempty"`
	Trigger   Trigger           `json:"-"`
}

// Run is the persisted record of one batch.
type Run struct {
	ID           string           `json:"id"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   time.Time        `json:"finished_at"`
	Trigger      Trigger          `json:"trigger"`
	Assets       []string         `json:"assets"`
	Periods      int              `json:"periods"`
	RiskFree     bool             `json:"risk_free"`
	RiskFreeRate float64          `json:"risk_free_rate"`
	Succeeded    int              `json:"succeeded"`
	Failed       int              `json:"failed"`
	ReportDir    string           `json:"report_dir,omitempty"`
	Error        string           `json:"error,omitempty"`
	Scenarios    []ScenarioRecord `json:"scenarios,omitempty"`
}

// ScenarioRecord is the persisted result of one scenario.
type ScenarioRecord struct {
	Name         string             `json:"name"`
	TargetReturn float64            `json:"target_return"`
	Converged    bool               `json:"converged"`
	Message      string             `json:"message"`
	Volatility   float64            `json:"volatility"`
	Weights      map[string]float64 `json:"weights"`
	MaxDrawdown  *float64           `json:"max_drawdown,omitempty"`
	Lower95      *float64           `json:"lower_95,omitempty"`
	Upper95      *float64           `json:"upper_95,omitempty"`
	Diagnostics  []string           `json:"diagnostics,omitempty"`
	Error        string             `json:"error,omitempty"`
	DurationMs   int64              `json:"duration_ms"`
}

// RecordFromOutcome converts a runner outcome into its persisted form.
func RecordFromOutcome(o scenarios.Outcome) ScenarioRecord {
	rec := ScenarioRecord{
		Name:         o.Scenario.Name,
		TargetReturn: o.Scenario.TargetReturn,
		Converged:    o.Result.Converged,
		Message:      o.Result.Message,
		Volatility:   o.Result.Objective,
		Weights:      o.Result.WeightsByAsset(),
		Diagnostics:  o.Constraints.Diagnostics,
		DurationMs:   o.Duration.Milliseconds(),
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	if o.Summary != nil {
		dd, lo, hi := o.Summary.MaxDrawdown, o.Summary.Interval95.Lower, o.Summary.Interval95.Upper
		rec.MaxDrawdown, rec.Lower95, rec.Upper95 = &dd, &lo, &hi
	}
	return rec
}
