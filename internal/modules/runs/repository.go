package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/allocator/internal/database"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 20

// Repository stores run history in the allocator database.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new run repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a run and its scenarios in one transaction.
func (r *Repository) Create(ctx context.Context, run *Run) error {
	assets, err := json.Marshal(run.Assets)
	if err != nil {
		return fmt.Errorf("failed to marshal assets: %w", err)
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, started_at, finished_at, trigger, assets, periods,
				risk_free, risk_free_rate, succeeded, failed, report_dir, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), string(run.Trigger),
			string(assets), run.Periods, run.RiskFree, run.RiskFreeRate,
			run.Succeeded, run.Failed, run.ReportDir, run.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
		}

		for i, s := range run.Scenarios {
			weights, err := json.Marshal(s.Weights)
			if err != nil {
				return fmt.Errorf("failed to marshal weights: %w", err)
			}
			diagnostics, err := json.Marshal(s.Diagnostics)
			if err != nil {
				return fmt.Errorf("failed to marshal diagnostics: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO run_scenarios (run_id, position, name, target_return, converged,
					message, volatility, weights, max_drawdown, lower_95, upper_95,
					diagnostics, error, duration_ms)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				run.ID, i, s.Name, s.TargetReturn, s.Converged, s.Message, s.Volatility,
				string(weights), nullFloat(s.MaxDrawdown), nullFloat(s.Lower95), nullFloat(s.Upper95),
				string(diagnostics), s.Error, s.DurationMs,
			)
			if err != nil {
				return fmt.Errorf("failed to insert scenario %s: %w", s.Name, err)
			}
		}
		return nil
	})
}

// Get returns a run with its scenarios, or nil if it does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, trigger, assets, periods, risk_free,
			risk_free_rate, succeeded, failed, report_dir, error
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT name, target_return, converged, message, volatility, weights,
			max_drawdown, lower_95, upper_95, diagnostics, error, duration_ms
		FROM run_scenarios WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenarios for run %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s                       ScenarioRecord
			weights, diagnostics    string
			maxDD, lower95, upper95 sql.NullFloat64
		)
		if err := rows.Scan(&s.Name, &s.TargetReturn, &s.Converged, &s.Message, &s.Volatility,
			&weights, &maxDD, &lower95, &upper95, &diagnostics, &s.Error, &s.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan scenario: %w", err)
		}
		if err := json.Unmarshal([]byte(weights), &s.Weights); err != nil {
			return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
		}
		if err := json.Unmarshal([]byte(diagnostics), &s.Diagnostics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal diagnostics: %w", err)
		}
		s.MaxDrawdown, s.Lower95, s.Upper95 = floatPtr(maxDD), floatPtr(lower95), floatPtr(upper95)
		run.Scenarios = append(run.Scenarios, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scenarios: %w", err)
	}

	return run, nil
}

// List returns the most recent runs without their scenarios.
func (r *Repository) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, trigger, assets, periods, risk_free,
			risk_free_rate, succeeded, failed, report_dir, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run               Run
		started, finished int64
		trigger, assets   string
	)
	if err := row.Scan(&run.ID, &started, &finished, &trigger, &assets, &run.Periods,
		&run.RiskFree, &run.RiskFreeRate, &run.Succeeded, &run.Failed, &run.ReportDir, &run.Error); err != nil {
		return nil, err
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	run.FinishedAt = time.UnixMilli(finished).UTC()
	run.Trigger = Trigger(trigger)
	if err := json.Unmarshal([]byte(assets), &run.Assets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assets: %w", err)
	}
	return &run, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
