package runs

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/events"
	"github.com/aristath/allocator/internal/metrics"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/scenarios"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const eventModule = "runs"

// PriceLoader reads the price table for a run
type PriceLoader interface {
	Load(dir string) (domain.PriceTable, error)
}

// RunStore persists finished runs
type RunStore interface {
	Create(ctx context.Context, run *Run) error
}

// ReportWriter writes a run's report directory
type ReportWriter interface {
	WriteRun(dir string, outcomes []scenarios.Outcome) ([]string, error)
}

// Publisher copies a report directory somewhere else
type Publisher interface {
	Publish(ctx context.Context, localDir, prefix string) (int, error)
}

// Options holds the paths and core configuration a run uses.
type Options struct {
	PricesDir     string
	ScenariosFile string
	ReportsDir    string // empty disables reports
	PublishPrefix string
	Model         optimization.ModelOptions
	Runner        scenarios.Config
}

// Service executes scenario batches: load prices, build the model, solve
// every scenario, then persist, report and announce the result.
type Service struct {
	opts      Options
	loader    PriceLoader
	builder   *optimization.ReturnModelBuilder
	solver    optimization.Solver
	store     RunStore
	writer    ReportWriter
	publisher Publisher
	bus       *events.Bus
	metrics   *metrics.Metrics
	mu        sync.Mutex // one run at a time
	log       zerolog.Logger
}

// NewService creates a new run service.
func NewService(opts Options, loader PriceLoader, builder *optimization.ReturnModelBuilder, solver optimization.Solver, log zerolog.Logger) *Service {
	return &Service{
		opts:    opts,
		loader:  loader,
		builder: builder,
		solver:  solver,
		log:     log.With().Str("service", "runs").Logger(),
	}
}

// SetStore sets the run store (for dependency injection)
func (s *Service) SetStore(store RunStore) {
	s.store = store
}

// SetReportWriter sets the report writer (for dependency injection)
func (s *Service) SetReportWriter(writer ReportWriter) {
	s.writer = writer
}

// SetPublisher sets the report publisher (for dependency injection)
func (s *Service) SetPublisher(publisher Publisher) {
	s.publisher = publisher
}

// SetEventBus sets the event bus (for dependency injection)
func (s *Service) SetEventBus(bus *events.Bus) {
	s.bus = bus
}

// SetMetrics sets the metrics collectors (for dependency injection)
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Execute runs one batch. Run-fatal errors (no prices, insufficient data,
// unreadable scenario file) are returned together with the failed run record.
// Scenario failures are recorded in the run and never returned as errors.
func (s *Service) Execute(ctx context.Context, req Request) (*Run, []scenarios.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Trigger == "" {
		req.Trigger = TriggerCLI
	}
	run := &Run{
		ID:           uuid.NewString(),
		StartedAt:    time.Now().UTC(),
		Trigger:      req.Trigger,
		RiskFree:     s.opts.Model.RiskFree,
		RiskFreeRate: s.opts.Model.RiskFreeRate,
	}
	log := s.log.With().Str("run_id", run.ID).Logger()

	list := req.Scenarios
	if len(list) == 0 {
		loaded, err := scenarios.LoadFile(s.opts.ScenariosFile)
		if err != nil {
			return s.fail(ctx, run, err)
		}
		list = loaded
	}

	s.bus.Emit(eventModule, &events.RunStartedData{RunID: run.ID, Trigger: string(run.Trigger), Scenarios: len(list)})
	log.Info().Str("trigger", string(run.Trigger)).Int("scenarios", len(list)).Msg("Run started")

	table, err := s.loader.Load(s.opts.PricesDir)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	model, err := s.builder.Build(table, s.opts.Model)
	if err != nil {
		return s.fail(ctx, run, err)
	}
	run.Assets = model.Assets
	run.Periods = model.Series.Periods()

	runner := scenarios.NewRunner(s.opts.Runner, s.solver, s.log)
	runner.SetObserver(func(o scenarios.Outcome) {
		s.metrics.ObserveScenario(o.Succeeded(), o.Duration)
		if o.Succeeded() {
			s.bus.Emit(eventModule, &events.ScenarioCompletedData{
				RunID:        run.ID,
				Scenario:     o.Scenario.Name,
				TargetReturn: o.Scenario.TargetReturn,
				Volatility:   o.Result.Objective,
				Weights:      o.Result.WeightsByAsset(),
				DurationMs:   o.Duration.Milliseconds(),
			})
			return
		}
		s.bus.Emit(eventModule, &events.ScenarioFailedData{RunID: run.ID, Scenario: o.Scenario.Name, Error: o.Err.Error()})
	})

	outcomes := runner.Run(ctx, model, list)
	for _, o := range outcomes {
		if o.Succeeded() {
			run.Succeeded++
		} else {
			run.Failed++
		}
		run.Scenarios = append(run.Scenarios, RecordFromOutcome(o))
	}

	if s.writer != nil && s.opts.ReportsDir != "" {
		dir := filepath.Join(s.opts.ReportsDir, run.ID)
		if _, err := s.writer.WriteRun(dir, outcomes); err != nil {
			log.Error().Err(err).Msg("Failed to write reports")
		} else {
			run.ReportDir = dir
			s.publish(ctx, log, run)
		}
	}

	run.FinishedAt = time.Now().UTC()
	s.save(ctx, log, run)
	s.metrics.ObserveRun(string(run.Trigger), nil, run.FinishedAt.Sub(run.StartedAt))
	s.bus.Emit(eventModule, &events.RunCompletedData{
		RunID:      run.ID,
		Succeeded:  run.Succeeded,
		Failed:     run.Failed,
		ReportDir:  run.ReportDir,
		DurationMs: run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
	})
	log.Info().Int("succeeded", run.Succeeded).Int("failed", run.Failed).Msg("Run completed")

	return run, outcomes, nil
}

func (s *Service) publish(ctx context.Context, log zerolog.Logger, run *Run) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, run.ReportDir, path.Join(s.opts.PublishPrefix, run.ID)); err != nil {
		log.Error().Err(err).Msg("Failed to publish reports")
	}
}

func (s *Service) save(ctx context.Context, log zerolog.Logger, run *Run) {
	if s.store == nil {
		return
	}
	// Persist even if the caller's context was cancelled mid-run.
	if err := s.store.Create(context.WithoutCancel(ctx), run); err != nil {
		log.Error().Err(err).Msg("Failed to save run")
	}
}

func (s *Service) fail(ctx context.Context, run *Run, err error) (*Run, []scenarios.Outcome, error) {
	run.Error = err.Error()
	run.FinishedAt = time.Now().UTC()
	log := s.log.With().Str("run_id", run.ID).Logger()
	log.Error().Err(err).Msg("Run failed")

	s.save(ctx, log, run)
	s.metrics.ObserveRun(string(run.Trigger), err, run.FinishedAt.Sub(run.StartedAt))
	s.bus.Emit(eventModule, &events.RunFailedData{RunID: run.ID, Error: run.Error})
	return run, nil, fmt.Errorf("run %s failed: %w", run.ID, err)
}
