package scheduler

import (
	"context"
	"time"

	"github.com/aristath/allocator/internal/modules/runs"
	"github.com/aristath/allocator/internal/modules/scenarios"
	"github.com/rs/zerolog"
)

// RunExecutor executes a scenario batch
type RunExecutor interface {
	Execute(ctx context.Context, req runs.Request) (*runs.Run, []scenarios.Outcome, error)
}

// RunScenariosJob runs the configured scenario batch on a schedule.
type RunScenariosJob struct {
	executor RunExecutor
	timeout  time.Duration
	log      zerolog.Logger
}

// NewRunScenariosJob creates a new scheduled run job. A positive timeout
// bounds the whole run.
func NewRunScenariosJob(executor RunExecutor, timeout time.Duration, log zerolog.Logger) *RunScenariosJob {
	return &RunScenariosJob{
		executor: executor,
		timeout:  timeout,
		log:      log.With().Str("job", "run_scenarios").Logger(),
	}
}

// Run executes the job
func (j *RunScenariosJob) Run() error {
	ctx := context.Background()
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	run, _, err := j.executor.Execute(ctx, runs.Request{Trigger: runs.TriggerSchedule})
	if err != nil {
		return err
	}

	j.log.Info().
		Str("run_id", run.ID).
		Int("succeeded", run.Succeeded).
		Int("failed", run.Failed).
		Msg("Scheduled run finished")
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *RunScenariosJob) Name() string {
	return "run_scenarios"
}
