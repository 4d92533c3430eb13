package activities

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"dev/bravebird/frametime-bench/pkg/bench"
	"dev/bravebird/frametime-bench/pkg/database"
	"dev/bravebird/frametime-bench/pkg/models"
	"dev/bravebird/frametime-bench/pkg/temporal/workflows"
)

const heartbeatInterval = 10 * time.Second

// Activities holds activity implementations
type Activities struct {
	// DB is optional; without it results only live in the workflow result
	DB       *database.DB
	Pipeline *bench.Pipeline
	LookPath bench.LookPathFunc

	// the cargo workspace is shared, so profiles build one at a time
	mu sync.Mutex
}

// NewActivities creates new activities
func NewActivities(db *database.DB, pipeline *bench.Pipeline) *Activities {
	return &Activities{
		DB:       db,
		Pipeline: pipeline,
	}
}

// CheckDepsActivity fails without retries when a build tool is missing
func (a *Activities) CheckDepsActivity(ctx context.Context) error {
	logger := activity.GetLogger(ctx)

	if err := bench.CheckDeps(a.LookPath, bench.RequiredPrograms); err != nil {
		logger.Error("Dependency check failed", "error", err)
		return temporal.NewNonRetryableApplicationError(err.Error(), workflows.MissingDependencyError, err)
	}
	return nil
}

// UpdateRunStatusActivity stores the run's status
func (a *Activities) UpdateRunStatusActivity(ctx context.Context, input workflows.RunStatusInput) error {
	if a.DB == nil {
		return nil
	}
	activity.GetLogger(ctx).Info("Updating run status", "runID", input.RunID, "status", input.Status)
	return a.DB.UpdateRunStatus(ctx, input.RunID, input.Status, input.ErrorMessage)
}

// BenchProfileActivity builds one profile and measures it under every wasm-opt level
func (a *Activities) BenchProfileActivity(ctx context.Context, input workflows.ProfileInput) ([]models.BenchResult, error) {
	logger := activity.GetLogger(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()

	logger.Info("Benchmarking profile", "profile", input.Profile.String(), "variants", len(input.WasmOpts))

	p := a.Pipeline.WithLogger(logger).WithHeadless(input.Headless)
	if input.MeasureTimeout > 0 {
		p = p.WithMeasureTimeout(time.Duration(input.MeasureTimeout) * time.Second)
	}

	// cargo build reports nothing for minutes at a time
	stop := keepAlive(ctx, heartbeatInterval)
	defer stop()

	if err := p.PrepareAssets(); err != nil {
		return nil, err
	}

	results := make([]models.BenchResult, 0, len(input.WasmOpts))
	err := p.RunProfile(ctx, input.Profile, input.WasmOpts, func(r models.BenchResult) error {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		r.ID = id.String()
		r.RunID = input.RunID
		results = append(results, r)

		activity.RecordHeartbeat(ctx, fmt.Sprintf("Measured %d/%d", len(results), len(input.WasmOpts)))
		return nil
	})
	if errors.Is(err, bench.ErrNoMeasurement) {
		return nil, temporal.NewApplicationErrorWithCause(err.Error(), workflows.NoMeasurementError, err)
	}
	if err != nil {
		return nil, err
	}

	return results, nil
}

// RecordResultsActivity persists measured results
func (a *Activities) RecordResultsActivity(ctx context.Context, input workflows.RecordInput) error {
	if a.DB == nil || len(input.Results) == 0 {
		return nil
	}
	activity.GetLogger(ctx).Info("Recording results", "runID", input.RunID, "count", len(input.Results))

	if err := a.DB.CreateResults(ctx, input.Results); err != nil {
		return fmt.Errorf("failed to record results: %w", err)
	}
	return nil
}

// keepAlive heartbeats until stop is called
func keepAlive(ctx context.Context, every time.Duration) (stop func()) {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, "working")
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}
