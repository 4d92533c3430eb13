package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"dev/bravebird/frametime-bench/pkg/matrix"
	"dev/bravebird/frametime-bench/pkg/models"
)

const (
	TaskQueue = "frametime-bench"

	// ProgressQuery returns the BenchmarkResult collected so far
	ProgressQuery = "getProgress"

	MissingDependencyError = "MissingDependencyError"
	NoMeasurementError     = "NoMeasurementError"

	defaultTimeout       = 3600
	defaultRetryAttempts = 3
)

// BenchmarkWorkflow runs a build matrix: every profile is built and measured by one
// activity, and its results are recorded before the next profile starts.
func BenchmarkWorkflow(ctx workflow.Context, input models.BenchmarkInput) (models.BenchmarkResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting benchmark workflow", "runID", input.RunID, "name", input.Name)

	result := models.BenchmarkResult{
		RunID:   input.RunID,
		Status:  models.StatusRunning,
		Results: []models.BenchResult{},
	}

	// Register query handler for real-time progress
	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (models.BenchmarkResult, error) {
		return result, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
	}

	startTime := workflow.Now(ctx)
	ctx = workflow.WithActivityOptions(ctx, activityOptions(input))

	finish := func(status models.RunStatus, msg string) (models.BenchmarkResult, error) {
		result.Status = status
		result.ErrorMessage = msg
		result.TotalDuration = workflow.Now(ctx).Sub(startTime).Milliseconds()

		// Still runs when the workflow itself was canceled
		dctx, _ := workflow.NewDisconnectedContext(ctx)
		setStatus(dctx, input.RunID, status, msg)

		logger.Info("Workflow completed", "status", status, "results", len(result.Results), "duration", result.TotalDuration)
		return result, nil
	}

	plan, err := matrix.Resolve(input.Selection)
	if err != nil {
		return finish(models.StatusFailed, "Invalid selection: "+err.Error())
	}
	result.Total = plan.Size()

	setStatus(ctx, input.RunID, models.StatusRunning, "")

	if err := workflow.ExecuteActivity(ctx, "CheckDepsActivity").Get(ctx, nil); err != nil {
		return finish(statusFor(err), "Dependency check failed: "+err.Error())
	}

	for _, profile := range plan.Profiles {
		logger.Info("Benchmarking profile", "profile", profile.String())

		var results []models.BenchResult
		err := workflow.ExecuteActivity(ctx, "BenchProfileActivity", ProfileInput{
			RunID:          input.RunID,
			Profile:        profile,
			WasmOpts:       plan.WasmOpts,
			Headless:       input.Headless,
			MeasureTimeout: input.MeasureTimeout,
		}).Get(ctx, &results)
		if err != nil {
			return finish(statusFor(err), profile.String()+": "+err.Error())
		}

		err = workflow.ExecuteActivity(ctx, "RecordResultsActivity", RecordInput{
			RunID:   input.RunID,
			Results: results,
		}).Get(ctx, nil)
		if err != nil {
			logger.Warn("Failed to record results", "profile", profile.String(), "error", err)
		}

		result.Results = append(result.Results, results...)
	}

	return finish(models.StatusSuccess, "")
}

func activityOptions(input models.BenchmarkInput) workflow.ActivityOptions {
	timeout := input.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := input.RetryAttempts
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}

	return workflow.ActivityOptions{
		StartToCloseTimeout: time.Duration(timeout) * time.Second,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        int32(attempts),
			NonRetryableErrorTypes: []string{MissingDependencyError},
		},
	}
}

func setStatus(ctx workflow.Context, runID string, status models.RunStatus, msg string) {
	err := workflow.ExecuteActivity(ctx, "UpdateRunStatusActivity", RunStatusInput{
		RunID:        runID,
		Status:       status,
		ErrorMessage: msg,
	}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Failed to update run status", "status", status, "error", err)
	}
}

func statusFor(err error) models.RunStatus {
	if temporal.IsCanceledError(err) {
		return models.StatusCanceled
	}
	return models.StatusFailed
}

// ProfileInput is the input for building and measuring one profile
type ProfileInput struct {
	RunID          string           `json:"run_id"`
	Profile        matrix.Profile   `json:"profile"`
	WasmOpts       []matrix.WasmOpt `json:"wasm_opts"`
	Headless       bool             `json:"headless"`
	MeasureTimeout int              `json:"measure_timeout_seconds"`
}

// RecordInput is the input for persisting results
type RecordInput struct {
	RunID   string               `json:"run_id"`
	Results []models.BenchResult `json:"results"`
}

// RunStatusInput is the input for updating a run's status
type RunStatusInput struct {
	RunID        string           `json:"run_id"`
	Status       models.RunStatus `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
}
