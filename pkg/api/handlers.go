package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.temporal.io/sdk/client"

	"dev/bravebird/frametime-bench/pkg/analysis"
	"dev/bravebird/frametime-bench/pkg/database"
	"dev/bravebird/frametime-bench/pkg/matrix"
	"dev/bravebird/frametime-bench/pkg/models"
	"dev/bravebird/frametime-bench/pkg/results"
	"dev/bravebird/frametime-bench/pkg/temporal/workflows"
)

const WorkflowName = "BenchmarkWorkflow"

// WorkflowID is the Temporal workflow ID a run is started under
func WorkflowID(runID string) string {
	return "frametime-bench-" + runID
}

// Handlers contains API handlers
type Handlers struct {
	db             *database.DB
	temporalClient client.Client
	upgrader       websocket.Upgrader
	pollInterval   time.Duration
}

// NewHandlers creates new API handlers. db may be nil.
func NewHandlers(db *database.DB, temporalClient client.Client) *Handlers {
	return &Handlers{
		db:             db,
		temporalClient: temporalClient,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pollInterval: 500 * time.Millisecond,
	}
}

// ==================== Matrix Handlers ====================

// ListOptions lists the levels of every matrix dimension
func (h *Handlers) ListOptions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"opt_levels":    matrix.OptLevels,
		"lto":           matrix.Ltos,
		"codegen_units": matrix.AllCodegenUnits,
		"strip":         matrix.Strips,
		"panic":         matrix.Panics,
		"wasm_opt":      matrix.WasmOpts,
	})
}

// ==================== Run Handlers ====================

// StartRun validates the selection and starts a benchmark workflow
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	plan, err := matrix.Resolve(req.Selection)
	if err != nil {
		http.Error(w, "Invalid selection: "+err.Error(), http.StatusBadRequest)
		return
	}

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}
	if h.temporalClient == nil {
		http.Error(w, "Temporal not available", http.StatusServiceUnavailable)
		return
	}

	runID := uuid.New().String()
	if req.Name == "" {
		req.Name = "run-" + runID[:8]
	}
	selectionJSON, _ := json.Marshal(req.Selection)

	run := &models.BenchRun{
		ID:            runID,
		Name:          req.Name,
		Status:        models.StatusPending,
		SelectionJSON: string(selectionJSON),
		Headless:      req.Headless,
	}
	if err := h.db.CreateRun(ctx, run); err != nil {
		http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	input := models.BenchmarkInput{
		RunID:         runID,
		Name:          req.Name,
		Selection:     req.Selection,
		Headless:      req.Headless,
		Timeout:       3600,
		RetryAttempts: 3,
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        WorkflowID(runID),
		TaskQueue: workflows.TaskQueue,
	}

	we, err := h.temporalClient.ExecuteWorkflow(ctx, workflowOptions, WorkflowName, input)
	if err != nil {
		if uerr := h.db.UpdateRunStatus(ctx, runID, models.StatusFailed, err.Error()); uerr != nil {
			log.Printf("Warning: failed to mark run %s failed: %v", runID, uerr)
		}
		http.Error(w, "Failed to start workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if err := h.db.UpdateRunTemporal(ctx, runID, we.GetID(), we.GetRunID()); err != nil {
		http.Error(w, "Failed to update run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"run_id":               runID,
		"temporal_workflow_id": we.GetID(),
		"temporal_run_id":      we.GetRunID(),
		"total":                plan.Size(),
		"status":               models.StatusPending,
	})
}

// ListRuns lists all runs, newest first
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	runs, err := h.db.ListRuns(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, runs)
}

// loadRun writes the error response itself and returns nil when the run cannot be served
func (h *Handlers) loadRun(w http.ResponseWriter, r *http.Request) *models.BenchRun {
	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return nil
	}

	ctx := r.Context()
	id := mux.Vars(r)["id"]

	run, err := h.db.GetRun(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return nil
	}

	run.Results, err = h.db.ListResults(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil
	}
	return run
}

// GetRun retrieves a run with its results
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	if run := h.loadRun(w, r); run != nil {
		respondJSON(w, run)
	}
}

// GetRunSummary reports how each build option affected the run's results
func (h *Handlers) GetRunSummary(w http.ResponseWriter, r *http.Request) {
	if run := h.loadRun(w, r); run != nil {
		respondJSON(w, analysis.Summarize(run.Results))
	}
}

// GetRunCSV downloads the run's results in the out.csv format
func (h *Handlers) GetRunCSV(w http.ResponseWriter, r *http.Request) {
	if run := h.loadRun(w, r); run != nil {
		writeResultsCSV(w, run.Name, run.Results)
	}
}

func writeResultsCSV(w http.ResponseWriter, name string, rs []models.BenchResult) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
	if err := results.WriteAll(w, rs); err != nil {
		// headers are already sent
		log.Printf("Warning: failed to write CSV for %s: %v", name, err)
	}
}

// CancelRun cancels a running benchmark
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.db.GetRun(ctx, id)
	if err != nil || run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.Status.Done() {
		http.Error(w, "Run already "+string(run.Status), http.StatusConflict)
		return
	}

	// Cancel Temporal workflow
	if run.TemporalWorkflowID != "" && h.temporalClient != nil {
		err = h.temporalClient.CancelWorkflow(ctx, run.TemporalWorkflowID, run.TemporalRunID)
		if err != nil {
			http.Error(w, "Failed to cancel workflow: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := h.db.UpdateRunStatus(ctx, id, models.StatusCanceled, "Cancelled by user"); err != nil {
		log.Printf("Warning: failed to mark run %s canceled: %v", id, err)
		http.Error(w, "Failed to update run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]string{"status": string(models.StatusCanceled)})
}

// progress asks the workflow first and falls back to the database
func (h *Handlers) progress(r *http.Request, runID string) (models.BenchmarkResult, bool) {
	ctx := r.Context()

	if h.temporalClient != nil {
		queryResp, err := h.temporalClient.QueryWorkflow(ctx, WorkflowID(runID), "", workflows.ProgressQuery)
		if err == nil {
			var result models.BenchmarkResult
			if queryResp.Get(&result) == nil && result.Status != "" {
				return result, true
			}
		}
	}

	if h.db != nil {
		run, err := h.db.GetRun(ctx, runID)
		if err != nil || run == nil {
			return models.BenchmarkResult{}, false
		}
		results, _ := h.db.ListResults(ctx, runID)
		return models.BenchmarkResult{
			RunID:        runID,
			Status:       run.Status,
			Results:      results,
			ErrorMessage: run.ErrorMessage,
		}, true
	}

	return models.BenchmarkResult{}, false
}

// StreamRunUpdates streams run progress via WebSocket until the run finishes
func (h *Handlers) StreamRunUpdates(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var lastStatus models.RunStatus
	lastCount := -1

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, ok := h.progress(r, runID)
			if !ok {
				continue
			}

			// Send update if status or results changed
			if result.Status == lastStatus && len(result.Results) == lastCount {
				continue
			}

			msg := models.WSMessage{
				Type:    "run_update",
				Payload: result,
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}

			lastStatus = result.Status
			lastCount = len(result.Results)

			if result.Status.Done() {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
		}
	}
}

// ==================== Helpers ====================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
