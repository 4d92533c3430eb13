package models

import (
	"time"
)

// ==================== Run Types ====================

// BenchRun represents one execution of the build matrix
type BenchRun struct {
	ID                 string     `json:"id" db:"id"`
	Name               string     `json:"name" db:"name"`
	TemporalWorkflowID string     `json:"temporal_workflow_id" db:"temporal_workflow_id"`
	TemporalRunID      string     `json:"temporal_run_id" db:"temporal_run_id"`
	Status             RunStatus  `json:"status" db:"status"`
	SelectionJSON      string     `json:"selection" db:"selection"` // JSON string
	Headless           bool       `json:"headless" db:"headless"`
	StartedAt          *time.Time `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time `json:"completed_at" db:"completed_at"`
	ErrorMessage       string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`

	// Computed fields
	Results []BenchResult `json:"results,omitempty"`
}

// RunStatus represents the status of a benchmark run
type RunStatus string

const (
	StatusPending  RunStatus = "pending"
	StatusRunning  RunStatus = "running"
	StatusSuccess  RunStatus = "success"
	StatusFailed   RunStatus = "failed"
	StatusCanceled RunStatus = "canceled"
)

// Done reports whether the status is terminal
func (s RunStatus) Done() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCanceled
}

// ==================== Result Types ====================

// BenchResult is one row of the benchmark: a build configuration and what it measured.
// Times are in seconds, sizes in bytes, frame time in milliseconds.
type BenchResult struct {
	ID           string    `json:"id" db:"id"`
	RunID        string    `json:"run_id" db:"run_id"`
	OptLevel     string    `json:"opt_level" db:"opt_level"`
	WasmOpt      string    `json:"wasm_opt" db:"wasm_opt"`
	Lto          string    `json:"lto" db:"lto"`
	CodegenUnits string    `json:"codegen_units" db:"codegen_units"`
	Strip        string    `json:"strip" db:"strip"`
	Panic        string    `json:"panic" db:"panic"`
	BuildTime    float64   `json:"build_time" db:"build_time"`
	WasmOptTime  float64   `json:"wasm_opt_time" db:"wasm_opt_time"`
	Size         int64     `json:"size" db:"size"`
	SizeGzipped  int64     `json:"size_gzipped" db:"size_gzipped"`
	FrameTime    float64   `json:"frame_time" db:"frame_time"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// TotalBuildTime is the cargo build time plus the wasm-opt time
func (r BenchResult) TotalBuildTime() float64 {
	return r.BuildTime + r.WasmOptTime
}

// ==================== Matrix Types ====================

// MatrixSelection picks the levels of each build option to benchmark.
// An empty list means the default levels for that dimension.
type MatrixSelection struct {
	OptLevels    []string `json:"opt_levels,omitempty"`
	Lto          []string `json:"lto,omitempty"`
	CodegenUnits []string `json:"codegen_units,omitempty"`
	Strip        []string `json:"strip,omitempty"`
	Panic        []string `json:"panic,omitempty"`
	WasmOpt      []string `json:"wasm_opt,omitempty"`
}

// ==================== Workflow Types ====================

// BenchmarkInput represents input for the benchmark workflow
type BenchmarkInput struct {
	RunID          string          `json:"run_id"`
	Name           string          `json:"name"`
	Selection      MatrixSelection `json:"selection"`
	Headless       bool            `json:"headless"`
	Timeout        int             `json:"timeout_seconds"`
	MeasureTimeout int             `json:"measure_timeout_seconds"`
	RetryAttempts  int             `json:"retry_attempts"`
}

// BenchmarkResult represents the result of a benchmark workflow
type BenchmarkResult struct {
	RunID         string        `json:"run_id"`
	Status        RunStatus     `json:"status"`
	Results       []BenchResult `json:"results"`
	Total         int           `json:"total"`
	TotalDuration int64         `json:"total_duration_ms"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// ==================== API Request/Response Types ====================

// StartRunRequest represents a request to start a matrix run
type StartRunRequest struct {
	Name      string          `json:"name"`
	Selection MatrixSelection `json:"selection"`
	Headless  bool            `json:"headless"`
}

// ==================== WebSocket Message Types ====================

// WSMessage represents a WebSocket message for real-time updates
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
