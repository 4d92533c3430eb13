// Package analysis compares benchmark results per build option
package analysis

import (
	"dev/bravebird/frametime-bench/pkg/models"
)

// Factors are the option columns results are grouped by
var Factors = []string{"opt_level", "wasm_opt", "lto", "codegen_units", "strip", "panic"}

// Baselines are the reference level of each factor
var Baselines = map[string]string{
	"opt_level":     "Three",
	"wasm_opt":      "None",
	"strip":         "None",
	"lto":           "Off",
	"codegen_units": "Default",
	"panic":         "Unwind",
}

// LevelSummary aggregates the results sharing one level of a factor
type LevelSummary struct {
	Level              string  `json:"level"`
	Count              int     `json:"count"`
	MeanFrameTime      float64 `json:"mean_frame_time"`
	MeanSizeGzipped    float64 `json:"mean_size_gzipped"`
	MeanTotalBuildTime float64 `json:"mean_total_build_time"`
	// FrameTimeDelta is MeanFrameTime minus the baseline level's, 0 without a baseline
	FrameTimeDelta float64 `json:"frame_time_delta"`
	Baseline       bool    `json:"baseline"`
}

// FactorSummary holds every level seen for a factor, in first-seen order
type FactorSummary struct {
	Factor      string         `json:"factor"`
	Baseline    string         `json:"baseline"`
	HasBaseline bool           `json:"has_baseline"`
	Levels      []LevelSummary `json:"levels"`
}

// Summarize groups results by each factor
func Summarize(results []models.BenchResult) []FactorSummary {
	summaries := make([]FactorSummary, 0, len(Factors))
	for _, factor := range Factors {
		summaries = append(summaries, summarizeFactor(factor, results))
	}
	return summaries
}

func summarizeFactor(factor string, results []models.BenchResult) FactorSummary {
	type acc struct {
		n                     int
		frame, size, buildSum float64
	}

	var order []string
	groups := make(map[string]*acc)
	for _, r := range results {
		level := Level(r, factor)
		a, ok := groups[level]
		if !ok {
			a = &acc{}
			groups[level] = a
			order = append(order, level)
		}
		a.n++
		a.frame += r.FrameTime
		a.size += float64(r.SizeGzipped)
		a.buildSum += r.TotalBuildTime()
	}

	fs := FactorSummary{Factor: factor, Baseline: Baselines[factor]}
	var baselineMean float64
	if a, ok := groups[fs.Baseline]; ok {
		fs.HasBaseline = true
		baselineMean = a.frame / float64(a.n)
	}

	for _, level := range order {
		a := groups[level]
		ls := LevelSummary{
			Level:              level,
			Count:              a.n,
			MeanFrameTime:      a.frame / float64(a.n),
			MeanSizeGzipped:    a.size / float64(a.n),
			MeanTotalBuildTime: a.buildSum / float64(a.n),
			Baseline:           level == fs.Baseline,
		}
		if fs.HasBaseline {
			ls.FrameTimeDelta = ls.MeanFrameTime - baselineMean
		}
		fs.Levels = append(fs.Levels, ls)
	}
	return fs
}

// Level returns the value of a factor column for a result
func Level(r models.BenchResult, factor string) string {
	switch factor {
	case "opt_level":
		return r.OptLevel
	case "wasm_opt":
		return r.WasmOpt
	case "lto":
		return r.Lto
	case "codegen_units":
		return r.CodegenUnits
	case "strip":
		return r.Strip
	case "panic":
		return r.Panic
	}
	return ""
}
