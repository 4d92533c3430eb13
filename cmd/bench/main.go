package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"dev/bravebird/frametime-bench/pkg/analysis"
	"dev/bravebird/frametime-bench/pkg/bench"
	"dev/bravebird/frametime-bench/pkg/database"
	"dev/bravebird/frametime-bench/pkg/matrix"
	"dev/bravebird/frametime-bench/pkg/measure"
	"dev/bravebird/frametime-bench/pkg/models"
	"dev/bravebird/frametime-bench/pkg/results"
	"dev/bravebird/frametime-bench/pkg/server"
)

// Builds the benchmark under every configuration of the matrix, measures each build
// and writes the results to out.csv. Results also go to MySQL when MYSQL_DSN is set.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workspace := getEnvOrDefault("WORKSPACE_DIR", ".")
	outPath := getEnvOrDefault("OUT_CSV", "out.csv")
	addr := getEnvOrDefault("BENCH_ADDR", server.DefaultAddr)

	var selection models.MatrixSelection
	if raw := os.Getenv("BENCH_SELECTION"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &selection); err != nil {
			log.Fatalf("Invalid BENCH_SELECTION: %v", err)
		}
	}
	plan, err := matrix.Resolve(selection)
	if err != nil {
		log.Fatalf("Invalid selection: %v", err)
	}

	if err := bench.CheckDeps(nil, bench.RequiredPrograms); err != nil {
		log.Fatalf("Error: %v", err)
	}

	pipeline := bench.NewPipeline(bench.Options{
		Dir:     workspace,
		Addr:    addr,
		Measure: measureConfig(),
	})

	out, err := results.CreateCSV(outPath)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", outPath, err)
	}
	defer out.Close()

	runID := uuid.New().String()
	db := openDatabase(ctx, runID, selection)
	if db != nil {
		defer db.Close()
	}

	log.Printf("Benchmarking %d configurations (%d builds) in %s", plan.Size(), len(plan.Profiles), workspace)
	start := time.Now()

	var all []models.BenchResult
	err = pipeline.RunMatrix(ctx, plan, func(r models.BenchResult) error {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		r.ID = id.String()
		r.RunID = runID

		if err := out.Write(r); err != nil {
			return err
		}
		if db != nil {
			if err := db.CreateResults(ctx, []models.BenchResult{r}); err != nil {
				log.Printf("Warning: failed to store result: %v", err)
			}
		}
		all = append(all, r)
		return nil
	})

	if db != nil {
		status, msg := models.StatusSuccess, ""
		if err != nil {
			status, msg = models.StatusFailed, err.Error()
			if ctx.Err() != nil {
				status = models.StatusCanceled
			}
		}
		// ctx may already be canceled
		if uerr := db.UpdateRunStatus(context.Background(), runID, status, msg); uerr != nil {
			log.Printf("Warning: failed to update run status: %v", uerr)
		}
	}

	if err != nil {
		log.Printf("Benchmark failed after %d results: %v", len(all), err)
		// os.Exit skips deferred calls
		if cerr := out.Close(); cerr != nil {
			log.Printf("Warning: failed to close %s: %v", outPath, cerr)
		}
		if db != nil {
			db.Close()
		}
		os.Exit(1)
	}

	log.Printf("Finished %d results in %s, written to %s", len(all), time.Since(start).Round(time.Second), outPath)
	analysis.Render(os.Stdout, analysis.Summarize(all))
}

func measureConfig() measure.Config {
	cfg := measure.DefaultConfig()
	cfg.Bin = os.Getenv("CHROME_BIN")
	cfg.Headless, _ = strconv.ParseBool(getEnvOrDefault("HEADLESS", "false"))
	cfg.NoSandbox = cfg.Headless
	if s := os.Getenv("MEASURE_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			cfg.Timeout = d
		}
	}
	// served by the pipeline's own web server
	cfg.URL = ""
	return cfg
}

// openDatabase returns nil when MYSQL_DSN is unset or unreachable
func openDatabase(ctx context.Context, runID string, selection models.MatrixSelection) *database.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		return nil
	}

	db, err := database.New(dsn)
	if err != nil {
		log.Printf("Warning: Failed to connect to database: %v", err)
		log.Println("Running without database persistence")
		return nil
	}
	if err := db.Migrate(ctx); err != nil {
		log.Printf("Warning: %v", err)
		db.Close()
		return nil
	}

	selectionJSON, _ := json.Marshal(selection)
	run := &models.BenchRun{
		ID:            runID,
		Name:          "local-" + time.Now().Format("20060102-150405"),
		SelectionJSON: string(selectionJSON),
	}
	if err := db.CreateRun(ctx, run); err != nil {
		log.Printf("Warning: failed to create run: %v", err)
		db.Close()
		return nil
	}
	if err := db.UpdateRunStatus(ctx, runID, models.StatusRunning, ""); err != nil {
		log.Printf("Warning: failed to update run status: %v", err)
	}

	log.Printf("Recording results as run %s", runID)
	return db
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
