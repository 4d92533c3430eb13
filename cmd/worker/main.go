package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"dev/bravebird/frametime-bench/pkg/bench"
	"dev/bravebird/frametime-bench/pkg/database"
	"dev/bravebird/frametime-bench/pkg/measure"
	"dev/bravebird/frametime-bench/pkg/server"
	"dev/bravebird/frametime-bench/pkg/temporal/activities"
	"dev/bravebird/frametime-bench/pkg/temporal/workflows"
)

func main() {
	temporalHost := getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	workspace := getEnvOrDefault("WORKSPACE_DIR", ".")
	mysqlDSN := getEnvOrDefault("MYSQL_DSN", "bench:bench@tcp(localhost:3306)/bench?parseTime=true")

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort: temporalHost,
		Logger:   tlog.NewStructuredLogger(slog.Default()),
	})
	if err != nil {
		log.Fatalf("Failed to create Temporal client: %v", err)
	}
	defer c.Close()

	db, err := database.New(mysqlDSN)
	if err != nil {
		log.Printf("Warning: Failed to connect to database: %v", err)
		log.Println("Running without database persistence")
		db = nil
	}
	if db != nil {
		defer db.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.Migrate(ctx); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		cancel()
	}

	cfg := measure.DefaultConfig()
	cfg.Bin = os.Getenv("CHROME_BIN")
	cfg.NoSandbox, _ = strconv.ParseBool(getEnvOrDefault("NO_SANDBOX", "true"))
	cfg.URL = ""

	pipeline := bench.NewPipeline(bench.Options{
		Dir:     workspace,
		Addr:    getEnvOrDefault("BENCH_ADDR", server.DefaultAddr),
		Measure: cfg,
	})

	// Create activities
	acts := activities.NewActivities(db, pipeline)

	// One workspace, so one benchmark activity at a time
	w := worker.New(c, workflows.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     1,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(workflows.BenchmarkWorkflow)
	w.RegisterActivity(acts)

	log.Printf("Starting Temporal worker on task queue: %s", workflows.TaskQueue)
	log.Printf("Temporal host: %s", temporalHost)
	log.Printf("Workspace: %s", pipeline.Options().Dir)

	// Start worker
	err = w.Run(worker.InterruptCh())
	if err != nil {
		log.Fatalf("Worker failed: %v", err)
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
