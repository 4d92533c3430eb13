package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dev/bravebird/frametime-bench/pkg/measure"
)

// Loads the benchmark page in a visible browser and prints the average frame time
// it logs. Prints nothing if the page stays silent for the whole timeout.
func main() {
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := measure.NewRunner(measure.DefaultConfig(), measure.LaunchRod, nil)
	if err != nil {
		log.Fatalf("Failed to create runner: %v", err)
	}

	result, err := runner.Run(ctx)
	if err != nil {
		log.Fatalf("Measurement failed: %v", err)
	}

	if result.Found {
		fmt.Println(result.Raw)
	}
}
