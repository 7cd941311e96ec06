package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"earnings-tracker/internal/cli"
	"earnings-tracker/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Replaced once the config is loaded; until then log to the console only.
	cfg := logging.DefaultLogConfig()
	cfg.File = false
	logger := logging.NewLoggerWithConfig(cfg)

	if err := cli.Execute(ctx, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
