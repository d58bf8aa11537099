package main

import (
	"fmt"
	"os"

	"golmm/adapters/api"
	"golmm/internal"
	"golmm/internal/config"
	"golmm/internal/report"

	"github.com/joho/godotenv"
)

// Serves a previously exported batch summary (summary.json from the analyze
// pipeline) as a read-only JSON API.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := internal.NewDefaultLogger()

	path := "summary.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	summary, err := report.ReadSummary(path)
	if err != nil {
		logger.Error("failed to load summary: %v", err)
		os.Exit(1)
	}
	logger.Info("serving batch %s: %d outcomes (%d succeeded, %d failed)",
		summary.BatchID, len(summary.Entries), summary.Succeeded, summary.Failed)

	server := api.NewServer(summary, logger)
	if err := server.ListenAndServe(cfg.Server.Port); err != nil {
		logger.Error("server failed: %v", err)
		os.Exit(1)
	}
}
