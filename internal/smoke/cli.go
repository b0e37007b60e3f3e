package smoke

import (
	"fmt"
	"os"

	"github.com/okian/tsarena/pkg/logger"
)

// SetupLogging initializes the global logger in the given format.
func SetupLogging(format string, verbose bool) error {
	if err := logger.InitWithFormat(format); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the smoke tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`TS-Arena Dashboard Smoke Tool
=============================

Crawls a running dashboard: health, rankings overview, definitions, the rounds
of each definition and the view of each round. Every round view is checked:
registration rounds must show the leaderboard placeholder and other rounds a
board ordered by average rank.

Usage:
  go run ./cmd/smoke [options]

Options:
  -url string
        Base URL of the dashboard (default "http://localhost:9080")
  -definitions int
        Number of definitions to crawl, 0 for all (default 5)
  -rounds int
        Maximum number of round views to check, 0 for all (default 50)
  -workers int
        Number of concurrent workers (default 4)
  -timeout duration
        HTTP request timeout (default 30s)
  -report string
        Write a JSON report to this file
  -log-format string
        text or json (default "text")
  -verbose
        Log every checked round
  -help
        Show this help message

Examples:
  go run ./cmd/smoke -url http://localhost:9080
  go run ./cmd/smoke -definitions 0 -rounds 0 -workers 16 -report out/smoke.json
`)
}
